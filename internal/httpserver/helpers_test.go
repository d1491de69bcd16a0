package httpserver_test

import (
	"bytes"
	"encoding/binary"
)

// buildPart10 hand-encodes a minimal, valid DICOM Part-10 stream: a
// 128-byte preamble, the "DICM" magic, an Explicit-VR-LE File Meta
// Information group declaring Implicit VR Little Endian as the
// transfer syntax, and an Implicit-VR-LE main dataset carrying just
// the four identifying UIDs STOW-RS needs.
func buildPart10(studyUID, seriesUID, sopInstanceUID, sopClassUID string) []byte {
	const implicitVRLittleEndian = "1.2.840.10008.1.2"

	var meta bytes.Buffer
	writeExplicitElementLong(&meta, 0x0002, 0x0001, "OB", []byte{0x00, 0x01})
	writeExplicitElementShort(&meta, 0x0002, 0x0002, "UI", padUID(sopClassUID))
	writeExplicitElementShort(&meta, 0x0002, 0x0003, "UI", padUID(sopInstanceUID))
	writeExplicitElementShort(&meta, 0x0002, 0x0010, "UI", padUID(implicitVRLittleEndian))
	writeExplicitElementShort(&meta, 0x0002, 0x0012, "UI", padUID("1.2.3.4.5"))

	var groupLength bytes.Buffer
	writeExplicitElementShort(&groupLength, 0x0002, 0x0000, "UL", leUint32(uint32(meta.Len())))

	var dataset bytes.Buffer
	writeImplicitElement(&dataset, 0x0008, 0x0016, padUID(sopClassUID))  // SOPClassUID
	writeImplicitElement(&dataset, 0x0008, 0x0018, padUID(sopInstanceUID)) // SOPInstanceUID
	writeImplicitElement(&dataset, 0x0020, 0x000D, padUID(studyUID))     // StudyInstanceUID
	writeImplicitElement(&dataset, 0x0020, 0x000E, padUID(seriesUID))    // SeriesInstanceUID

	var out bytes.Buffer
	out.Write(make([]byte, 128))
	out.WriteString("DICM")
	out.Write(groupLength.Bytes())
	out.Write(meta.Bytes())
	out.Write(dataset.Bytes())
	return out.Bytes()
}

func padUID(uid string) []byte {
	b := []byte(uid)
	if len(b)%2 != 0 {
		b = append(b, 0x00)
	}
	return b
}

func leUint16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func leUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// writeExplicitElementShort writes a File Meta element using a short
// 2-byte-VR-length encoding (UI, UL, SH, ...).
func writeExplicitElementShort(buf *bytes.Buffer, group, element uint16, vr string, value []byte) {
	buf.Write(leUint16(group))
	buf.Write(leUint16(element))
	buf.WriteString(vr)
	buf.Write(leUint16(uint16(len(value))))
	buf.Write(value)
}

// writeExplicitElementLong writes a File Meta element using the
// 4-byte-length-plus-2-reserved-bytes encoding (OB, OW, SQ, UN, UT).
func writeExplicitElementLong(buf *bytes.Buffer, group, element uint16, vr string, value []byte) {
	buf.Write(leUint16(group))
	buf.Write(leUint16(element))
	buf.WriteString(vr)
	buf.Write([]byte{0x00, 0x00})
	buf.Write(leUint32(uint32(len(value))))
	buf.Write(value)
}

// writeImplicitElement writes one main-dataset element in Implicit VR
// Little Endian: tag plus a 4-byte length, no VR bytes.
func writeImplicitElement(buf *bytes.Buffer, group, element uint16, value []byte) {
	buf.Write(leUint16(group))
	buf.Write(leUint16(element))
	buf.Write(leUint32(uint32(len(value))))
	buf.Write(value)
}
