package storage

// Well-known DICOM tag strings used for query filtering and summary
// projection. Kept narrow to what QIDO-RS (§4.4) and the data model
// (§3) actually reference.
const (
	TagStudyInstanceUID  = "0020000D"
	TagSeriesInstanceUID = "0020000E"
	TagSOPInstanceUID    = "00080018"
	TagSOPClassUID       = "00080016"
	TagPatientName       = "00100010"
	TagPatientID         = "00100020"
	TagStudyDate         = "00080020"
	TagStudyTime         = "00080030"
	TagStudyDescription  = "00081030"
	TagAccessionNumber   = "00080050"
	TagModality          = "00080060"
	TagSeriesNumber      = "00200011"
	TagInstanceNumber    = "00200013"
	TagSeriesDescription = "0008103E"
	TagNumberOfSeries    = "00201206"
	TagNumberOfInstances = "00201208"
	TagModalitiesInStudy = "00080061"
	TagRetrieveURL       = "00081190"
)
