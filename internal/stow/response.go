package stow

import "github.com/dicomkit/dicomweb-server/internal/dicomjson"

// Tags used by the STOW-RS response per PS3.18 Annex F / §9 open question 1.
const (
	tagReferencedSOPSequence = "00081199"
	tagFailedSOPSequence     = "00081198"
	tagReferencedSOPClassUID = "00081150"
	tagReferencedSOPInstance = "00081155"
	tagRetrieveURL           = "00081190"
	tagFailureReason         = "00081197"
)

// BuildResponse renders the "Store Instances Response" dataset: a
// ReferencedSOPSequence item per successfully stored instance, a
// FailedSOPSequence item per failure.
func BuildResponse(outcomes []PartOutcome) dicomjson.Dataset {
	response := dicomjson.Dataset{}

	var referenced, failed []dicomjson.Value
	for _, o := range outcomes {
		if o.Success {
			item := dicomjson.Dataset{}
			item.SetString(tagReferencedSOPClassUID, "UI", o.SOPClassUID)
			item.SetString(tagReferencedSOPInstance, "UI", o.SOPInstanceUID)
			item.SetString(tagRetrieveURL, "UR", o.RetrieveURL)
			referenced = append(referenced, dicomjson.SequenceItem(item))
		} else {
			item := dicomjson.Dataset{}
			item.SetString(tagReferencedSOPClassUID, "UI", o.SOPClassUID)
			item.SetString(tagReferencedSOPInstance, "UI", o.SOPInstanceUID)
			// FailureReason (00081197) is a US-valued code in the real
			// standard; here it carries a short machine string since
			// the pipeline does not map to the standard's numeric codes.
			item.Set(tagFailureReason, "US", dicomjson.String(o.FailureReason))
			failed = append(failed, dicomjson.SequenceItem(item))
		}
	}

	if len(referenced) > 0 {
		response.Set(tagReferencedSOPSequence, "SQ", referenced...)
	}
	if len(failed) > 0 {
		response.Set(tagFailedSOPSequence, "SQ", failed...)
	}
	return response
}
