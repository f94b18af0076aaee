package analysis

import "encoding/json"

// Result is the differential-diagnosis report returned to callers. Every
// field is always populated.
type Result struct {
	Diseases             []Disease `json:"diseases"`
	Treatments           []string  `json:"treatments"`
	SeekMedicalAttention bool      `json:"seek_medical_attention"`
	SeverityLevel        int       `json:"severity_level"`
	PreventiveMeasures   []string  `json:"preventive_measures"`
	FollowUp             []string  `json:"follow_up"`
	ImmediateActions     []string  `json:"immediate_actions"`
}

type Disease struct {
	Name        string   `json:"name"`
	Confidence  int      `json:"confidence"`
	Description string   `json:"description"`
	RiskFactors []string `json:"risk_factors"`

	// raw holds a non-object entry the model put in the diseases list. It is
	// emitted verbatim instead of the typed fields.
	raw json.RawMessage
}

// Raw returns the verbatim JSON of a non-object entry, or nil.
func (d Disease) Raw() json.RawMessage {
	return d.raw
}

func (d Disease) MarshalJSON() ([]byte, error) {
	if d.raw != nil {
		return d.raw, nil
	}
	type plain Disease
	return json.Marshal(plain(d))
}

// Per-field defaults used when a model-supplied disease entry is incomplete.
const (
	UnknownCondition     = "Unknown Condition"
	NoDescription        = "No description available"
	NoRiskFactorsDefault = "No risk factors specified"
)

// Fallback returns a fresh copy of the record served whenever no trustworthy
// model-derived result exists.
func Fallback() Result {
	return Result{
		Diseases: []Disease{{
			Name:        "Analysis Unavailable",
			Confidence:  0,
			Description: "Unable to analyze symptoms at this time. Please try again or consult a healthcare provider.",
			RiskFactors: []string{"N/A"},
		}},
		Treatments:           []string{"Please consult a healthcare provider"},
		SeekMedicalAttention: true,
		SeverityLevel:        50,
		PreventiveMeasures: []string{
			"Rest and maintain good hydration",
			"Monitor symptoms for any changes",
			"Practice good hygiene",
		},
		FollowUp: []string{
			"Schedule an appointment with your healthcare provider",
			"Keep a symptom diary",
		},
		ImmediateActions: []string{
			"Contact your healthcare provider",
			"Monitor your symptoms",
		},
	}
}
