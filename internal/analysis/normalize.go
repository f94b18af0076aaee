package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	errNotObject = errors.New("model output is not a JSON object")

	lineBreaks = strings.NewReplacer("\n", " ", "\r", "")
)

// Normalize turns arbitrary model text into a schema-complete Result. It never
// fails: unusable text yields Fallback().
func Normalize(raw string) Result {
	res, _ := normalize(raw)
	return res
}

// normalize is Normalize plus the reason the fallback was used, if it was.
func normalize(raw string) (Result, error) {
	candidate := extractObject(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		return Fallback(), fmt.Errorf("parse model output: %w", err)
	}
	if fields == nil {
		return Fallback(), errNotObject
	}

	return repair(fields, Fallback()), nil
}

// extractObject slices from the first '{' to the last '}' when both exist in
// that order, otherwise keeps the whole trimmed text. Line breaks are removed
// since models often pretty-print across lines inside string values.
func extractObject(raw string) string {
	candidate := strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end != -1 && start < end {
		candidate = raw[start : end+1]
	}
	return lineBreaks.Replace(candidate)
}

// repair merges a parsed partial record against def. Keys that are missing,
// null, or of the wrong type take the value from def; well-typed keys are
// kept as the model sent them.
func repair(fields map[string]json.RawMessage, def Result) Result {
	out := def

	decodeInto(fields["treatments"], &out.Treatments)
	decodeInto(fields["seek_medical_attention"], &out.SeekMedicalAttention)
	decodeInt(fields["severity_level"], &out.SeverityLevel)
	decodeInto(fields["preventive_measures"], &out.PreventiveMeasures)
	decodeInto(fields["follow_up"], &out.FollowUp)
	decodeInto(fields["immediate_actions"], &out.ImmediateActions)

	var entries []json.RawMessage
	if err := json.Unmarshal(fields["diseases"], &entries); err == nil && len(entries) > 0 {
		out.Diseases = make([]Disease, 0, len(entries))
		for _, e := range entries {
			out.Diseases = append(out.Diseases, repairDisease(e))
		}
	}

	return out
}

func repairDisease(entry json.RawMessage) Disease {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(entry, &obj); err != nil || obj == nil {
		// Non-object entries are passed through untouched.
		var buf bytes.Buffer
		if err := json.Compact(&buf, entry); err != nil {
			return Disease{raw: append(json.RawMessage(nil), entry...)}
		}
		return Disease{raw: buf.Bytes()}
	}

	// Present but wrongly typed fields (e.g. "confidence": "85%") take the
	// default on purpose: the typed Disease cannot carry them.
	d := Disease{
		Name:        UnknownCondition,
		Confidence:  0,
		Description: NoDescription,
		RiskFactors: []string{NoRiskFactorsDefault},
	}
	decodeInto(obj["name"], &d.Name)
	decodeInt(obj["confidence"], &d.Confidence)
	decodeInto(obj["description"], &d.Description)
	decodeInto(obj["risk_factors"], &d.RiskFactors)
	return d
}

// decodeInto overwrites dst only when msg is present, non-null, and decodes
// cleanly as T.
func decodeInto[T any](msg json.RawMessage, dst *T) bool {
	if len(msg) == 0 || bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
		return false
	}
	var v T
	if err := json.Unmarshal(msg, &v); err != nil {
		return false
	}
	*dst = v
	return true
}

// decodeInt accepts any JSON number that rounds to a value inside the int
// range.
func decodeInt(msg json.RawMessage, dst *int) bool {
	var f float64
	if !decodeInto(msg, &f) {
		return false
	}
	r := math.Round(f)
	if r < math.MinInt || r >= -math.MinInt {
		return false
	}
	*dst = int(r)
	return true
}
