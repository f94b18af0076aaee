package analysis

import "strings"

type Mode string

const (
	ModeList      Mode = "list"
	ModeParagraph Mode = "paragraph"
)

// MaxSymptoms is the most symptoms a single request may carry.
const MaxSymptoms = 7

// Request is the patient input for one analysis.
type Request struct {
	Name     string   `json:"name" binding:"required"`
	Symptoms []string `json:"symptoms" binding:"required,min=1,max=7"`
	Age      string   `json:"age"`
	Gender   string   `json:"gender"`
	Mode     Mode     `json:"mode" binding:"omitempty,oneof=list paragraph"`
}

// UniqueSymptoms returns the trimmed, non-blank symptoms with duplicates
// removed, keeping the first occurrence of each.
func (r Request) UniqueSymptoms() []string {
	seen := make(map[string]struct{}, len(r.Symptoms))
	out := make([]string, 0, len(r.Symptoms))
	for _, s := range r.Symptoms {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
