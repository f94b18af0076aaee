package analysis

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Skufu/vitalsense/internal/sensor"
)

// Vitals are only rendered when a live reading exists; a zero Reading would
// read as real measurements to the model.
var promptTemplate = template.Must(template.New("prompt").Parse(`As a medical analysis system, analyze these symptoms{{if .Vitals}} and sensor data{{end}} to provide a detailed assessment.

Patient: {{.Name}}
Age: {{with .Age}}{{.}}{{else}}Not provided{{end}}
Gender: {{with .Gender}}{{.}}{{else}}Not provided{{end}}
{{with .Vitals}}
Current Vital Signs from Sensors:
- Heart Rate: {{.HeartRate}} BPM
- Body Temperature: {{printf "%.1f" .Temperature}}°C
- Body Moisture Level: {{.Moisture}}%
{{end}}
Reported Symptoms: {{.Symptoms}}

Based on {{if .Vitals}}both the symptoms and vital signs{{else}}these symptoms{{end}}, provide a comprehensive analysis that includes:
1. The top 3 most likely conditions/diseases, ranked by probability
2. For each condition, provide:
   - A confidence percentage (0-100)
   - A detailed description including key distinguishing features
   - Specific risk factors for this patient's age and gender
{{- if .Vitals}}
   - How the measured vital signs support or contradict this diagnosis
{{- end}}
3. Specific treatment recommendations
4. Whether immediate medical attention is needed{{if .Vitals}} (consider abnormal vital signs){{end}}
5. Preventive measures to avoid worsening of symptoms
6. Follow-up recommendations and monitoring guidelines

Return your analysis as a single JSON object in exactly this format (do not include any other text):

{
    "diseases": [
        {
            "name": "Example Disease",
            "confidence": 80,
            "description": "Brief description{{if .Vitals}} including how vital signs support diagnosis{{end}}",
            "risk_factors": ["Age related factor", "Gender related factor"]
        }
    ],
    "treatments": ["First line treatment", "Second line treatment"],
    "seek_medical_attention": true,
    "severity_level": 70,
    "preventive_measures": ["First measure", "Second measure"],
    "follow_up": ["First follow up step", "Second follow up step"],
    "immediate_actions": ["First immediate action", "Second immediate action"]
}`))

type promptData struct {
	Name     string
	Age      string
	Gender   string
	Vitals   *sensor.Reading
	Symptoms string
}

// BuildPrompt renders the model prompt for req. vitals is nil when no live
// sensor reading is available, and the prompt then covers symptoms only.
func BuildPrompt(req Request, vitals *sensor.Reading) (string, error) {
	symptoms := req.UniqueSymptoms()
	text := strings.Join(symptoms, ", ")
	if req.Mode == ModeParagraph && len(symptoms) > 0 {
		text = symptoms[0]
	}

	var b strings.Builder
	err := promptTemplate.Execute(&b, promptData{
		Name:     req.Name,
		Age:      req.Age,
		Gender:   req.Gender,
		Vitals:   vitals,
		Symptoms: text,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}
