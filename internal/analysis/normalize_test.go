package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeExtractsObjectFromProse(t *testing.T) {
	raw := `Sure! Here is the result: {"diseases":[{"name":"Flu","confidence":70,"description":"..."}],"treatments":["Rest"]}`

	res := Normalize(raw)
	def := Fallback()

	require.Len(t, res.Diseases, 1)
	assert.Equal(t, "Flu", res.Diseases[0].Name)
	assert.Equal(t, 70, res.Diseases[0].Confidence)
	assert.Equal(t, "...", res.Diseases[0].Description)
	assert.Equal(t, []string{"No risk factors specified"}, res.Diseases[0].RiskFactors)
	assert.Equal(t, []string{"Rest"}, res.Treatments)

	assert.Equal(t, def.SeekMedicalAttention, res.SeekMedicalAttention)
	assert.Equal(t, def.SeverityLevel, res.SeverityLevel)
	assert.Equal(t, def.PreventiveMeasures, res.PreventiveMeasures)
	assert.Equal(t, def.FollowUp, res.FollowUp)
	assert.Equal(t, def.ImmediateActions, res.ImmediateActions)
}

func TestNormalizeFallsBackOnUnusableText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "no braces", raw: "I cannot help with medical questions."},
		{name: "reversed braces", raw: "} nothing here {"},
		{name: "broken json", raw: `{"diseases": [ {"name": "Flu", }`},
		{name: "array", raw: `[{"name": "Flu"}]`},
		{name: "scalar", raw: `42`},
		{name: "null", raw: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Fallback(), Normalize(tt.raw))
		})
	}
}

func TestNormalizeFillsOnlyMissingKeys(t *testing.T) {
	raw := `{
		"diseases": [{"name": "Migraine", "confidence": 55, "description": "Throbbing headache",
			"risk_factors": ["Stress"]}],
		"seek_medical_attention": false,
		"severity_level": 20,
		"follow_up": []
	}`

	res := Normalize(raw)
	def := Fallback()

	assert.Equal(t, []Disease{{Name: "Migraine", Confidence: 55, Description: "Throbbing headache", RiskFactors: []string{"Stress"}}}, res.Diseases)
	assert.False(t, res.SeekMedicalAttention)
	assert.Equal(t, 20, res.SeverityLevel)
	assert.Empty(t, res.FollowUp)
	assert.NotNil(t, res.FollowUp)

	assert.Equal(t, def.Treatments, res.Treatments)
	assert.Equal(t, def.PreventiveMeasures, res.PreventiveMeasures)
	assert.Equal(t, def.ImmediateActions, res.ImmediateActions)
}

func TestNormalizeReplacesUnusableDiseases(t *testing.T) {
	for _, diseases := range []string{`[]`, `"Flu"`, `{"name": "Flu"}`, `null`} {
		res := Normalize(`{"diseases": ` + diseases + `, "treatments": ["Fluids"]}`)
		assert.Equal(t, Fallback().Diseases, res.Diseases, diseases)
		assert.Equal(t, []string{"Fluids"}, res.Treatments)
	}
}

func TestNormalizeRepairsDiseaseEntries(t *testing.T) {
	res := Normalize(`{"diseases": [{}, {"name": "Cold", "risk_factors": "smoking"}, {"name": "Strep", "confidence": 64.6}]}`)

	require.Len(t, res.Diseases, 3)
	assert.Equal(t, Disease{Name: UnknownCondition, Confidence: 0, Description: NoDescription, RiskFactors: []string{NoRiskFactorsDefault}}, res.Diseases[0])
	assert.Equal(t, "Cold", res.Diseases[1].Name)
	assert.Equal(t, []string{NoRiskFactorsDefault}, res.Diseases[1].RiskFactors)
	assert.Equal(t, 65, res.Diseases[2].Confidence)
}

func TestNormalizePassesNonObjectDiseaseEntriesThrough(t *testing.T) {
	res := Normalize(`{"diseases": ["Influenza", {"name": "Cold"}, 3]}`)

	require.Len(t, res.Diseases, 3)
	assert.JSONEq(t, `"Influenza"`, string(res.Diseases[0].Raw()))
	assert.Nil(t, res.Diseases[1].Raw())
	assert.JSONEq(t, `3`, string(res.Diseases[2].Raw()))

	out, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	diseases := decoded["diseases"].([]any)
	assert.Equal(t, "Influenza", diseases[0])
	assert.Equal(t, "Cold", diseases[1].(map[string]any)["name"])
	assert.Equal(t, float64(3), diseases[2])
}

func TestNormalizeWrongTypedTopLevelTakesDefault(t *testing.T) {
	res := Normalize(`{"treatments": "rest", "seek_medical_attention": "yes", "severity_level": null}`)
	def := Fallback()

	assert.Equal(t, def.Treatments, res.Treatments)
	assert.Equal(t, def.SeekMedicalAttention, res.SeekMedicalAttention)
	assert.Equal(t, def.SeverityLevel, res.SeverityLevel)
}

func TestNormalizeOutOfRangeNumbersTakeDefault(t *testing.T) {
	res := Normalize(`{"severity_level": 1e300, "diseases": [{"name": "Flu", "confidence": -1e19}]}`)

	assert.Equal(t, Fallback().SeverityLevel, res.SeverityLevel)
	require.Len(t, res.Diseases, 1)
	assert.Equal(t, "Flu", res.Diseases[0].Name)
	assert.Equal(t, 0, res.Diseases[0].Confidence)
}

func TestNormalizeWrongTypedDiseaseFieldTakesDefault(t *testing.T) {
	res := Normalize(`{"diseases": [{"name": "Flu", "confidence": "85%", "description": 7}]}`)

	require.Len(t, res.Diseases, 1)
	assert.Equal(t, "Flu", res.Diseases[0].Name)
	assert.Equal(t, 0, res.Diseases[0].Confidence)
	assert.Equal(t, NoDescription, res.Diseases[0].Description)
}

func TestNormalizeToleratesLineBreaksInsideStrings(t *testing.T) {
	raw := "```json\n{\"diseases\": [{\"name\": \"Flu\", \"confidence\": 80, \"description\": \"High fever\nand aches\", \"risk_factors\": []}]}\n```"

	res := Normalize(raw)

	require.Len(t, res.Diseases, 1)
	assert.Equal(t, "High fever and aches", res.Diseases[0].Description)
	assert.Empty(t, res.Diseases[0].RiskFactors)
}

func TestFallbackReturnsIndependentCopies(t *testing.T) {
	a := Fallback()
	a.Treatments[0] = "changed"
	a.Diseases[0].RiskFactors[0] = "changed"

	b := Fallback()
	assert.Equal(t, "Please consult a healthcare provider", b.Treatments[0])
	assert.Equal(t, "N/A", b.Diseases[0].RiskFactors[0])
	assert.True(t, b.SeekMedicalAttention)
}
