package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"note-auditor/internal/compliance"
)

const validResponse = `{
  "filename": "note.pdf",
  "service_date": "03/01/2024",
  "signing_date": "03/02/2024 4:30 pm",
  "date_issue": {"found": true, "days_difference": 1, "original_text": "signed on 03/02/2024 4:30 pm",
    "replacement_text": "signed on 03/05/2024 4:30 pm", "corrected_date": "03/05/2024 4:30 pm"},
  "cpt_issue": {"found": true, "is_initial_visit": false, "start_time": "2:00 pm", "end_time": "2:55 pm",
    "duration_minutes": 55, "current_code": "90834", "correct_code": "90837"},
  "goals_issue": {"found": true, "goals_count": 1, "goals_found": ["Goal #1: \"I want to sleep better\""]},
  "supervision_issue": {"found": false, "signer_name": null, "supervised_by": []}
}`

func TestParseStrict(t *testing.T) {
	res := Parse(validResponse, "note.pdf")

	require.Equal(t, compliance.ParseOK, res.Status)
	require.NoError(t, res.Err)

	a := res.Analysis
	assert.Equal(t, "note.pdf", a.Filename)
	assert.True(t, a.Date.Found)
	require.NotNil(t, a.Date.DaysDifference)
	assert.Equal(t, 1, *a.Date.DaysDifference)
	assert.Equal(t, "90834", a.CPT.CurrentCode)
	assert.Equal(t, 55, a.CPT.Duration)
	assert.Equal(t, 1, a.Goals.GoalsCount)
	assert.Len(t, a.Goals.GoalsFound, 1)
	assert.False(t, a.Supervision.Found)
	assert.Equal(t, compliance.KindSupervision, a.Supervision.Kind)
}

func TestParseCodeFence(t *testing.T) {
	res := Parse("```json\n"+validResponse+"\n```", "note.pdf")
	assert.Equal(t, compliance.ParseOK, res.Status)
	assert.True(t, res.Analysis.CPT.Found)
}

func TestParseRecovered(t *testing.T) {
	raw := `Here is the analysis:
{
  "date_issue": {"found": "false",},
  "cpt_issue": {"found": "true", "duration_minutes": "40 minutes", "current_code": "CPT Code: 90837", "correct_code": 90834},
  "goals_issue": {"found": true, "goals_count": "2", "goals_found": “Goal #1”},
}
Let me know if you need anything else.`

	res := Parse(raw, "note.pdf")
	require.Equal(t, compliance.ParseRecovered, res.Status)
	assert.Error(t, res.Err)

	a := res.Analysis
	assert.False(t, a.Date.Found)
	assert.True(t, a.CPT.Found)
	assert.Equal(t, 40, a.CPT.Duration)
	assert.Equal(t, "90837", a.CPT.CurrentCode)
	assert.Equal(t, "90834", a.CPT.CorrectCode)
	assert.Equal(t, 2, a.Goals.GoalsCount)
	assert.Equal(t, []string{"Goal #1"}, a.Goals.GoalsFound)
	// absent issue stays at its not-found default
	assert.False(t, a.Supervision.Found)
}

func TestParseFailed(t *testing.T) {
	for _, raw := range []string{"", "I could not read this document.", `{"unrelated": true}`, `{"date_issue": `} {
		res := Parse(raw, "broken.pdf")
		assert.Equal(t, compliance.ParseFailed, res.Status, "raw=%q", raw)
		assert.Error(t, res.Err)
		assert.Equal(t, raw, res.Analysis.RawResponse)
		assert.NotEmpty(t, res.Analysis.ParseError)
		assert.False(t, res.Analysis.AnyFound())
		assert.Equal(t, -1, res.Analysis.Goals.GoalsCount)
	}
}

func TestExtractObject(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{`x {"a": {"b": 1}} y {"c": 2}`, `{"a": {"b": 1}}`, true},
		{`{"a": "brace } in string"}`, `{"a": "brace } in string"}`, true},
		{`{"a": "quote \" and }"} tail`, `{"a": "quote \" and }"}`, true},
		{`no object`, ``, false},
	}
	for _, tt := range tests {
		got, ok := extractObject(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
