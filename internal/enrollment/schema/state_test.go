package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_DiscardsOutOfDomainValues(t *testing.T) {
	d := NewValueDomain()

	var discarded []string
	out := Sanitize(d, ExtractedParams{
		Terms:    []string{"Fall 2021", "Fall 2030", "Spring 2020"},
		Level:    "PhD",
		Mode:     "Campus Immersion",
		Metric:   "Age",
		Variable: "Astronomy",
	}, func(field, value string) {
		discarded = append(discarded, field+"="+value)
	})

	assert.Equal(t, []string{"Fall 2021"}, out.Terms)
	assert.Empty(t, out.Level)
	assert.Equal(t, "Campus Immersion", out.Mode)
	assert.Empty(t, out.Metric)
	assert.Empty(t, out.Variable)
	assert.ElementsMatch(t, []string{
		"term=Fall 2030", "term=Spring 2020", "level=PhD", "metric=Age", "variable=Astronomy",
	}, discarded)
}

func TestSanitize_BothNormalizesToAll(t *testing.T) {
	d := NewValueDomain()

	out := Sanitize(d, ExtractedParams{Level: "Both", Mode: "both"}, nil)
	assert.Equal(t, "All", out.Level)
	assert.Equal(t, "All", out.Mode)
}

func TestSanitize_VariableValidatedAgainstSurvivingMetric(t *testing.T) {
	d := NewValueDomain()

	// Metric survives, variable must belong to it.
	out := Sanitize(d, ExtractedParams{Metric: "STEM discipline", Variable: "Tempe"}, nil)
	assert.Equal(t, "STEM discipline", out.Metric)
	assert.Empty(t, out.Variable)

	// Metric dropped, variable checked against the union.
	out = Sanitize(d, ExtractedParams{Metric: "Age", Variable: "Tempe"}, nil)
	assert.Empty(t, out.Metric)
	assert.Equal(t, "Tempe", out.Variable)
}

func TestSanitize_PassesFlagsThrough(t *testing.T) {
	d := NewValueDomain()

	out := Sanitize(d, ExtractedParams{IsConfirmation: true, WantsToChange: "  level  "}, nil)
	assert.True(t, out.IsConfirmation)
	assert.Equal(t, "level", out.WantsToChange)
}

func TestMissingRequired_PriorityOrder(t *testing.T) {
	tests := []struct {
		name  string
		state ConversationState
		want  []AskingFor
	}{
		{"empty", ConversationState{}, []AskingFor{AskTerm, AskLevel, AskMode}},
		{"terms only", ConversationState{Terms: []string{"Fall 2021"}}, []AskingFor{AskLevel, AskMode}},
		{"terms and level", ConversationState{Terms: []string{"Fall 2021"}, Level: "All"}, []AskingFor{AskMode}},
		{"complete", ConversationState{Terms: []string{"Fall 2021"}, Level: "All", Mode: "All"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.MissingRequired())
			assert.Equal(t, len(tt.want) == 0, tt.state.IsComplete())
		})
	}
}

func TestClone_NoAliasing(t *testing.T) {
	orig := ConversationState{Terms: []string{"Fall 2021"}, Level: "All"}
	clone := orig.Clone()
	clone.Terms[0] = "Fall 2022"

	assert.Equal(t, "Fall 2021", orig.Terms[0])
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "No parameters collected yet.", ConversationState{}.Summary())

	s := ConversationState{
		Terms: []string{"Fall 2021", "Fall 2022"},
		Level: "Undergraduate",
		Mode:  "All",
	}
	assert.Equal(t,
		"**Terms**: Fall 2021, Fall 2022\n**Level**: Undergraduate\n**Mode**: All",
		s.Summary())

	s.Metric = "STEM discipline"
	s.Variable = "STEM"
	assert.Contains(t, s.Summary(), "**Focus**: STEM discipline → STEM")

	s.Variable = ""
	assert.Contains(t, s.Summary(), "**Category**: STEM discipline")
}
