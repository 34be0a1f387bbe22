package schema

import (
	"fmt"
	"strings"
)

// AskingFor is the single-valued hint carried between turns: the slot the
// system asked for last, fed into the next extraction call.
type AskingFor string

const (
	AskNothing      AskingFor = ""
	AskTerm         AskingFor = "term"
	AskLevel        AskingFor = "level"
	AskMode         AskingFor = "mode"
	AskConfirmation AskingFor = "confirmation"
	AskWhatToChange AskingFor = "what_to_change"
)

// ExtractedParams is the structured output of the external extraction
// collaborator for a single user message. It is untrusted until passed
// through Sanitize.
type ExtractedParams struct {
	Terms          []string `json:"terms,omitempty"`
	Level          string   `json:"level,omitempty"`
	Mode           string   `json:"mode,omitempty"`
	Metric         string   `json:"metric,omitempty"`
	Variable       string   `json:"variable,omitempty"`
	IsConfirmation bool     `json:"is_confirmation"`
	WantsToChange  string   `json:"wants_to_change,omitempty"`
}

// IsEmpty reports whether nothing at all was extracted.
func (e ExtractedParams) IsEmpty() bool {
	return len(e.Terms) == 0 && e.Level == "" && e.Mode == "" &&
		e.Metric == "" && e.Variable == "" && !e.IsConfirmation && e.WantsToChange == ""
}

// Sanitize validates extracted values against the domain and discards
// anything outside it; out-of-domain values are treated as absent, never as
// errors. "Both" normalizes to "All" for level and mode. onDiscard, if
// non-nil, is invoked once per dropped value so the caller can count them.
func Sanitize(d *ValueDomain, e ExtractedParams, onDiscard func(field, value string)) ExtractedParams {
	discard := func(field, value string) {
		if onDiscard != nil {
			onDiscard(field, value)
		}
	}

	out := ExtractedParams{
		IsConfirmation: e.IsConfirmation,
		WantsToChange:  strings.TrimSpace(e.WantsToChange),
	}

	for _, t := range e.Terms {
		if d.ValidTerm(t) {
			out.Terms = append(out.Terms, t)
		} else {
			discard("term", t)
		}
	}

	level := e.Level
	if strings.EqualFold(level, "Both") {
		level = string(LevelAll)
	}
	if level != "" {
		if d.ValidLevel(level) {
			out.Level = level
		} else {
			discard("level", e.Level)
		}
	}

	mode := e.Mode
	if strings.EqualFold(mode, "Both") {
		mode = string(ModeAll)
	}
	if mode != "" {
		if d.ValidMode(mode) {
			out.Mode = mode
		} else {
			discard("mode", e.Mode)
		}
	}

	if e.Metric != "" {
		if d.ValidMetric(e.Metric) {
			out.Metric = e.Metric
		} else {
			discard("metric", e.Metric)
		}
	}

	if e.Variable != "" {
		// Variable validity depends on the surviving metric, if any.
		if d.ValidVariable(out.Metric, e.Variable) {
			out.Variable = e.Variable
		} else {
			discard("variable", e.Variable)
		}
	}

	return out
}

// ConversationState is the accumulated slot-filling state for one
// conversation. The zero value is a fresh, empty state.
//
// Invariants maintained by the dialog package:
//   - Confirmed implies terms non-empty, level and mode present.
//   - Confirmed and AwaitingConfirmation are never both true.
type ConversationState struct {
	Terms                []string `json:"terms"`
	Level                string   `json:"level,omitempty"`
	Mode                 string   `json:"mode,omitempty"`
	Metric               string   `json:"metric,omitempty"`
	Variable             string   `json:"variable,omitempty"`
	Confirmed            bool     `json:"confirmed"`
	AwaitingConfirmation bool     `json:"awaiting_confirmation"`
}

// MissingRequired returns the missing required slots in fixed priority order.
func (s ConversationState) MissingRequired() []AskingFor {
	var missing []AskingFor
	if len(s.Terms) == 0 {
		missing = append(missing, AskTerm)
	}
	if s.Level == "" {
		missing = append(missing, AskLevel)
	}
	if s.Mode == "" {
		missing = append(missing, AskMode)
	}
	return missing
}

// IsComplete reports whether all required slots are filled.
func (s ConversationState) IsComplete() bool {
	return len(s.MissingRequired()) == 0
}

// Clone returns a deep copy so merge output never aliases its input.
func (s ConversationState) Clone() ConversationState {
	out := s
	if s.Terms != nil {
		out.Terms = make([]string, len(s.Terms))
		copy(out.Terms, s.Terms)
	}
	return out
}

// Summary renders the collected slots as a markdown field list, used in
// confirmation prompts and generation context.
func (s ConversationState) Summary() string {
	var parts []string
	if len(s.Terms) == 1 {
		parts = append(parts, fmt.Sprintf("**Term**: %s", s.Terms[0]))
	} else if len(s.Terms) > 1 {
		parts = append(parts, fmt.Sprintf("**Terms**: %s", strings.Join(s.Terms, ", ")))
	}
	if s.Level != "" {
		parts = append(parts, fmt.Sprintf("**Level**: %s", s.Level))
	}
	if s.Mode != "" {
		parts = append(parts, fmt.Sprintf("**Mode**: %s", s.Mode))
	}
	switch {
	case s.Metric != "" && s.Variable != "":
		parts = append(parts, fmt.Sprintf("**Focus**: %s → %s", s.Metric, s.Variable))
	case s.Metric != "":
		parts = append(parts, fmt.Sprintf("**Category**: %s", s.Metric))
	case s.Variable != "":
		parts = append(parts, fmt.Sprintf("**Focus**: %s", s.Variable))
	}
	if len(parts) == 0 {
		return "No parameters collected yet."
	}
	return strings.Join(parts, "\n")
}
