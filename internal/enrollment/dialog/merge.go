// Package dialog implements the turn-by-turn slot-filling core: the merge
// engine that folds extracted parameters into accumulated conversation state,
// and the state machine that decides completeness, confirmation and the next
// slot to ask for.
package dialog

import (
	"enrollment-chat/internal/enrollment/schema"
)

// Merge folds sanitized extracted parameters into state and returns a fresh
// state value. It is pure and total; callers handle change requests before
// calling (see ApplyChangeRequest).
//
// Field rules:
//   - confirmation: if extracted confirms while the state awaits confirmation,
//     the state becomes confirmed; this wins over field merging in the turn.
//   - terms accumulate: union of existing and extracted, first-seen order.
//   - level and mode lock once: filled only while absent, later conflicting
//     extractions are silently ignored.
//   - metric and variable update freely whenever extracted.
//
// The one subtlety is the mode-completion shortcut: a bare "all" while the
// pending slot is mode extracts as level=All, so when askingFor is mode, the
// state's mode is absent and the extraction carries level=All with no mode,
// the answer is credited to mode and level stays untouched.
func Merge(state schema.ConversationState, extracted schema.ExtractedParams, askingFor schema.AskingFor) schema.ConversationState {
	out := state.Clone()

	if extracted.IsConfirmation && out.AwaitingConfirmation {
		out.Confirmed = true
		out.AwaitingConfirmation = false
	}

	for _, t := range extracted.Terms {
		if !containsTerm(out.Terms, t) {
			out.Terms = append(out.Terms, t)
		}
	}

	if out.Level == "" {
		out.Level = extracted.Level
	}
	if out.Mode == "" {
		out.Mode = extracted.Mode
	}

	if askingFor == schema.AskMode &&
		extracted.Level == string(schema.LevelAll) && extracted.Mode == "" &&
		state.Mode == "" {
		out.Mode = string(schema.ModeAll)
		out.Level = state.Level
	}

	if extracted.Metric != "" {
		out.Metric = extracted.Metric
	}
	if extracted.Variable != "" {
		out.Variable = extracted.Variable
	}

	return out
}

func containsTerm(terms []string, term string) bool {
	for _, t := range terms {
		if t == term {
			return true
		}
	}
	return false
}
