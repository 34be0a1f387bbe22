package dialog

import (
	"strings"

	"enrollment-chat/internal/enrollment/schema"
)

// changeTargets maps substrings of a free-text "what to change" answer to the
// slot(s) they clear. Checked in order; first match wins.
var changeTargets = []struct {
	substrings []string
	clear      func(*schema.ConversationState)
}{
	{
		substrings: []string{"term"},
		clear:      func(s *schema.ConversationState) { s.Terms = nil },
	},
	{
		substrings: []string{"level", "grad"},
		clear:      func(s *schema.ConversationState) { s.Level = "" },
	},
	{
		substrings: []string{"mode", "campus", "digital"},
		clear:      func(s *schema.ConversationState) { s.Mode = "" },
	},
}

// ApplyChangeRequest reopens a state in response to a change request. The
// targeted slot is cleared; text matching no known slot clears nothing.
// Either way the progress flags reset, pushing the conversation back to
// collecting (or to re-confirmation with unchanged fields).
func ApplyChangeRequest(state schema.ConversationState, wantsToChange string) schema.ConversationState {
	out := state.Clone()

	target := strings.ToLower(wantsToChange)
	for _, t := range changeTargets {
		matched := false
		for _, sub := range t.substrings {
			if strings.Contains(target, sub) {
				matched = true
				break
			}
		}
		if matched {
			t.clear(&out)
			break
		}
	}

	out.Confirmed = false
	out.AwaitingConfirmation = false
	return out
}

// Advance runs the collecting→awaiting-confirmation transition: once all
// required slots are filled and the state is neither confirmed nor already
// awaiting, it starts awaiting confirmation.
func Advance(state schema.ConversationState) schema.ConversationState {
	out := state.Clone()
	if out.IsComplete() && !out.Confirmed && !out.AwaitingConfirmation {
		out.AwaitingConfirmation = true
	}
	return out
}

// NextAsk computes what the system should ask for next, given post-merge
// state: confirmation while awaiting it, otherwise the first missing required
// slot in term, level, mode order, otherwise nothing.
func NextAsk(state schema.ConversationState) schema.AskingFor {
	if state.AwaitingConfirmation {
		return schema.AskConfirmation
	}
	if state.Confirmed {
		return schema.AskNothing
	}
	if missing := state.MissingRequired(); len(missing) > 0 {
		return missing[0]
	}
	return schema.AskNothing
}

// Resolve runs one full post-extraction step: change handling, merge, the
// completeness transition and next-ask computation. It is the single pure
// entry point the conversation service drives each turn.
func Resolve(state schema.ConversationState, extracted schema.ExtractedParams, askingFor schema.AskingFor) (schema.ConversationState, schema.AskingFor) {
	next := state.Clone()

	if extracted.IsConfirmation && next.AwaitingConfirmation {
		next.Confirmed = true
		next.AwaitingConfirmation = false
	}

	if extracted.WantsToChange != "" {
		next = ApplyChangeRequest(next, extracted.WantsToChange)
	}

	next = Merge(next, extracted, askingFor)
	next = Advance(next)

	return next, NextAsk(next)
}
