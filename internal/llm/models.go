// internal/llm/models.go
package llm

import (
	"enrollment-chat/internal/enrollment/query"
	"enrollment-chat/internal/enrollment/schema"
)

type extractRequest struct {
	Message   string `json:"message"`
	AskingFor string `json:"askingFor,omitempty"`
}

// extractPayload mirrors the extraction service's JSON contract. It is
// decoded only after passing schema validation.
type extractPayload struct {
	Terms          []string `json:"terms"`
	Level          *string  `json:"level"`
	Mode           *string  `json:"mode"`
	Metric         *string  `json:"metric"`
	Variable       *string  `json:"variable"`
	IsConfirmation bool     `json:"is_confirmation"`
	WantsToChange  *string  `json:"wants_to_change"`
}

func (p extractPayload) toParams() schema.ExtractedParams {
	out := schema.ExtractedParams{
		Terms:          p.Terms,
		IsConfirmation: p.IsConfirmation,
	}
	if p.Level != nil {
		out.Level = *p.Level
	}
	if p.Mode != nil {
		out.Mode = *p.Mode
	}
	if p.Metric != nil {
		out.Metric = *p.Metric
	}
	if p.Variable != nil {
		out.Variable = *p.Variable
	}
	if p.WantsToChange != nil {
		out.WantsToChange = *p.WantsToChange
	}
	return out
}

type generateRequest struct {
	Kind        string                   `json:"kind"` // collection_reply | data_reply | suggestions
	Message     string                   `json:"message,omitempty"`
	IsFirstTurn bool                     `json:"isFirstTurn,omitempty"`
	State       schema.ConversationState `json:"state"`
	StateText   string                   `json:"stateText,omitempty"`
	Results     *query.Response          `json:"results,omitempty"`
}

type generateResponse struct {
	Text        string   `json:"text"`
	Suggestions []string `json:"suggestions,omitempty"`
}
