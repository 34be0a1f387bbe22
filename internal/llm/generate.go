// internal/llm/generate.go
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"enrollment-chat/internal/enrollment/query"
	"enrollment-chat/internal/enrollment/schema"
)

// CollectionReply generates the conversational reply while slots are still
// being collected or confirmation is pending.
func (c *Client) CollectionReply(ctx context.Context, state schema.ConversationState, message string, isFirstTurn bool) (string, error) {
	resp, err := c.generate(ctx, generateRequest{
		Kind:        "collection_reply",
		Message:     message,
		IsFirstTurn: isFirstTurn,
		State:       state,
		StateText:   state.Summary(),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// DataReply generates the reply presenting confirmed query results.
func (c *Client) DataReply(ctx context.Context, state schema.ConversationState, results query.Response) (string, error) {
	resp, err := c.generate(ctx, generateRequest{
		Kind:      "data_reply",
		State:     state,
		StateText: state.Summary(),
		Results:   &results,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Suggestions generates follow-up query suggestions after a confirmed query.
// At most five are returned.
func (c *Client) Suggestions(ctx context.Context, state schema.ConversationState) ([]string, error) {
	resp, err := c.generate(ctx, generateRequest{
		Kind:      "suggestions",
		State:     state,
		StateText: state.Summary(),
	})
	if err != nil {
		return nil, err
	}
	suggestions := resp.Suggestions
	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}
	return suggestions, nil
}

func (c *Client) generate(ctx context.Context, reqBody generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	raw, err := c.post(ctx, "/api/ai/generate", body, c.config.ReplyTimeout, ErrGenerationFailed, ErrGenerationTimeout)
	if err != nil {
		return nil, err
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrGenerationFailed, err)
	}
	return &resp, nil
}
