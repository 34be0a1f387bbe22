// Package llm is the HTTP client for the external text-generation service
// that performs parameter extraction and natural-language reply generation.
// The core never depends on its wording; it only consumes structured output.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"enrollment-chat/internal/common/logger"
	"enrollment-chat/internal/enrollment/schema"
)

var (
	ErrExtractionFailed  = errors.New("EXTRACTION_FAILED")
	ErrExtractionTimeout = errors.New("EXTRACTION_TIMEOUT")
	ErrGenerationFailed  = errors.New("GENERATION_FAILED")
	ErrGenerationTimeout = errors.New("GENERATION_TIMEOUT")
)

// extractSchema guards against malformed extraction payloads before decoding;
// anything that fails here degrades to an all-absent parameter set rather
// than an error.
const extractSchema = `{
  "type": "object",
  "properties": {
    "terms": {"type": ["array", "null"], "items": {"type": "string"}},
    "level": {"type": ["string", "null"]},
    "mode": {"type": ["string", "null"]},
    "metric": {"type": ["string", "null"]},
    "variable": {"type": ["string", "null"]},
    "is_confirmation": {"type": "boolean"},
    "wants_to_change": {"type": ["string", "null"]}
  },
  "required": ["is_confirmation"]
}`

var extractSchemaLoader = gojsonschema.NewStringLoader(extractSchema)

// Client talks to the GenAI service over HTTP.
type Client struct {
	config *Config
	client *http.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		// Timeouts are enforced per call via context.
		client: &http.Client{},
		logger: log.With(map[string]interface{}{
			"component": "llm-client",
		}),
	}
}

// Extract asks the extraction endpoint to pull structured parameters out of a
// user message. askingFor tells the extractor which slot the previous turn
// asked about, so elliptical answers like "all" land in the right field.
//
// A transport or timeout failure returns a sentinel error. A payload that
// fails schema validation is not an error: it degrades to all-absent params
// so the dialogue re-asks.
func (c *Client) Extract(ctx context.Context, message string, askingFor schema.AskingFor) (schema.ExtractedParams, error) {
	body, _ := json.Marshal(extractRequest{
		Message:   message,
		AskingFor: string(askingFor),
	})

	raw, err := c.post(ctx, "/api/ai/extract-params", body, c.config.ExtractTimeout, ErrExtractionFailed, ErrExtractionTimeout)
	if err != nil {
		return schema.ExtractedParams{}, err
	}

	result, err := gojsonschema.Validate(extractSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil || !result.Valid() {
		c.logger.Warn("extraction payload failed schema validation, treating as empty", map[string]interface{}{
			"payloadBytes": len(raw),
		})
		return schema.ExtractedParams{}, nil
	}

	var payload extractPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn("extraction payload undecodable, treating as empty", map[string]interface{}{
			"error": err.Error(),
		})
		return schema.ExtractedParams{}, nil
	}

	return payload.toParams(), nil
}

// post sends a JSON request with bounded retries and exponential backoff,
// returning the response body. failErr/timeoutErr select the sentinel family.
func (c *Client) post(ctx context.Context, path string, body []byte, timeout time.Duration, failErr, timeoutErr error) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var raw []byte
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, timeoutErr
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", failErr, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)

		if ctx.Err() != nil ||
			errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			return nil, timeoutErr
		}

		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}

		raw, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return raw, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return nil, timeoutErr
	}
	return nil, fmt.Errorf("%w: %v", failErr, lastErr)
}
