// Package model defines the boundary to the text-generation backend. The
// backend is treated as a black box with bounded latency: callers pass
// system instructions, a user payload and generation constraints, and get
// back text. Provider adapters live in the openai and anthropic subpackages.
package model

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Constraints bound a single generation call.
type Constraints struct {
	MaxTokens   int64   `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Request captures the normalized input to a generation call.
type Request struct {
	Instructions string      `json:"instructions"`
	Payload      string      `json:"payload"`
	Constraints  Constraints `json:"constraints"`
}

// Response is the completed generation result.
type Response struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Model is the minimal interface agents use to drive generation. Generate
// must respect ctx cancellation and deadlines; results arriving after the
// deadline are discarded by the caller.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Info() Info
}

// Mock is a deterministic in-memory Model for tests. Responses are matched
// by substring of the request payload, falling back to a default echo.
type Mock struct {
	info      Info
	responses map[string]string
	queued    map[string][]string
	err       error
	delay     time.Duration
	calls     int
}

// NewMock constructs a Mock model.
func NewMock() *Mock {
	return &Mock{
		info:      Info{Name: "mock", Provider: "mock"},
		responses: make(map[string]string),
		queued:    make(map[string][]string),
	}
}

// Respond registers a canned completion returned when the request payload
// contains match.
func (m *Mock) Respond(match, response string) { m.responses[match] = response }

// RespondOnce registers a canned completion consumed by the first matching
// call. Queued completions take precedence over Respond registrations, so
// tests can script a bad first answer followed by a good one.
func (m *Mock) RespondOnce(match, response string) {
	m.queued[match] = append(m.queued[match], response)
}

// Fail makes every subsequent Generate call return err.
func (m *Mock) Fail(err error) { m.err = err }

// Delay makes Generate block for d before answering, so callers can exercise
// their timeout paths.
func (m *Mock) Delay(d time.Duration) { m.delay = d }

// Calls reports how many Generate calls were made.
func (m *Mock) Calls() int { return m.calls }

// Generate implements Model.
func (m *Mock) Generate(ctx context.Context, req Request) (*Response, error) {
	m.calls++
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	for match, queue := range m.queued {
		if match != "" && len(queue) > 0 && strings.Contains(req.Payload, match) {
			m.queued[match] = queue[1:]
			return &Response{Text: queue[0], FinishReason: "stop"}, nil
		}
	}
	for match, resp := range m.responses {
		if match != "" && strings.Contains(req.Payload, match) {
			return &Response{Text: resp, FinishReason: "stop"}, nil
		}
	}
	return &Response{Text: fmt.Sprintf("Mock response to: %s", req.Payload), FinishReason: "stop"}, nil
}

// Info implements Model.
func (m *Mock) Info() Info { return m.info }
