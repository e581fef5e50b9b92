package agent

import (
	"context"
	"fmt"

	"github.com/mason-sapiens/sapiens-mvp/core"
	"github.com/mason-sapiens/sapiens-mvp/model"
)

// RelayInput asks the relay to phrase a machine state for the user.
type RelayInput struct {
	UserID string            `json:"user_id"`
	Phase  core.Phase        `json:"phase"`
	Topic  string            `json:"topic"`
	Data   map[string]string `json:"data,omitempty"`
}

// RelayOutput is the user-facing message. The relay makes no decisions and
// never mutates state.
type RelayOutput struct {
	Message string `json:"message"`
}

// Relay converts machine state plus context into user-facing natural
// language.
type Relay struct {
	base
}

// NewRelay constructs the relay agent.
func NewRelay(m model.Model, optFns ...func(o *Options)) *Relay {
	return &Relay{base: newBase("relay", m, buildOptions(optFns))}
}

const relayInstructions = `You are the conversational voice of a career mentoring service that guides
one user through a fixed project journey. You receive the current journey
phase, a topic, and structured data. Phrase them as a warm, concise message
to the user. You make no decisions and add no new facts.

Respond with a JSON object: {"message": "..."}`

// Generate implements the relay contract.
func (r *Relay) Generate(ctx context.Context, in RelayInput) (*RelayOutput, error) {
	payload, err := encodePayload(in)
	if err != nil {
		return nil, err
	}
	var out RelayOutput
	if err := r.generateJSON(ctx, relayInstructions, payload, &out, func() error {
		if out.Message == "" {
			return fmt.Errorf("empty message")
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &out, nil
}
