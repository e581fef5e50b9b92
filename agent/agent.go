// Package agent implements the five stateless agent contracts of the
// journey: the relay, the project generator, the dual-mode evaluator, the
// progress coach and the reviewer. Every agent is a typed transformation
// from structured input to structured output backed by the text-generation
// boundary in the model package; all continuity lives in core.UserState, and
// no agent ever invokes another agent.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mason-sapiens/sapiens-mvp/core"
	"github.com/mason-sapiens/sapiens-mvp/knowledge"
	"github.com/mason-sapiens/sapiens-mvp/logging"
	"github.com/mason-sapiens/sapiens-mvp/model"
)

// Capability tags the closed set of agent variants.
type Capability string

const (
	CapabilityNone      Capability = ""
	CapabilityRelay     Capability = "relay"
	CapabilityGenerator Capability = "generator"
	CapabilityEvaluator Capability = "evaluator"
	CapabilityCoach     Capability = "coach"
	CapabilityReviewer  Capability = "reviewer"
)

// CapabilityForPhase is the static lookup from journey phase to the single
// capability its handler may invoke. Phases mapped to CapabilityNone are
// handled by pure field extraction without any agent call.
var CapabilityForPhase = map[core.Phase]Capability{
	core.PhaseOnboarding:        CapabilityNone,
	core.PhaseProjectGeneration: CapabilityGenerator,
	core.PhaseProblemDefinition: CapabilityEvaluator,
	core.PhaseSolutionDesign:    CapabilityEvaluator,
	core.PhaseExecution:         CapabilityCoach,
	core.PhaseReview:            CapabilityReviewer,
	core.PhaseCompleted:         CapabilityRelay,
}

// Failure classification for a single generation attempt. A failed attempt
// is either TimedOut (the deadline expired; any late result is discarded) or
// Malformed (the backend answered but the output violated the contract).
var (
	ErrTimedOut  = errors.New("agent call timed out")
	ErrMalformed = errors.New("agent output malformed")
)

// DefaultTimeout bounds one generation attempt.
const DefaultTimeout = 30 * time.Second

// Options configure agent construction.
type Options struct {
	Timeout   time.Duration
	Retriever knowledge.Retriever
	Logger    logging.Logger
}

func buildOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Timeout: DefaultTimeout,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// base carries the shared plumbing of all agents: the model boundary, the
// optional knowledge retriever, the per-attempt timeout and a logger.
type base struct {
	name      string
	model     model.Model
	retriever knowledge.Retriever
	timeout   time.Duration
	logger    logging.Logger
}

func newBase(name string, m model.Model, opts Options) base {
	return base{
		name:      name,
		model:     m,
		retriever: opts.Retriever,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}
}

// Name returns the agent's external identifier, used in audit log entries.
func (b base) Name() string { return b.name }

// domainContext fetches prompt-ready knowledge snippets, tolerating retrieval
// failure: agents degrade to no context rather than failing the invocation.
func (b base) domainContext(ctx context.Context, query, domain string) string {
	if b.retriever == nil {
		return ""
	}
	snippets, err := b.retriever.Search(ctx, query, domain)
	if err != nil {
		b.logger.Warn("knowledge retrieval failed", "agent", b.name, "error", err)
		return ""
	}
	return knowledge.FormatContext(snippets)
}

// generateJSON performs one bounded generation attempt plus one retry, per
// the fail-closed policy: retry on timeout or malformed output, give up
// after the second failure. On success the extracted JSON object is
// unmarshaled into out and validate (if non-nil) is applied as part of the
// output contract.
func (b base) generateJSON(ctx context.Context, instructions, payload string, out any, validate func() error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		err := b.attemptJSON(ctx, instructions, payload, out, validate)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, ErrTimedOut) && !errors.Is(err, ErrMalformed) {
			break
		}
		b.logger.Warn("agent attempt failed, retrying once", "agent", b.name, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("%w: %s: %v", core.ErrAgentFailure, b.name, lastErr)
}

// attemptJSON runs a single generation attempt under the configured timeout.
// The model call runs in a goroutine whose result is delivered through a
// buffered channel; on deadline expiry the attempt fails and any result
// arriving later is dropped, never applied.
func (b base) attemptJSON(ctx context.Context, instructions, payload string, out any, validate func() error) error {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type result struct {
		resp *model.Response
		err  error
	}
	resCh := make(chan result, 1)
	start := time.Now()
	go func() {
		resp, err := b.model.Generate(callCtx, model.Request{
			Instructions: instructions,
			Payload:      payload,
		})
		resCh <- result{resp: resp, err: err}
	}()

	select {
	case <-callCtx.Done():
		b.logger.Warn("model call deadline expired", "agent", b.name, "elapsed", time.Since(start))
		return fmt.Errorf("%w after %s", ErrTimedOut, b.timeout)
	case res := <-resCh:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return fmt.Errorf("%w after %s", ErrTimedOut, b.timeout)
			}
			return fmt.Errorf("%w: %v", ErrMalformed, res.err)
		}
		raw, ok := extractJSON(res.resp.Text)
		if !ok {
			return fmt.Errorf("%w: no JSON object in response", ErrMalformed)
		}
		// Unmarshal merges into non-nil maps, so a rejected earlier attempt
		// could leak keys into the retry; zero the destination per attempt.
		if v := reflect.ValueOf(out); v.Kind() == reflect.Pointer && !v.IsNil() {
			v.Elem().SetZero()
		}
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if validate != nil {
			if err := validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
		return nil
	}
}

// extractJSON returns the outermost JSON object embedded in text. Models
// occasionally wrap their output in prose or code fences.
func extractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// IsRecoverable reports whether err is a RecoverableAgentFailure: the agent
// invocation failed after its retry and state must remain unchanged.
func IsRecoverable(err error) bool { return errors.Is(err, core.ErrAgentFailure) }

// encodePayload renders a typed agent input as the JSON user payload sent to
// the model.
func encodePayload(in any) (string, error) {
	raw, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode agent input: %w", err)
	}
	return string(raw), nil
}
