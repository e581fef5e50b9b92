package core

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the failure taxonomy. Every failure crossing the
// orchestrator boundary wraps exactly one of these; no raw internal error
// reaches the caller.
var (
	// ErrUnknownUser is returned in strict mode when no state record
	// exists for the user; it is rejected before any state access.
	ErrUnknownUser = errors.New("unknown user")

	// ErrBusy is returned when a request arrives for a user whose
	// previous request is still in flight.
	ErrBusy = errors.New("request already in flight for user")

	// ErrValidation marks a malformed inbound request, rejected before
	// touching state.
	ErrValidation = errors.New("invalid request")

	// ErrAgentFailure marks an agent invocation that failed after its
	// retry (timeout or malformed output). State is unchanged.
	ErrAgentFailure = errors.New("agent invocation failed")

	// ErrPersistence marks a write that did not durably complete after a
	// transition was decided. Fatal for the request.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("not found")
)

// InvalidTransitionError reports a transition the state machine refused,
// either because the edge is not declared or because required fields are
// missing. It is recovered locally by re-prompting and never surfaced as a
// hard error to the caller.
type InvalidTransitionError struct {
	From    Phase
	To      Phase
	Missing []FieldName
}

func (e *InvalidTransitionError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("transition %s -> %s blocked: missing fields %v", e.From, e.To, e.Missing)
	}
	return fmt.Sprintf("transition %s -> %s is not a declared edge", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError and
// returns it when so.
func IsInvalidTransition(err error) (*InvalidTransitionError, bool) {
	var ite *InvalidTransitionError
	if errors.As(err, &ite) {
		return ite, true
	}
	return nil, false
}
