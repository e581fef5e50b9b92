package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/mason-sapiens/sapiens-mvp/core"
)

// InMemoryStore is a volatile Store implementation keeping all records in
// process local maps. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Returned states and artifacts are cloned
// to prevent external mutation of internal data.
type InMemoryStore struct {
	mu          sync.RWMutex
	states      map[string]*core.UserState
	entries     map[string][]core.ConversationLogEntry
	transitions map[string][]core.StateTransition
	artifacts   map[string][]*core.Artifact

	failCommits bool
}

var _ core.Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states:      make(map[string]*core.UserState),
		entries:     make(map[string][]core.ConversationLogEntry),
		transitions: make(map[string][]core.StateTransition),
		artifacts:   make(map[string][]*core.Artifact),
	}
}

// FailCommits makes every subsequent CommitTurn return a persistence error.
// Test hook.
func (s *InMemoryStore) FailCommits(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommits = fail
}

// GetState returns a clone of the user's state record.
func (s *InMemoryStore) GetState(_ context.Context, userID string) (*core.UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %q", core.ErrNotFound, userID)
	}
	return state.Clone(), nil
}

// PutState stores a clone of the provided state snapshot.
func (s *InMemoryStore) PutState(_ context.Context, state *core.UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.UserID] = state.Clone()
	return nil
}

// AppendEntry records a conversation log entry.
func (s *InMemoryStore) AppendEntry(_ context.Context, entry core.ConversationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.UserID] = append(s.entries[entry.UserID], entry)
	return nil
}

// AppendTransition records a transition attempt.
func (s *InMemoryStore) AppendTransition(_ context.Context, tr core.StateTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions[tr.UserID] = append(s.transitions[tr.UserID], tr)
	return nil
}

// ListEntries returns the user's conversation log in append order.
func (s *InMemoryStore) ListEntries(_ context.Context, userID string) ([]core.ConversationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ConversationLogEntry, len(s.entries[userID]))
	copy(out, s.entries[userID])
	return out, nil
}

// ListTransitions returns the user's transition log in append order.
func (s *InMemoryStore) ListTransitions(_ context.Context, userID string) ([]core.StateTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.StateTransition, len(s.transitions[userID]))
	copy(out, s.transitions[userID])
	return out, nil
}

// SaveArtifact appends an artifact row. Rows are never overwritten; a new
// revision of the same kind supersedes earlier rows on read via
// LatestArtifact.
func (s *InMemoryStore) SaveArtifact(_ context.Context, a *core.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[a.UserID] = append(s.artifacts[a.UserID], cloneArtifact(a))
	return nil
}

// GetArtifact returns the artifact with the given id.
func (s *InMemoryStore) GetArtifact(_ context.Context, userID, artifactID string) (*core.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.artifacts[userID] {
		if a.ID == artifactID {
			return cloneArtifact(a), nil
		}
	}
	return nil, fmt.Errorf("%w: artifact %q", core.ErrNotFound, artifactID)
}

// LatestArtifact returns the highest-revision artifact of the kind.
func (s *InMemoryStore) LatestArtifact(_ context.Context, userID string, kind core.ArtifactKind) (*core.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *core.Artifact
	for _, a := range s.artifacts[userID] {
		if a.Kind != kind {
			continue
		}
		if latest == nil || a.Revision >= latest.Revision {
			latest = a
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no %s artifact for user %q", core.ErrNotFound, kind, userID)
	}
	return cloneArtifact(latest), nil
}

// ListArtifacts returns all artifact rows for the user in insertion order.
func (s *InMemoryStore) ListArtifacts(_ context.Context, userID string) ([]*core.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Artifact, 0, len(s.artifacts[userID]))
	for _, a := range s.artifacts[userID] {
		out = append(out, cloneArtifact(a))
	}
	return out, nil
}

// CommitTurn applies the whole turn record under one lock so concurrent
// readers never observe a partially written turn.
func (s *InMemoryStore) CommitTurn(_ context.Context, rec core.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCommits {
		return fmt.Errorf("%w: commit rejected", core.ErrPersistence)
	}
	if rec.State != nil {
		s.states[rec.State.UserID] = rec.State.Clone()
	}
	if rec.Transition != nil {
		s.transitions[rec.Transition.UserID] = append(s.transitions[rec.Transition.UserID], *rec.Transition)
	}
	for _, e := range rec.Entries {
		s.entries[e.UserID] = append(s.entries[e.UserID], e)
	}
	for _, a := range rec.Artifacts {
		s.artifacts[a.UserID] = append(s.artifacts[a.UserID], cloneArtifact(a))
	}
	return nil
}

func cloneArtifact(a *core.Artifact) *core.Artifact {
	cp := *a
	if a.Payload != nil {
		cp.Payload = append([]byte(nil), a.Payload...)
	}
	return &cp
}
