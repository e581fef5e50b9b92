package core

import "context"

// StateStore persists the single UserState record per user.
type StateStore interface {
	// GetState returns the state record for the user or ErrNotFound.
	GetState(ctx context.Context, userID string) (*UserState, error)

	// PutState creates or replaces the state record.
	PutState(ctx context.Context, state *UserState) error
}

// AuditLog is the append-only store of conversation entries and transition
// records. Appends must be durable before returning, and reads for the same
// user must observe a preceding successful append.
type AuditLog interface {
	AppendEntry(ctx context.Context, entry ConversationLogEntry) error
	AppendTransition(ctx context.Context, tr StateTransition) error

	// ListEntries returns the user's conversation log in append order.
	ListEntries(ctx context.Context, userID string) ([]ConversationLogEntry, error)

	// ListTransitions returns the user's transition log in append order.
	ListTransitions(ctx context.Context, userID string) ([]StateTransition, error)
}

// ArtifactStore persists domain artifacts. Saves always insert; revisions
// supersede earlier rows but never remove them.
type ArtifactStore interface {
	SaveArtifact(ctx context.Context, a *Artifact) error

	// GetArtifact returns the artifact by id or ErrNotFound.
	GetArtifact(ctx context.Context, userID, artifactID string) (*Artifact, error)

	// LatestArtifact returns the highest-revision artifact of a kind for
	// the user, or ErrNotFound.
	LatestArtifact(ctx context.Context, userID string, kind ArtifactKind) (*Artifact, error)

	// ListArtifacts returns all artifact rows for the user in insertion
	// order, including superseded revisions.
	ListArtifacts(ctx context.Context, userID string) ([]*Artifact, error)
}

// TurnRecord bundles everything one request decided to persist: the updated
// state snapshot (nil when the turn left state untouched), at most one
// transition record, the conversation entries of the turn, and any artifacts
// produced.
type TurnRecord struct {
	State      *UserState
	Transition *StateTransition
	Entries    []ConversationLogEntry
	Artifacts  []*Artifact
}

// Store is the full persistence surface consumed by the orchestrator.
// CommitTurn must apply the whole record atomically: either every write in
// the turn is durable or none is. A CommitTurn error after a transition has
// been decided is fatal for the request.
type Store interface {
	StateStore
	AuditLog
	ArtifactStore

	CommitTurn(ctx context.Context, rec TurnRecord) error
}
