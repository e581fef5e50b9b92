package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mason-sapiens/sapiens-mvp/core"
	"github.com/mason-sapiens/sapiens-mvp/internal/util"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSchemaSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := NewSQLite(path)
	require.NoError(t, err)
	state := core.NewUserState("user-1")
	require.NoError(t, s.PutState(ctx, state))
	art, err := core.NewArtifact(util.NewID(), "user-1", core.ArtifactProject, 1, core.Project{Title: "p"})
	require.NoError(t, err)
	require.NoError(t, s.SaveArtifact(ctx, art))
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetState(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)

	all, err := reopened.ListArtifacts(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStateRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.GetState(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	state := core.NewUserState("user-1")
	state.TargetRole = "data analyst"
	state.TargetDomain = "fintech"
	state.Revisions[core.PhaseProblemDefinition] = 2
	require.NoError(t, s.PutState(ctx, state))

	got, err := s.GetState(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "data analyst", got.TargetRole)
	assert.Equal(t, core.PhaseOnboarding, got.CurrentState)
	assert.Equal(t, 2, got.Revision(core.PhaseProblemDefinition))

	// upsert replaces
	state.CurrentState = core.PhaseProjectGeneration
	require.NoError(t, s.PutState(ctx, state))
	got, err = s.GetState(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseProjectGeneration, got.CurrentState)
}

func TestSQLiteCommitTurnAtomic(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	state := core.NewUserState("user-1")
	state.CurrentState = core.PhaseProjectGeneration
	art, err := core.NewArtifact(util.NewID(), "user-1", core.ArtifactProject, 1, core.Project{Title: "p"})
	require.NoError(t, err)

	rec := core.TurnRecord{
		State: state,
		Transition: &core.StateTransition{
			UserID:    "user-1",
			FromState: core.PhaseOnboarding,
			ToState:   core.PhaseProjectGeneration,
			Timestamp: util.Now(),
			Accepted:  true,
			Reason:    "onboarding complete",
		},
		Entries: []core.ConversationLogEntry{
			core.UserEntry("user-1", "hello", core.PhaseOnboarding),
			core.AgentEntry("user-1", "generator", "proposal", core.PhaseProjectGeneration),
		},
		Artifacts: []*core.Artifact{art},
	}
	require.NoError(t, s.CommitTurn(ctx, rec))

	transitions, err := s.ListTransitions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, core.PhaseOnboarding, transitions[0].FromState)
	assert.Equal(t, "onboarding complete", transitions[0].Reason)

	entries, err := s.ListEntries(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, core.ActorUser, entries[0].Actor)
	assert.Equal(t, "generator", entries[1].AgentName)

	got, err := s.GetArtifact(ctx, "user-1", art.ID)
	require.NoError(t, err)
	var p core.Project
	require.NoError(t, got.Decode(&p))
	assert.Equal(t, "p", p.Title)
}

func TestSQLiteLatestArtifact(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for rev := 1; rev <= 3; rev++ {
		art, err := core.NewArtifact(util.NewID(), "user-1", core.ArtifactProblem, rev,
			core.ProblemDefinition{Statement: "v"})
		require.NoError(t, err)
		require.NoError(t, s.SaveArtifact(ctx, art))
	}

	latest, err := s.LatestArtifact(ctx, "user-1", core.ArtifactProblem)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Revision)

	all, err := s.ListArtifacts(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.LatestArtifact(ctx, "user-1", core.ArtifactResume)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
