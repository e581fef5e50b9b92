package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mason-sapiens/sapiens-mvp/core"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements core.Store on a single SQLite file. State records
// are stored as JSON documents; transition and conversation rows are typed
// columns so they stay queryable from the shell.
type SQLiteStore struct {
	db *sql.DB
}

var _ core.Store = (*SQLiteStore)(nil)

// NewSQLite opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent readers during writes.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS user_states (
		user_id TEXT PRIMARY KEY,
		state_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS state_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		accepted INTEGER NOT NULL,
		reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_transitions_user ON state_transitions(user_id, id);

	CREATE TABLE IF NOT EXISTS conversation_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		actor TEXT NOT NULL,
		agent_name TEXT,
		payload TEXT NOT NULL,
		state_at_time TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_log_user ON conversation_log(user_id, id);

	CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		revision INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_user ON artifacts(user_id);
	CREATE INDEX IF NOT EXISTS idx_artifacts_kind ON artifacts(user_id, kind, revision);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetState loads the user's state record.
func (s *SQLiteStore) GetState(ctx context.Context, userID string) (*core.UserState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM user_states WHERE user_id = ?`, userID)

	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %q", core.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan state row: %v", core.ErrPersistence, err)
	}

	var state core.UserState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("%w: decode state: %v", core.ErrPersistence, err)
	}
	return &state, nil
}

// PutState creates or replaces the state record.
func (s *SQLiteStore) PutState(ctx context.Context, state *core.UserState) error {
	return s.putState(ctx, s.db, state)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) putState(ctx context.Context, ex execer, state *core.UserState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: encode state: %v", core.ErrPersistence, err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO user_states (user_id, state_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`,
		state.UserID, string(raw), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("%w: upsert state: %v", core.ErrPersistence, err)
	}
	return nil
}

// AppendTransition records a transition attempt.
func (s *SQLiteStore) AppendTransition(ctx context.Context, tr core.StateTransition) error {
	return s.appendTransition(ctx, s.db, tr)
}

func (s *SQLiteStore) appendTransition(ctx context.Context, ex execer, tr core.StateTransition) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO state_transitions (user_id, from_state, to_state, timestamp, accepted, reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tr.UserID, string(tr.FromState), string(tr.ToState),
		tr.Timestamp.UnixNano(), boolToInt(tr.Accepted), tr.Reason)
	if err != nil {
		return fmt.Errorf("%w: insert transition: %v", core.ErrPersistence, err)
	}
	return nil
}

// ListTransitions returns the user's transition log in append order.
func (s *SQLiteStore) ListTransitions(ctx context.Context, userID string) ([]core.StateTransition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, from_state, to_state, timestamp, accepted, reason
		FROM state_transitions WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: query transitions: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	var out []core.StateTransition
	for rows.Next() {
		var tr core.StateTransition
		var from, to string
		var ts int64
		var accepted int
		var reason sql.NullString
		if err := rows.Scan(&tr.UserID, &from, &to, &ts, &accepted, &reason); err != nil {
			return nil, fmt.Errorf("%w: scan transition row: %v", core.ErrPersistence, err)
		}
		tr.FromState = core.Phase(from)
		tr.ToState = core.Phase(to)
		tr.Timestamp = time.Unix(0, ts).UTC()
		tr.Accepted = accepted != 0
		tr.Reason = reason.String
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate transitions: %v", core.ErrPersistence, err)
	}
	return out, nil
}

// AppendEntry records a conversation log entry.
func (s *SQLiteStore) AppendEntry(ctx context.Context, entry core.ConversationLogEntry) error {
	return s.appendEntry(ctx, s.db, entry)
}

func (s *SQLiteStore) appendEntry(ctx context.Context, ex execer, entry core.ConversationLogEntry) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO conversation_log (user_id, timestamp, actor, agent_name, payload, state_at_time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.UserID, entry.Timestamp.UnixNano(), string(entry.Actor),
		entry.AgentName, entry.Payload, string(entry.StateAtTime))
	if err != nil {
		return fmt.Errorf("%w: insert log entry: %v", core.ErrPersistence, err)
	}
	return nil
}

// ListEntries returns the user's conversation log in append order.
func (s *SQLiteStore) ListEntries(ctx context.Context, userID string) ([]core.ConversationLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, timestamp, actor, agent_name, payload, state_at_time
		FROM conversation_log WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: query log entries: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	var out []core.ConversationLogEntry
	for rows.Next() {
		var e core.ConversationLogEntry
		var ts int64
		var actor, state string
		var agentName sql.NullString
		if err := rows.Scan(&e.UserID, &ts, &actor, &agentName, &e.Payload, &state); err != nil {
			return nil, fmt.Errorf("%w: scan log row: %v", core.ErrPersistence, err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.Actor = core.Actor(actor)
		e.AgentName = agentName.String
		e.StateAtTime = core.Phase(state)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate log entries: %v", core.ErrPersistence, err)
	}
	return out, nil
}

// SaveArtifact inserts an artifact row. Saves never overwrite.
func (s *SQLiteStore) SaveArtifact(ctx context.Context, a *core.Artifact) error {
	return s.saveArtifact(ctx, s.db, a)
}

func (s *SQLiteStore) saveArtifact(ctx context.Context, ex execer, a *core.Artifact) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO artifacts (id, user_id, kind, revision, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, string(a.Kind), a.Revision,
		a.CreatedAt.UnixNano(), string(a.Payload))
	if err != nil {
		return fmt.Errorf("%w: insert artifact: %v", core.ErrPersistence, err)
	}
	return nil
}

// GetArtifact returns the artifact by id.
func (s *SQLiteStore) GetArtifact(ctx context.Context, userID, artifactID string) (*core.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, kind, revision, created_at, payload
		FROM artifacts WHERE user_id = ? AND id = ?`, userID, artifactID)
	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: artifact %q", core.ErrNotFound, artifactID)
	}
	return a, err
}

// LatestArtifact returns the highest-revision artifact of the kind.
func (s *SQLiteStore) LatestArtifact(ctx context.Context, userID string, kind core.ArtifactKind) (*core.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, kind, revision, created_at, payload
		FROM artifacts WHERE user_id = ? AND kind = ?
		ORDER BY revision DESC, rowid DESC LIMIT 1`, userID, string(kind))
	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no %s artifact for user %q", core.ErrNotFound, kind, userID)
	}
	return a, err
}

// ListArtifacts returns all artifact rows for the user in insertion order.
func (s *SQLiteStore) ListArtifacts(ctx context.Context, userID string) ([]*core.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, revision, created_at, payload
		FROM artifacts WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: query artifacts: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	var out []*core.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate artifacts: %v", core.ErrPersistence, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*core.Artifact, error) {
	var a core.Artifact
	var kind, payload string
	var createdAt int64
	err := row.Scan(&a.ID, &a.UserID, &kind, &a.Revision, &createdAt, &payload)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan artifact row: %v", core.ErrPersistence, err)
	}
	a.Kind = core.ArtifactKind(kind)
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	a.Payload = json.RawMessage(payload)
	return &a, nil
}

// CommitTurn applies the whole record in one transaction. Either every write
// of the turn is durable or none is.
func (s *SQLiteStore) CommitTurn(ctx context.Context, rec core.TurnRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", core.ErrPersistence, err)
	}
	defer tx.Rollback()

	if rec.State != nil {
		if err := s.putState(ctx, tx, rec.State); err != nil {
			return err
		}
	}
	if rec.Transition != nil {
		if err := s.appendTransition(ctx, tx, *rec.Transition); err != nil {
			return err
		}
	}
	for _, e := range rec.Entries {
		if err := s.appendEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, a := range rec.Artifacts {
		if err := s.saveArtifact(ctx, tx, a); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit turn: %v", core.ErrPersistence, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
