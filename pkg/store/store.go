// Package store persists orchestrator state in SQLite: the session
// hierarchy, conversation messages, the append-only decision log, child
// deliverables, durable pending questions, and the event log. The
// orchestrator treats writes as fire-and-forget; it never blocks message
// routing on persistence.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"navi/pkg/protocol"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store wraps the orchestrator database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path with WAL journaling and
// initializes the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	s := &Store{db: db}
	if err := s.Init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle (for tests).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init executes the schema DDL. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, protocol.SchemaDDL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Sessions ---

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess protocol.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, parent_id, root_id, depth, role, task, status, runtime_session_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ParentID, sess.RootID, sess.Depth, sess.Role, sess.Task,
		string(sess.Status), sess.RuntimeSessionID)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession fetches one session. Returns SessionNotFoundError when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*protocol.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(parent_id,''), root_id, depth, COALESCE(role,''), COALESCE(task,''),
		        status, COALESCE(runtime_session_id,''), cost_usd, input_tokens, output_tokens,
		        created_at, updated_at
		 FROM sessions WHERE id = ?`, id)

	var sess protocol.Session
	var status string
	err := row.Scan(&sess.ID, &sess.ParentID, &sess.RootID, &sess.Depth, &sess.Role, &sess.Task,
		&status, &sess.RuntimeSessionID, &sess.CostUSD, &sess.InputTokens, &sess.OutputTokens,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &protocol.SessionNotFoundError{SessionID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	sess.Status = protocol.SessionStatus(status)
	return &sess, nil
}

// UpdateSessionStatus transitions a session's status.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status protocol.SessionStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("update session %s status: %w", id, err)
	}
	return nil
}

// SetRuntimeSession records the backing-runtime resume token. Set once,
// when the worker first reports it.
func (s *Store) SetRuntimeSession(ctx context.Context, id, token string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET runtime_session_id = ?, updated_at = datetime('now') WHERE id = ?`,
		token, id)
	if err != nil {
		return fmt.Errorf("set runtime session for %s: %w", id, err)
	}
	return nil
}

// AddSessionCost accumulates cost and token usage onto a session.
func (s *Store) AddSessionCost(ctx context.Context, id string, costUSD float64, inTokens, outTokens int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET cost_usd = cost_usd + ?, input_tokens = input_tokens + ?,
		        output_tokens = output_tokens + ?, updated_at = datetime('now')
		 WHERE id = ?`,
		costUSD, inTokens, outTokens, id)
	if err != nil {
		return fmt.Errorf("add cost to session %s: %w", id, err)
	}
	return nil
}

// ChildrenOf lists the direct children of a session, oldest first.
func (s *Store) ChildrenOf(ctx context.Context, parentID string) ([]protocol.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(parent_id,''), root_id, depth, COALESCE(role,''), COALESCE(task,''),
		        status, COALESCE(runtime_session_id,''), cost_usd, input_tokens, output_tokens,
		        created_at, updated_at
		 FROM sessions WHERE parent_id = ? ORDER BY created_at, id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", parentID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []protocol.Session
	for rows.Next() {
		var sess protocol.Session
		var status string
		if err := rows.Scan(&sess.ID, &sess.ParentID, &sess.RootID, &sess.Depth, &sess.Role, &sess.Task,
			&status, &sess.RuntimeSessionID, &sess.CostUSD, &sess.InputTokens, &sess.OutputTokens,
			&sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan child session: %w", err)
		}
		sess.Status = protocol.SessionStatus(status)
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}
	return out, nil
}

// ListSessions returns every session, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]protocol.Session, error) {
	q := `SELECT id, COALESCE(parent_id,''), root_id, depth, COALESCE(role,''), COALESCE(task,''),
	             status, COALESCE(runtime_session_id,''), cost_usd, input_tokens, output_tokens,
	             created_at, updated_at
	      FROM sessions ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []protocol.Session
	for rows.Next() {
		var sess protocol.Session
		var status string
		if err := rows.Scan(&sess.ID, &sess.ParentID, &sess.RootID, &sess.Depth, &sess.Role, &sess.Task,
			&status, &sess.RuntimeSessionID, &sess.CostUSD, &sess.InputTokens, &sess.OutputTokens,
			&sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Status = protocol.SessionStatus(status)
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// --- Messages ---

// AppendMessage records one conversation turn for a session.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)`,
		sessionID, role, content)
	if err != nil {
		return fmt.Errorf("append message to %s: %w", sessionID, err)
	}
	return nil
}

// MessagesFor returns a session's messages, oldest first.
func (s *Store) MessagesFor(ctx context.Context, sessionID string) ([]protocol.MessageRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("messages for %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []protocol.MessageRow
	for rows.Next() {
		var m protocol.MessageRow
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}
