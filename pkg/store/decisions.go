package store

import (
	"context"
	"database/sql"
	"fmt"

	"navi/pkg/protocol"
)

// recentDecisionLimit bounds the shared context injected into new children.
const recentDecisionLimit = 5

// LogDecision appends a decision to the root-scoped log and returns its ID.
func (s *Store) LogDecision(ctx context.Context, d protocol.Decision) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (root_id, session_id, decision, category, rationale)
		 VALUES (?, ?, ?, ?, ?)`,
		d.RootID, d.SessionID, d.Decision, d.Category, d.Rationale)
	if err != nil {
		return 0, fmt.Errorf("log decision for %s: %w", d.SessionID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("decision id: %w", err)
	}
	return id, nil
}

// RecentDecisions returns the newest decisions under a root session,
// most recent first. limit <= 0 uses the default ambient-context limit.
func (s *Store) RecentDecisions(ctx context.Context, rootID string, limit int) ([]protocol.Decision, error) {
	if limit <= 0 {
		limit = recentDecisionLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, root_id, session_id, decision, COALESCE(category,''), COALESCE(rationale,''), created_at
		 FROM decisions WHERE root_id = ? ORDER BY id DESC LIMIT ?`,
		rootID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent decisions for %s: %w", rootID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []protocol.Decision
	for rows.Next() {
		var d protocol.Decision
		if err := rows.Scan(&d.ID, &d.RootID, &d.SessionID, &d.Decision, &d.Category, &d.Rationale, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}

// SaveDeliverable records a child's final deliverable and returns its ID.
func (s *Store) SaveDeliverable(ctx context.Context, d protocol.Deliverable) (int64, error) {
	artifacts := d.Artifacts
	if artifacts == "" {
		artifacts = "[]"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO deliverables (session_id, type, summary, content, artifacts)
		 VALUES (?, ?, ?, ?, ?)`,
		d.SessionID, d.Type, d.Summary, d.Content, artifacts)
	if err != nil {
		return 0, fmt.Errorf("save deliverable for %s: %w", d.SessionID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("deliverable id: %w", err)
	}
	return id, nil
}

// LatestDeliverable returns a session's most recent deliverable, or nil when
// the session has not delivered.
func (s *Store) LatestDeliverable(ctx context.Context, sessionID string) (*protocol.Deliverable, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, type, summary, content, artifacts, created_at
		 FROM deliverables WHERE session_id = ? ORDER BY id DESC LIMIT 1`,
		sessionID)

	var d protocol.Deliverable
	err := row.Scan(&d.ID, &d.SessionID, &d.Type, &d.Summary, &d.Content, &d.Artifacts, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest deliverable for %s: %w", sessionID, err)
	}
	return &d, nil
}
