package store

import (
	"context"
	"fmt"
	"strings"

	"navi/pkg/protocol"
)

// LogEvent appends one row to the event log.
func (s *Store) LogEvent(ctx context.Context, typ, source, sessionID, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (type, source, session_id, payload) VALUES (?, ?, ?, ?)`,
		typ, source, sessionID, payload)
	if err != nil {
		return fmt.Errorf("log event %s: %w", typ, err)
	}
	return nil
}

// EventFilter narrows an event-log query. Zero values mean "no filter".
type EventFilter struct {
	Types     []string
	SessionID string
	Limit     int
}

// Events queries the event log, newest first.
func (s *Store) Events(ctx context.Context, f EventFilter) ([]protocol.EventRow, error) {
	var where []string
	var args []any
	if len(f.Types) > 0 {
		ph := make([]string, len(f.Types))
		for i, t := range f.Types {
			ph[i] = "?"
			args = append(args, t)
		}
		where = append(where, fmt.Sprintf("type IN (%s)", strings.Join(ph, ",")))
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}

	q := `SELECT id, type, source, COALESCE(session_id,''), COALESCE(payload,''), created_at FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []protocol.EventRow
	for rows.Next() {
		var e protocol.EventRow
		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &e.SessionID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
