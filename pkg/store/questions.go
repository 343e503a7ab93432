package store

import (
	"context"
	"fmt"

	"navi/pkg/protocol"
)

// SaveQuestion persists a pending ask_user_question request so it survives a
// client restart. Upsert: a re-registered request overwrites its payload.
func (s *Store) SaveQuestion(ctx context.Context, requestID, sessionID, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (request_id, session_id, payload) VALUES (?, ?, ?)
		 ON CONFLICT(request_id) DO UPDATE SET payload = excluded.payload`,
		requestID, sessionID, payload)
	if err != nil {
		return fmt.Errorf("save question %s: %w", requestID, err)
	}
	return nil
}

// DeleteQuestion removes a pending question once resolved. Deleting an
// unknown request is a no-op.
func (s *Store) DeleteQuestion(ctx context.Context, requestID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE request_id = ?`, requestID); err != nil {
		return fmt.Errorf("delete question %s: %w", requestID, err)
	}
	return nil
}

// PendingQuestions returns every unresolved question, oldest first.
func (s *Store) PendingQuestions(ctx context.Context) ([]protocol.QuestionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, session_id, payload, created_at FROM questions ORDER BY created_at, request_id`)
	if err != nil {
		return nil, fmt.Errorf("pending questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []protocol.QuestionRow
	for rows.Next() {
		var q protocol.QuestionRow
		if err := rows.Scan(&q.RequestID, &q.SessionID, &q.Payload, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}
