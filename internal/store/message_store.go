package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"carechat/internal/apperr"
	"carechat/internal/models"
)

// CreateMessage inserts exactly one message row. The thread id is not
// checked against the threads table; callers may write into threads that
// were never explicitly created.
func (s *Service) CreateMessage(ctx context.Context, threadID string, role models.Role, content string) (*models.Message, error) {
	if threadID == "" {
		return nil, apperr.New(apperr.KindValidation, "thread id is required")
	}
	now := time.Now().UTC()
	msg := &models.Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ThreadID, string(msg.Role), msg.Content, formatTime(now),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "create message", err)
	}
	return msg, nil
}

// ListMessages returns a thread's messages oldest first. An unknown thread
// id yields an empty slice, not an error: this storage layout cannot tell
// "no such thread" apart from "no messages yet", and the API contract keeps
// both as 200 with an empty array.
func (s *Service) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	if threadID == "" {
		return nil, apperr.New(apperr.KindValidation, "thread id is required")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, role, content, created_at FROM messages
		WHERE thread_id = ? ORDER BY created_at ASC`,
		threadID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "list messages", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		var role, createdAt string
		if err := rows.Scan(&m.ID, &m.ThreadID, &role, &m.Content, &createdAt); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "scan message", err)
		}
		m.Role = models.Role(role)
		m.CreatedAt = parseTime(createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "list messages", err)
	}
	return messages, nil
}
