package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"carechat/internal/apperr"
	"carechat/internal/models"
)

// CreateThread inserts a new thread and returns the stored row.
func (s *Service) CreateThread(ctx context.Context, title string) (*models.Thread, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.New(apperr.KindValidation, "title is required")
	}
	now := time.Now().UTC()
	thread := &models.Thread{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, title, created_at) VALUES (?, ?, ?)`,
		thread.ID, thread.Title, formatTime(now),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "create thread", fmt.Errorf("insert thread: %w", err))
	}
	return thread, nil
}

// ListThreads returns all threads, newest first. LastMessage is filled from
// the latest message of each thread when one exists.
func (s *Service) ListThreads(ctx context.Context) ([]models.Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.title, t.created_at,
			COALESCE((SELECT m.content FROM messages m
				WHERE m.thread_id = t.id
				ORDER BY m.created_at DESC LIMIT 1), '')
		FROM threads t
		ORDER BY t.created_at DESC`,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "list threads", err)
	}
	defer rows.Close()

	threads := make([]models.Thread, 0)
	for rows.Next() {
		var t models.Thread
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Title, &createdAt, &t.LastMessage); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "scan thread", err)
		}
		t.CreatedAt = parseTime(createdAt)
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "list threads", err)
	}
	return threads, nil
}
