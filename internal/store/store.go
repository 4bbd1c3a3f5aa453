package store

import (
	"database/sql"
	"time"
)

// timeLayout is fixed-width RFC3339 with nanoseconds so the TEXT column
// sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Service owns the on-disk representation of threads and messages. All
// access goes through parameterized statements; no other package touches
// the tables.
type Service struct {
	db *sql.DB
}

func New(db *sql.DB) *Service {
	return &Service{db: db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// tolerate rows written by the previous implementation
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
