package models

import "time"

// Thread groups an ordered conversation. LastMessage is a denormalized
// convenience value filled in when listing; it is never stored as a column.
type Thread struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	LastMessage string    `json:"lastMessage,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
