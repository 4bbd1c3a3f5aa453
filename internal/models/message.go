package models

import "time"

// Role is the canonical message role vocabulary used everywhere inside the
// service. The legacy browser client speaks a second vocabulary ("sender",
// user/ai); translation happens only at the HTTP boundary.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Sender maps a canonical role onto the legacy sender scheme.
func (r Role) Sender() string {
	if r == RoleAssistant {
		return SenderAI
	}
	return SenderUser
}

// RoleFromSender maps a legacy sender value back onto the canonical role.
// Unknown values are treated as user input, matching the original client.
func RoleFromSender(sender string) Role {
	if sender == SenderAI {
		return RoleAssistant
	}
	return RoleUser
}

// ValidRole reports whether s is one of the canonical role values.
func ValidRole(s string) bool {
	switch Role(s) {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
