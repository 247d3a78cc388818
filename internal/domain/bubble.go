package domain

import "time"

// Role tags a chat bubble.
type Role string

const (
	// RoleUser marks a question typed by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a free-form answer or a guidance message.
	RoleAssistant Role = "assistant"
	// RoleRoutine marks a generated routine.
	RoleRoutine Role = "routine"
	// RolePending marks a placeholder waiting on the assistant.
	RolePending Role = "system-pending"
)

// Bubble is one entry of the chat log. Bubbles live only in memory.
type Bubble struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Pending reports whether the bubble still waits for a reply.
func (b Bubble) Pending() bool {
	return b.Role == RolePending
}
