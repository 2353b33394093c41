package history

import (
	"context"
	"time"
)

// Role tags one side of a persisted exchange.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one persisted chat message. Rows are immutable once written.
type Turn struct {
	ID        string
	UserID    int64
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Store persists conversation history keyed by Telegram user id.
type Store interface {
	// Recent returns at most limit turns for the user, ascending by
	// creation time.
	Recent(ctx context.Context, userID int64, limit int) ([]Turn, error)
	// AppendExchange records the user turn and the assistant reply as one
	// logical append. A reader never observes the user row without the
	// assistant row.
	AppendExchange(ctx context.Context, userID int64, userText, assistantText string) error
	Close() error
}
