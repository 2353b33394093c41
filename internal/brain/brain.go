package brain

import (
	"context"
	"errors"
)

// Role tags a message in the completion request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the ordered sequence sent to the model.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ErrUnavailable covers transport faults, vendor error statuses and
// malformed responses.
var ErrUnavailable = errors.New("language model unavailable")

// ErrEmptyCompletion marks a well-formed vendor response that carries no
// usable completion.
var ErrEmptyCompletion = errors.New("language model returned no completion")

// Client produces a reply for a persona-conditioned message sequence. The
// user id is carried for logging only.
type Client interface {
	Complete(ctx context.Context, userID int64, msgs []Message) (string, error)
}
