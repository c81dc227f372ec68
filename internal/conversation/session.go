package conversation

import (
	"context"
	"slices"
	"time"
)

// Flow names a multi-step conversation.
type Flow string

// State is one step of exactly one flow.
type State string

// Frame is a suspended parent flow position.
type Frame struct {
	Flow  Flow  `json:"flow"`
	State State `json:"state"`
}

// Session is the per-user conversation context. Scratch holds the values
// collected by the active flow; it is zeroed whenever the flow changes and
// dropped with the session on end or cancel.
type Session[S any] struct {
	UserID    int64     `json:"user_id"`
	ChatID    int64     `json:"chat_id"`
	Flow      Flow      `json:"flow"`
	State     State     `json:"state"`
	Parents   []Frame   `json:"parents,omitempty"`
	Scratch   S         `json:"scratch"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Session[S]) clone() *Session[S] {
	cp := *s
	cp.Parents = slices.Clone(s.Parents)
	return &cp
}

// Store persists sessions. Load returns nil, nil when the user has none.
type Store[S any] interface {
	Load(ctx context.Context, userID int64) (*Session[S], error)
	Save(ctx context.Context, s *Session[S]) error
	Delete(ctx context.Context, userID int64) error
}
