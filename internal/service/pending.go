package service

import (
	"context"
	"time"
)

// PendingReset bridges the two-step hwid-reset confirmation: the key
// the user picked in step one, held until the confirm or cancel in
// step two. Entries are ephemeral and expire after the configured
// window (5 minutes by default) whether or not the user ever confirms.
type PendingReset struct {
	SelectedKey string    `json:"selected_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// PendingResetStore holds at most one pending reset per user. Take
// removes and returns the entry; implementations must treat entries
// older than the window as absent so a stale confirm can never mutate
// a since-changed key.
type PendingResetStore interface {
	Put(ctx context.Context, userID string, p PendingReset) error
	Take(ctx context.Context, userID string) (PendingReset, bool, error)
	Delete(ctx context.Context, userID string) error
}
