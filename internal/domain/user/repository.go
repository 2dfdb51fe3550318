package user

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("user not found")

type Repository interface {
	FindByID(ctx context.Context, userID string) (*User, error)

	// AppendKey upserts the user record and appends the token to the
	// user's key list, creating the record on first redemption.
	AppendKey(ctx context.Context, userID, token string) error

	// RecordHwidReset stamps the last reset time and increments the
	// audit counter.
	RecordHwidReset(ctx context.Context, userID string, at time.Time) error

	Count(ctx context.Context) (int64, error)
}
