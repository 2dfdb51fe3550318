package key

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("key not found")
	ErrDuplicate   = errors.New("key token already exists")
	ErrNotClaimed  = errors.New("key owner was not assigned")
	ErrNotBound    = errors.New("key hwid was not assigned")
	ErrNotModified = errors.New("key was not modified")
)

// Repository is the storage contract for key records.
//
// ClaimOwner, BindHwid and Deactivate are conditional updates: they
// mutate only when the guarded field still holds its expected prior
// value, and report the sentinel error above when another writer got
// there first. The lifecycle engine relies on that to serialize
// concurrent redemption and first-use binding without cross-document
// transactions.
type Repository interface {
	// CreateBatch inserts every key or none of them.
	CreateBatch(ctx context.Context, keys []*Key) error

	FindByKey(ctx context.Context, token string) (*Key, error)
	FindByOwner(ctx context.Context, ownerUserID string) ([]*Key, error)
	List(ctx context.Context) ([]*Key, error)

	// ClaimOwner sets the owner only if the key is currently unowned
	// and active. Returns ErrNotClaimed when the guard fails.
	ClaimOwner(ctx context.Context, token, ownerUserID string, redeemedAt time.Time) error

	// BindHwid sets the hwid only if it is currently null and the key
	// is active. Returns ErrNotBound when the guard fails.
	BindHwid(ctx context.Context, token, hwid string) error

	// ClearHwid removes the hwid binding on an active key.
	ClearHwid(ctx context.Context, token string) error

	// Deactivate blacklists the key only if it is currently active.
	// Returns ErrNotModified when the key was already inactive.
	Deactivate(ctx context.Context, token, actorUserID string, at time.Time) error

	CountAll(ctx context.Context) (int64, error)
	CountActive(ctx context.Context) (int64, error)
}
