package memstorage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/keywarden/keywarden/internal/domain/key"
)

// KeyRepository is an in-memory key store implementing the same
// conditional-update contract as the Postgres repository, so the
// lifecycle engine's race handling is exercisable in-process.
type KeyRepository struct {
	mu   sync.Mutex
	keys map[string]*key.Key
}

func NewKeyRepository() *KeyRepository {
	return &KeyRepository{
		keys: make(map[string]*key.Key),
	}
}

var _ key.Repository = (*KeyRepository)(nil)

func (r *KeyRepository) CreateBatch(ctx context.Context, keys []*key.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// All-or-nothing: reject the whole batch before writing anything.
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := r.keys[k.Key]; ok || seen[k.Key] {
			return fmt.Errorf("%w: %s", key.ErrDuplicate, k.Key)
		}
		seen[k.Key] = true
	}
	for _, k := range keys {
		cp := *k
		r.keys[k.Key] = &cp
	}
	return nil
}

func (r *KeyRepository) FindByKey(ctx context.Context, token string) (*key.Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[token]
	if !ok {
		return nil, key.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (r *KeyRepository) FindByOwner(ctx context.Context, ownerUserID string) ([]*key.Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*key.Key, 0)
	for _, k := range r.keys {
		if k.OwnerUserID.Valid && k.OwnerUserID.String == ownerUserID {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RedeemedAt.Time.Before(out[j].RedeemedAt.Time)
	})
	return out, nil
}

func (r *KeyRepository) List(ctx context.Context) ([]*key.Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*key.Key, 0, len(r.keys))
	for _, k := range r.keys {
		cp := *k
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *KeyRepository) ClaimOwner(ctx context.Context, token, ownerUserID string, redeemedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[token]
	if !ok || k.OwnerUserID.Valid || !k.Active {
		return key.ErrNotClaimed
	}
	k.OwnerUserID = sql.NullString{String: ownerUserID, Valid: true}
	k.RedeemedAt = sql.NullTime{Time: redeemedAt, Valid: true}
	return nil
}

func (r *KeyRepository) BindHwid(ctx context.Context, token, hwid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[token]
	if !ok || k.Hwid.Valid || !k.Active {
		return key.ErrNotBound
	}
	k.Hwid = sql.NullString{String: hwid, Valid: true}
	return nil
}

func (r *KeyRepository) ClearHwid(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[token]
	if !ok || !k.Active {
		return key.ErrNotModified
	}
	k.Hwid = sql.NullString{}
	return nil
}

func (r *KeyRepository) Deactivate(ctx context.Context, token, actorUserID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[token]
	if !ok {
		return key.ErrNotFound
	}
	if !k.Active {
		return key.ErrNotModified
	}
	k.Active = false
	k.BlacklistedBy = sql.NullString{String: actorUserID, Valid: true}
	k.BlacklistedAt = sql.NullTime{Time: at, Valid: true}
	return nil
}

func (r *KeyRepository) CountAll(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.keys)), nil
}

func (r *KeyRepository) CountActive(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, k := range r.keys {
		if k.Active {
			n++
		}
	}
	return n, nil
}
