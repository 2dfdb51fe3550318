package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keywarden/keywarden/internal/domain/key"
	"go.uber.org/zap"
)

type KeyRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewKeyRepository(db *pgxpool.Pool, logger *zap.Logger) *KeyRepository {
	return &KeyRepository{
		db:     db,
		logger: logger.Named("KeyRepository"),
	}
}

var _ key.Repository = (*KeyRepository)(nil)

const keyColumns = `
        key, owner_user_id, hwid, active, created_at, expires_at,
        redeemed_at, created_by, blacklisted_by, blacklisted_at
`

func (r *KeyRepository) CreateBatch(ctx context.Context, keys []*key.Key) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to begin key batch transaction", zap.Error(err))
		return fmt.Errorf("database error starting batch: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO keys (key, active, created_at, expires_at, created_by)
        VALUES ($1, $2, $3, $4, $5)
    `
	for _, k := range keys {
		if _, err := tx.Exec(ctx, query, k.Key, k.Active, k.CreatedAt, k.ExpiresAt, k.CreatedBy); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				r.logger.Warn("Duplicate key token in batch insert", zap.String("key", k.Key))
				return fmt.Errorf("%w: %s", key.ErrDuplicate, k.Key)
			}
			r.logger.Error("Failed to insert key in batch", zap.String("key", k.Key), zap.Error(err))
			return fmt.Errorf("database error on batch insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit key batch", zap.Error(err))
		return fmt.Errorf("database error committing batch: %w", err)
	}

	r.logger.Info("Key batch persisted", zap.Int("count", len(keys)))
	return nil
}

func (r *KeyRepository) FindByKey(ctx context.Context, token string) (*key.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM keys WHERE key = $1`

	row := r.db.QueryRow(ctx, query, token)
	return r.scanKey(row)
}

func (r *KeyRepository) FindByOwner(ctx context.Context, ownerUserID string) ([]*key.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM keys WHERE owner_user_id = $1 ORDER BY redeemed_at ASC`

	rows, err := r.db.Query(ctx, query, ownerUserID)
	if err != nil {
		r.logger.Error("Failed to query keys by owner", zap.String("owner", ownerUserID), zap.Error(err))
		return nil, fmt.Errorf("database error on find by owner: %w", err)
	}
	defer rows.Close()

	return r.collectKeys(rows)
}

func (r *KeyRepository) List(ctx context.Context) ([]*key.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM keys ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query list of keys", zap.Error(err))
		return nil, fmt.Errorf("database error on list keys: %w", err)
	}
	defer rows.Close()

	return r.collectKeys(rows)
}

// ClaimOwner is the redemption commit point. The WHERE clause is the
// compare-and-swap that closes the double-redemption race: the owner
// is assigned only while it is still null.
func (r *KeyRepository) ClaimOwner(ctx context.Context, token, ownerUserID string, redeemedAt time.Time) error {
	query := `
        UPDATE keys SET owner_user_id = $2, redeemed_at = $3
        WHERE key = $1 AND owner_user_id IS NULL AND active = TRUE
    `

	cmdTag, err := r.db.Exec(ctx, query, token, ownerUserID, redeemedAt)
	if err != nil {
		r.logger.Error("Failed to claim key owner", zap.String("key", token), zap.Error(err))
		return fmt.Errorf("database error on claim owner: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return key.ErrNotClaimed
	}
	return nil
}

// BindHwid assigns the hwid only while it is still null, arbitrating
// two devices racing to bind the same key.
func (r *KeyRepository) BindHwid(ctx context.Context, token, hwid string) error {
	query := `
        UPDATE keys SET hwid = $2
        WHERE key = $1 AND hwid IS NULL AND active = TRUE
    `

	cmdTag, err := r.db.Exec(ctx, query, token, hwid)
	if err != nil {
		r.logger.Error("Failed to bind hwid", zap.String("key", token), zap.Error(err))
		return fmt.Errorf("database error on bind hwid: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return key.ErrNotBound
	}
	return nil
}

func (r *KeyRepository) ClearHwid(ctx context.Context, token string) error {
	query := `UPDATE keys SET hwid = NULL WHERE key = $1 AND active = TRUE`

	cmdTag, err := r.db.Exec(ctx, query, token)
	if err != nil {
		r.logger.Error("Failed to clear hwid", zap.String("key", token), zap.Error(err))
		return fmt.Errorf("database error on clear hwid: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return key.ErrNotModified
	}
	return nil
}

func (r *KeyRepository) Deactivate(ctx context.Context, token, actorUserID string, at time.Time) error {
	query := `
        UPDATE keys SET active = FALSE, blacklisted_by = $2, blacklisted_at = $3
        WHERE key = $1 AND active = TRUE
    `

	cmdTag, err := r.db.Exec(ctx, query, token, actorUserID, at)
	if err != nil {
		r.logger.Error("Failed to deactivate key", zap.String("key", token), zap.Error(err))
		return fmt.Errorf("database error on deactivate: %w", err)
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish "already blacklisted" from "no such key".
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM keys WHERE key = $1)`, token).Scan(&exists); err != nil {
		r.logger.Error("Failed to check key existence after deactivate", zap.String("key", token), zap.Error(err))
		return fmt.Errorf("database error on deactivate existence check: %w", err)
	}
	if !exists {
		return key.ErrNotFound
	}
	return key.ErrNotModified
}

func (r *KeyRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM keys`).Scan(&count); err != nil {
		r.logger.Error("Failed to count keys", zap.Error(err))
		return 0, fmt.Errorf("database error on count keys: %w", err)
	}
	return count, nil
}

func (r *KeyRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM keys WHERE active = TRUE`).Scan(&count); err != nil {
		r.logger.Error("Failed to count active keys", zap.Error(err))
		return 0, fmt.Errorf("database error on count active keys: %w", err)
	}
	return count, nil
}

func (r *KeyRepository) scanKey(row pgx.Row) (*key.Key, error) {
	var k key.Key
	err := row.Scan(
		&k.Key,
		&k.OwnerUserID,
		&k.Hwid,
		&k.Active,
		&k.CreatedAt,
		&k.ExpiresAt,
		&k.RedeemedAt,
		&k.CreatedBy,
		&k.BlacklistedBy,
		&k.BlacklistedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, key.ErrNotFound
		}
		r.logger.Error("Failed to scan key row", zap.Error(err))
		return nil, fmt.Errorf("database scan error: %w", err)
	}
	return &k, nil
}

func (r *KeyRepository) collectKeys(rows pgx.Rows) ([]*key.Key, error) {
	keys := make([]*key.Key, 0)
	for rows.Next() {
		var k key.Key
		err := rows.Scan(
			&k.Key,
			&k.OwnerUserID,
			&k.Hwid,
			&k.Active,
			&k.CreatedAt,
			&k.ExpiresAt,
			&k.RedeemedAt,
			&k.CreatedBy,
			&k.BlacklistedBy,
			&k.BlacklistedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan key row during list", zap.Error(err))
			return nil, fmt.Errorf("database scan error during list: %w", err)
		}
		keys = append(keys, &k)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating key rows", zap.Error(err))
		return nil, fmt.Errorf("database iteration error: %w", err)
	}
	return keys, nil
}
