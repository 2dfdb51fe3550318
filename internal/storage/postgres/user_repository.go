package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keywarden/keywarden/internal/domain/user"
	"go.uber.org/zap"
)

type UserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger.Named("UserRepository"),
	}
}

var _ user.Repository = (*UserRepository)(nil)

func (r *UserRepository) FindByID(ctx context.Context, userID string) (*user.User, error) {
	query := `
        SELECT user_id, keys, hwid_last_reset_at, hwid_reset_count
        FROM users
        WHERE user_id = $1
    `

	var u user.User
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&u.UserID,
		&u.Keys,
		&u.HwidLastResetAt,
		&u.HwidResetCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		r.logger.Error("Failed to scan user row", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("database scan error: %w", err)
	}
	return &u, nil
}

// AppendKey creates the user record lazily on first redemption and
// appends the token on every subsequent one.
func (r *UserRepository) AppendKey(ctx context.Context, userID, token string) error {
	query := `
        INSERT INTO users (user_id, keys, hwid_reset_count)
        VALUES ($1, ARRAY[$2::text], 0)
        ON CONFLICT (user_id)
        DO UPDATE SET keys = array_append(users.keys, $2::text)
    `

	if _, err := r.db.Exec(ctx, query, userID, token); err != nil {
		r.logger.Error("Failed to append key to user",
			zap.String("user_id", userID),
			zap.String("key", token),
			zap.Error(err),
		)
		return fmt.Errorf("database error on append key: %w", err)
	}
	return nil
}

func (r *UserRepository) RecordHwidReset(ctx context.Context, userID string, at time.Time) error {
	query := `
        UPDATE users
        SET hwid_last_reset_at = $2, hwid_reset_count = hwid_reset_count + 1
        WHERE user_id = $1
    `

	cmdTag, err := r.db.Exec(ctx, query, userID, at)
	if err != nil {
		r.logger.Error("Failed to record hwid reset", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("database error on record reset: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		r.logger.Error("Failed to count users", zap.Error(err))
		return 0, fmt.Errorf("database error on count users: %w", err)
	}
	return count, nil
}
