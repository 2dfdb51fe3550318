package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keywarden/keywarden/internal/service"
	"go.uber.org/zap"
)

// AuditRepository appends lifecycle audit events. Append-only: nothing
// in the engine ever reads these rows back.
type AuditRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAuditRepository(db *pgxpool.Pool, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger.Named("AuditRepository"),
	}
}

func (r *AuditRepository) Append(ctx context.Context, e service.AuditEvent) error {
	query := `
        INSERT INTO audit_events (id, action, key, user_id, actor_id, occurred_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `

	if _, err := r.db.Exec(ctx, query, uuid.New(), e.Action, e.Key, e.UserID, e.ActorID, e.OccurredAt); err != nil {
		r.logger.Error("Failed to append audit event", zap.String("action", e.Action), zap.Error(err))
		return fmt.Errorf("database error on append audit event: %w", err)
	}
	return nil
}
