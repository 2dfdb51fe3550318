package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/keywarden/keywarden/internal/domain/key"
	"go.uber.org/zap"
)

// ExpiryReportHandler periodically logs how many keys have passed
// their expiry. Expiry itself is evaluated at read time everywhere in
// the engine; this task is observability only and mutates nothing.
type ExpiryReportHandler struct {
	repo   key.Repository
	logger *zap.Logger
}

func NewExpiryReportHandler(repo key.Repository, logger *zap.Logger) *ExpiryReportHandler {
	return &ExpiryReportHandler{
		repo:   repo,
		logger: logger.Named("ExpiryReportHandler"),
	}
}

func (h *ExpiryReportHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeExpiryReport {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p ExpiryReportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal expiry report payload", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v", err)
	}

	keys, err := h.repo.List(ctx)
	if err != nil {
		h.logger.Error("Failed to list keys for expiry report", zap.Error(err))
		return fmt.Errorf("repository error listing keys: %w", err)
	}

	now := time.Now().UTC()
	var expired, active, redeemed int
	for _, k := range keys {
		if k.IsExpired(now) {
			expired++
		}
		if k.Active {
			active++
		}
		if k.IsRedeemed() {
			redeemed++
		}
	}

	h.logger.Info("Key expiry report",
		zap.Int("total", len(keys)),
		zap.Int("active", active),
		zap.Int("redeemed", redeemed),
		zap.Int("expired", expired),
	)
	return nil
}
