package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/keywarden/keywarden/internal/service"
	"go.uber.org/zap"
)

// AuditAppender is the sink the audit task handler writes to.
type AuditAppender interface {
	Append(ctx context.Context, e service.AuditEvent) error
}

type AuditEventHandler struct {
	appender AuditAppender
	logger   *zap.Logger
}

func NewAuditEventHandler(appender AuditAppender, logger *zap.Logger) *AuditEventHandler {
	return &AuditEventHandler{
		appender: appender,
		logger:   logger.Named("AuditEventHandler"),
	}
}

func (h *AuditEventHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeAuditEvent {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var e service.AuditEvent
	if err := json.Unmarshal(t.Payload(), &e); err != nil {
		h.logger.Error("Failed to unmarshal audit event payload", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v", err)
	}

	if err := h.appender.Append(ctx, e); err != nil {
		h.logger.Error("Failed to append audit event", zap.String("action", e.Action), zap.Error(err))
		return fmt.Errorf("audit append error: %w", err)
	}

	h.logger.Debug("Audit event appended", zap.String("action", e.Action), zap.String("key", e.Key))
	return nil
}
