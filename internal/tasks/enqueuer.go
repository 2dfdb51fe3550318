package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/keywarden/keywarden/internal/service"
	"go.uber.org/zap"
)

// Enqueuer pushes audit events onto the asynq queue. It implements
// service.AuditRecorder so the engine stays unaware of asynq.
type Enqueuer struct {
	client *asynq.Client
	logger *zap.Logger
}

func NewEnqueuer(client *asynq.Client, logger *zap.Logger) *Enqueuer {
	return &Enqueuer{
		client: client,
		logger: logger.Named("AuditEnqueuer"),
	}
}

var _ service.AuditRecorder = (*Enqueuer)(nil)

func (e *Enqueuer) Record(ctx context.Context, event service.AuditEvent) error {
	task, err := NewAuditEventTask(event, asynq.Queue("low"))
	if err != nil {
		return fmt.Errorf("failed to build audit task: %w", err)
	}

	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue audit task: %w", err)
	}

	e.logger.Debug("Audit event enqueued", zap.String("task_id", info.ID), zap.String("action", event.Action))
	return nil
}
