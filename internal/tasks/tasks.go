package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/keywarden/keywarden/internal/service"
)

const (
	TypeAuditEvent   = "audit:event:append"
	TypeExpiryReport = "keys:expiry:report"
)

func NewAuditEventTask(e service.AuditEvent, opts ...asynq.Option) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAuditEvent, payloadBytes, opts...), nil
}

type ExpiryReportPayload struct{}

func NewExpiryReportTask(opts ...asynq.Option) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(ExpiryReportPayload{})
	if err != nil {
		return nil, err
	}

	uniqueOpt := asynq.Unique(1 * time.Hour)
	allOpts := append(opts, uniqueOpt)

	return asynq.NewTask(TypeExpiryReport, payloadBytes, allOpts...), nil
}
