package service

import (
	"context"
	"time"
)

const (
	AuditActionCreate    = "keys.create"
	AuditActionRedeem    = "keys.redeem"
	AuditActionBind      = "keys.hwid_bind"
	AuditActionReset     = "keys.hwid_reset"
	AuditActionBlacklist = "keys.blacklist"
)

// AuditEvent is the append-only side-channel record of a lifecycle
// mutation. The engine writes these best-effort and never reads them
// back.
type AuditEvent struct {
	Action     string    `json:"action"`
	Key        string    `json:"key,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AuditRecorder accepts audit events. The production implementation
// enqueues an asynq task; failures are logged by the caller and never
// fail the originating operation.
type AuditRecorder interface {
	Record(ctx context.Context, e AuditEvent) error
}

// NopAuditRecorder discards events. Used by tests and the genkeys CLI.
type NopAuditRecorder struct{}

func (NopAuditRecorder) Record(ctx context.Context, e AuditEvent) error { return nil }
