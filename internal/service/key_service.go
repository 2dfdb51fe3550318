package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keywarden/keywarden/internal/domain/key"
	"github.com/keywarden/keywarden/internal/domain/user"
	"github.com/keywarden/keywarden/internal/ierr"
	"github.com/keywarden/keywarden/internal/metrics"
	"github.com/keywarden/keywarden/internal/util"
	"go.uber.org/zap"
)

// VerifyStatus is the outcome of a VerifyHwid call that passed all
// key-state preconditions.
type VerifyStatus string

const (
	VerifyRegistered    VerifyStatus = "registered"
	VerifyAccessGranted VerifyStatus = "access_granted"
	VerifyMismatch      VerifyStatus = "mismatch"
)

type Stats struct {
	TotalKeys  int64 `json:"totalKeys"`
	ActiveKeys int64 `json:"activeKeys"`
	TotalUsers int64 `json:"totalUsers"`
}

// KeyService is the key lifecycle engine. It is transport-agnostic and
// stateless between calls; every operation is a small sequence of
// store round-trips with mutations ordered so a crash between steps
// never leaves an invariant-violating state (owner before hwid,
// key before user).
type KeyService struct {
	keys     key.Repository
	users    user.Repository
	policy   *CooldownPolicy
	audit    AuditRecorder
	logger   *zap.Logger
	maxBatch int
	now      func() time.Time
}

func NewKeyService(keys key.Repository, users user.Repository, policy *CooldownPolicy, audit AuditRecorder, maxBatch int, logger *zap.Logger) *KeyService {
	return &KeyService{
		keys:     keys,
		users:    users,
		policy:   policy,
		audit:    audit,
		logger:   logger.Named("KeyService"),
		maxBatch: maxBatch,
		now:      time.Now,
	}
}

// SetClock overrides the service clock. Test hook only.
func (s *KeyService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateKeys mints a batch of fresh keys. durationDays <= 0 means the
// keys never expire. The batch is all-or-nothing: either every key is
// persisted or none are.
func (s *KeyService) CreateKeys(ctx context.Context, quantity, durationDays int, createdBy string) ([]*key.Key, error) {
	if quantity < 1 || quantity > s.maxBatch {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", ierr.ErrValidation, s.maxBatch)
	}

	now := s.now().UTC()

	var expiresAt sql.NullTime
	if durationDays > 0 {
		expiresAt = sql.NullTime{Time: now.Add(time.Duration(durationDays) * 24 * time.Hour), Valid: true}
	}

	batch := make([]*key.Key, 0, quantity)
	for i := 0; i < quantity; i++ {
		token, err := util.GenerateKeyToken()
		if err != nil {
			s.logger.Error("Failed to generate key token", zap.Error(err))
			return nil, fmt.Errorf("%w: token generation failed: %v", ierr.ErrInternalServer, err)
		}
		batch = append(batch, &key.Key{
			Key:       token,
			Active:    true,
			CreatedAt: now,
			ExpiresAt: expiresAt,
			CreatedBy: createdBy,
		})
	}

	if err := s.keys.CreateBatch(ctx, batch); err != nil {
		s.logger.Error("Failed to persist key batch", zap.Int("quantity", quantity), zap.Error(err))
		return nil, fmt.Errorf("repository error creating key batch: %w", err)
	}

	metrics.KeysCreated.Add(float64(quantity))
	s.recordAudit(ctx, AuditEvent{Action: AuditActionCreate, ActorID: createdBy, OccurredAt: now})

	s.logger.Info("Key batch created",
		zap.Int("quantity", quantity),
		zap.Int("duration_days", durationDays),
		zap.String("created_by", createdBy),
	)
	return batch, nil
}

// RedeemKey assigns an unowned key to the requester. Precondition
// order is fixed: existence, blacklist, prior redemption, expiry. The
// owner assignment itself is a conditional update so two simultaneous
// redeemers produce exactly one winner.
func (s *KeyService) RedeemKey(ctx context.Context, token, requesterUserID string) (*key.Key, error) {
	k, err := s.findKey(ctx, token)
	if err != nil {
		return nil, err
	}

	switch {
	case !k.Active:
		return nil, ErrKeyBlacklisted
	case k.IsRedeemed():
		return nil, ErrKeyAlreadyRedeemed
	case k.IsExpired(s.now()):
		return nil, ErrKeyExpired
	}

	redeemedAt := s.now().UTC()
	if err := s.keys.ClaimOwner(ctx, token, requesterUserID, redeemedAt); err != nil {
		if errors.Is(err, key.ErrNotClaimed) {
			// Lost the race to a concurrent redeemer.
			s.logger.Info("Concurrent redemption lost", zap.String("key", token), zap.String("requester", requesterUserID))
			return nil, ErrKeyAlreadyRedeemed
		}
		s.logger.Error("Failed to claim key owner", zap.String("key", token), zap.Error(err))
		return nil, fmt.Errorf("repository error claiming key: %w", err)
	}

	// Key first, user second. If this write fails the key is owned but
	// missing from the user's list, which is reconcilable; the reverse
	// order could list a key the user does not own.
	if err := s.users.AppendKey(ctx, requesterUserID, token); err != nil {
		s.logger.Error("Key claimed but user list update failed",
			zap.String("key", token),
			zap.String("user_id", requesterUserID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("repository error updating user record: %w", err)
	}

	k.OwnerUserID = sql.NullString{String: requesterUserID, Valid: true}
	k.RedeemedAt = sql.NullTime{Time: redeemedAt, Valid: true}

	metrics.Redemptions.WithLabelValues("success").Inc()
	s.recordAudit(ctx, AuditEvent{Action: AuditActionRedeem, Key: token, UserID: requesterUserID, OccurredAt: redeemedAt})

	s.logger.Info("Key redeemed", zap.String("key", token), zap.String("user_id", requesterUserID))
	return k, nil
}

// VerifyHwid is the trust boundary for the external client. The only
// mutation it may perform is the first-use binding; every other path
// is read-only, so it is safe to call on every application launch.
func (s *KeyService) VerifyHwid(ctx context.Context, token, hwid string) (VerifyStatus, error) {
	k, err := s.findKey(ctx, token)
	if err != nil {
		metrics.Verifications.WithLabelValues("invalid_key").Inc()
		return "", err
	}

	switch {
	case !k.Active:
		metrics.Verifications.WithLabelValues("blacklisted").Inc()
		return "", ErrKeyBlacklisted
	case k.IsExpired(s.now()):
		metrics.Verifications.WithLabelValues("expired").Inc()
		return "", ErrKeyExpired
	case !k.IsRedeemed():
		metrics.Verifications.WithLabelValues("not_redeemed").Inc()
		return "", ErrKeyNotRedeemed
	}

	if !k.Hwid.Valid {
		// Trust-on-first-use: bind whatever presents itself first. The
		// conditional update arbitrates two devices racing to bind.
		err := s.keys.BindHwid(ctx, token, hwid)
		if err == nil {
			metrics.Verifications.WithLabelValues(string(VerifyRegistered)).Inc()
			s.recordAudit(ctx, AuditEvent{Action: AuditActionBind, Key: token, UserID: k.OwnerUserID.String, OccurredAt: s.now().UTC()})
			s.logger.Info("Hwid bound to key", zap.String("key", token))
			return VerifyRegistered, nil
		}
		if !errors.Is(err, key.ErrNotBound) {
			s.logger.Error("Failed to bind hwid", zap.String("key", token), zap.Error(err))
			return "", fmt.Errorf("repository error binding hwid: %w", err)
		}

		// Another device won the binding race; fall through to compare
		// against whatever is now stored.
		k, err = s.findKey(ctx, token)
		if err != nil {
			return "", err
		}
		if !k.Hwid.Valid {
			return "", fmt.Errorf("%w: hwid bind race left key unbound", ierr.ErrInternalServer)
		}
	}

	if k.Hwid.String == hwid {
		metrics.Verifications.WithLabelValues(string(VerifyAccessGranted)).Inc()
		return VerifyAccessGranted, nil
	}

	metrics.Verifications.WithLabelValues(string(VerifyMismatch)).Inc()
	s.logger.Warn("Hwid mismatch", zap.String("key", token))
	return VerifyMismatch, nil
}

// ResetHwid clears the hwid binding on a key the requester owns,
// subject to the per-user cooldown resolved from the requester's
// privilege tiers. A requester holding no qualifying tier is denied
// regardless of cooldown state.
func (s *KeyService) ResetHwid(ctx context.Context, token, requesterUserID string, tiers []Tier) error {
	cooldown, err := s.policy.Resolve(tiers)
	if err != nil {
		return err
	}

	k, err := s.findKey(ctx, token)
	if err != nil {
		return err
	}
	if !k.Active {
		return ErrKeyBlacklisted
	}

	u, err := s.users.FindByID(ctx, requesterUserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrNotKeyOwner
		}
		s.logger.Error("Failed to load user record", zap.String("user_id", requesterUserID), zap.Error(err))
		return fmt.Errorf("repository error loading user: %w", err)
	}
	if !u.OwnsKey(token) {
		return ErrNotKeyOwner
	}

	if !k.Hwid.Valid {
		return ErrNoHwid
	}

	now := s.now().UTC()
	if u.HwidLastResetAt.Valid {
		elapsed := now.Sub(u.HwidLastResetAt.Time)
		if elapsed < cooldown {
			return &CooldownActiveError{Remaining: cooldown - elapsed}
		}
	}

	if err := s.keys.ClearHwid(ctx, token); err != nil {
		s.logger.Error("Failed to clear hwid", zap.String("key", token), zap.Error(err))
		return fmt.Errorf("repository error clearing hwid: %w", err)
	}
	if err := s.users.RecordHwidReset(ctx, requesterUserID, now); err != nil {
		s.logger.Error("Hwid cleared but reset stamp failed",
			zap.String("key", token),
			zap.String("user_id", requesterUserID),
			zap.Error(err),
		)
		return fmt.Errorf("repository error recording reset: %w", err)
	}

	metrics.HwidResets.Inc()
	s.recordAudit(ctx, AuditEvent{Action: AuditActionReset, Key: token, UserID: requesterUserID, OccurredAt: now})

	s.logger.Info("Hwid reset", zap.String("key", token), zap.String("user_id", requesterUserID))
	return nil
}

// Blacklist terminally deactivates a key. There is no unblacklist.
func (s *KeyService) Blacklist(ctx context.Context, token, actorUserID string) error {
	at := s.now().UTC()
	err := s.keys.Deactivate(ctx, token, actorUserID, at)
	if err != nil {
		switch {
		case errors.Is(err, key.ErrNotFound):
			return ErrKeyNotFound
		case errors.Is(err, key.ErrNotModified):
			return ErrAlreadyInactive
		}
		s.logger.Error("Failed to blacklist key", zap.String("key", token), zap.Error(err))
		return fmt.Errorf("repository error blacklisting key: %w", err)
	}

	metrics.Blacklists.Inc()
	s.recordAudit(ctx, AuditEvent{Action: AuditActionBlacklist, Key: token, ActorID: actorUserID, OccurredAt: at})

	s.logger.Info("Key blacklisted", zap.String("key", token), zap.String("actor", actorUserID))
	return nil
}

// CheckKey returns the stored record for a key.
func (s *KeyService) CheckKey(ctx context.Context, token string) (*key.Key, error) {
	return s.findKey(ctx, token)
}

// ListKeys enumerates every key record.
func (s *KeyService) ListKeys(ctx context.Context) ([]*key.Key, error) {
	keys, err := s.keys.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list keys", zap.Error(err))
		return nil, fmt.Errorf("repository error listing keys: %w", err)
	}
	return keys, nil
}

// OwnedKeys returns the keys currently owned by a user.
func (s *KeyService) OwnedKeys(ctx context.Context, userID string) ([]*key.Key, error) {
	keys, err := s.keys.FindByOwner(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to list owned keys", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("repository error listing owned keys: %w", err)
	}
	return keys, nil
}

// Stats returns aggregate counts. Read-only.
func (s *KeyService) Stats(ctx context.Context) (*Stats, error) {
	totalKeys, err := s.keys.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository error counting keys: %w", err)
	}
	activeKeys, err := s.keys.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository error counting active keys: %w", err)
	}
	totalUsers, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository error counting users: %w", err)
	}
	return &Stats{TotalKeys: totalKeys, ActiveKeys: activeKeys, TotalUsers: totalUsers}, nil
}

// Now exposes the service clock so adapters present consistent times.
func (s *KeyService) Now() time.Time {
	return s.now()
}

func (s *KeyService) findKey(ctx context.Context, token string) (*key.Key, error) {
	k, err := s.keys.FindByKey(ctx, token)
	if err != nil {
		if errors.Is(err, key.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		s.logger.Error("Failed to load key record", zap.String("key", token), zap.Error(err))
		return nil, fmt.Errorf("repository error loading key: %w", err)
	}
	return k, nil
}

func (s *KeyService) recordAudit(ctx context.Context, e AuditEvent) {
	if err := s.audit.Record(ctx, e); err != nil {
		s.logger.Warn("Failed to record audit event", zap.String("action", e.Action), zap.Error(err))
	}
}
