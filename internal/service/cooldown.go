package service

import (
	"context"
	"time"

	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/ierr"
)

// Tier is an abstract privilege tier. The chat adapter maps whatever
// the platform exposes (role ids, flags) onto these values, so the
// engine never compares role names.
type Tier string

const (
	TierFastTrack Tier = "fast_track"
	TierBooster   Tier = "booster"
	TierPremium   Tier = "premium"
)

// PrivilegeResolver looks up the tiers a requester currently holds.
// Supplied by the front-end adapter (Discord role membership in
// production, a stub in tests).
type PrivilegeResolver interface {
	Resolve(ctx context.Context, userID string) ([]Tier, error)
}

// CooldownPolicy maps a requester's tiers to a hwid-reset cooldown.
// Precedence is fixed: FastTrack beats Booster beats Premium, so a
// caller holding several tiers always gets the shortest cooldown.
// Holding none of them denies the reset outright.
type CooldownPolicy struct {
	fastTrack time.Duration
	booster   time.Duration
	premium   time.Duration
}

func NewCooldownPolicy(cfg *config.CooldownConfig) *CooldownPolicy {
	return &CooldownPolicy{
		fastTrack: cfg.FastTrack,
		booster:   cfg.Booster,
		premium:   cfg.Premium,
	}
}

func (p *CooldownPolicy) Resolve(tiers []Tier) (time.Duration, error) {
	has := make(map[Tier]bool, len(tiers))
	for _, t := range tiers {
		has[t] = true
	}

	switch {
	case has[TierFastTrack]:
		return p.fastTrack, nil
	case has[TierBooster]:
		return p.booster, nil
	case has[TierPremium]:
		return p.premium, nil
	default:
		return 0, ierr.ErrInsufficientPrivilege
	}
}
