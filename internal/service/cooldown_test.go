package service

import (
	"testing"
	"time"

	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCooldownPolicy() *CooldownPolicy {
	return NewCooldownPolicy(&config.CooldownConfig{
		FastTrack: 1 * time.Second,
		Booster:   12 * time.Hour,
		Premium:   60 * time.Hour,
	})
}

func TestCooldownPolicy_Resolve(t *testing.T) {
	policy := testCooldownPolicy()

	tests := []struct {
		name  string
		tiers []Tier
		want  time.Duration
	}{
		{name: "premium only", tiers: []Tier{TierPremium}, want: 60 * time.Hour},
		{name: "booster only", tiers: []Tier{TierBooster}, want: 12 * time.Hour},
		{name: "fast track only", tiers: []Tier{TierFastTrack}, want: 1 * time.Second},
		{name: "booster beats premium", tiers: []Tier{TierPremium, TierBooster}, want: 12 * time.Hour},
		{name: "fast track beats booster", tiers: []Tier{TierBooster, TierFastTrack}, want: 1 * time.Second},
		{name: "fast track beats everything", tiers: []Tier{TierPremium, TierBooster, TierFastTrack}, want: 1 * time.Second},
		{name: "order does not matter", tiers: []Tier{TierFastTrack, TierPremium}, want: 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := policy.Resolve(tt.tiers)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCooldownPolicy_Resolve_NoQualifyingTier(t *testing.T) {
	policy := testCooldownPolicy()

	for _, tiers := range [][]Tier{nil, {}, {Tier("moderator")}} {
		_, err := policy.Resolve(tiers)
		assert.ErrorIs(t, err, ierr.ErrInsufficientPrivilege)
	}
}
