package bot

import (
	"testing"

	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/service"
	"github.com/stretchr/testify/assert"
)

func TestBot_Tiers(t *testing.T) {
	b := &Bot{cfg: &config.DiscordConfig{
		PremiumRoleID:   "role-premium",
		BoosterRoleID:   "role-booster",
		FastTrackRoleID: "role-fast",
	}}

	tests := []struct {
		name  string
		roles []string
		want  []service.Tier
	}{
		{name: "no roles", roles: nil, want: nil},
		{name: "unrelated roles", roles: []string{"role-mod", "role-vip"}, want: nil},
		{name: "premium", roles: []string{"role-premium"}, want: []service.Tier{service.TierPremium}},
		{name: "booster", roles: []string{"role-booster"}, want: []service.Tier{service.TierBooster}},
		{name: "fast track", roles: []string{"role-fast"}, want: []service.Tier{service.TierFastTrack}},
		{
			name:  "all three with noise",
			roles: []string{"role-mod", "role-fast", "role-booster", "role-premium"},
			want:  []service.Tier{service.TierFastTrack, service.TierBooster, service.TierPremium},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, b.Tiers(tt.roles))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "toolongst…", truncate("toolongstring", 10))
}
