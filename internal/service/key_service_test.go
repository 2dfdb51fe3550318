package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/ierr"
	"github.com/keywarden/keywarden/internal/service"
	"github.com/keywarden/keywarden/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc   *service.KeyService
	keys  *memstorage.KeyRepository
	users *memstorage.UserRepository
	clock *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	keys := memstorage.NewKeyRepository()
	users := memstorage.NewUserRepository()
	policy := service.NewCooldownPolicy(&config.CooldownConfig{
		FastTrack: 1 * time.Second,
		Booster:   12 * time.Hour,
		Premium:   60 * time.Hour,
	})
	svc := service.NewKeyService(keys, users, policy, service.NopAuditRecorder{}, 100, zap.NewNop())

	clock := newFakeClock()
	svc.SetClock(clock.Now)

	return &fixture{svc: svc, keys: keys, users: users, clock: clock}
}

func (f *fixture) mintOne(t *testing.T, durationDays int) string {
	t.Helper()
	keys, err := f.svc.CreateKeys(context.Background(), 1, durationDays, "admin")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	return keys[0].Key
}

func (f *fixture) mintRedeemed(t *testing.T, userID string) string {
	t.Helper()
	token := f.mintOne(t, 0)
	_, err := f.svc.RedeemKey(context.Background(), token, userID)
	require.NoError(t, err)
	return token
}

func TestCreateKeys(t *testing.T) {
	ctx := context.Background()

	t.Run("batch round trip", func(t *testing.T) {
		f := newFixture(t)

		keys, err := f.svc.CreateKeys(ctx, 5, 7, "admin")
		require.NoError(t, err)
		require.Len(t, keys, 5)

		wantExpiry := f.clock.Now().UTC().Add(7 * 24 * time.Hour)
		for _, k := range keys {
			assert.True(t, k.Active)
			assert.False(t, k.OwnerUserID.Valid)
			assert.False(t, k.Hwid.Valid)
			require.True(t, k.ExpiresAt.Valid)
			assert.Equal(t, wantExpiry, k.ExpiresAt.Time)

			stored, err := f.svc.CheckKey(ctx, k.Key)
			require.NoError(t, err)
			assert.Equal(t, k.Key, stored.Key)
		}
	})

	t.Run("zero duration means lifetime", func(t *testing.T) {
		f := newFixture(t)

		keys, err := f.svc.CreateKeys(ctx, 1, 0, "admin")
		require.NoError(t, err)
		assert.False(t, keys[0].ExpiresAt.Valid)
	})

	t.Run("quantity bounds", func(t *testing.T) {
		f := newFixture(t)

		for _, q := range []int{0, -1, 101} {
			_, err := f.svc.CreateKeys(ctx, q, 0, "admin")
			assert.ErrorIs(t, err, ierr.ErrValidation, "quantity %d", q)
		}

		total, err := f.keys.CountAll(ctx)
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestRedeemKey(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		f := newFixture(t)
		token := f.mintOne(t, 0)

		k, err := f.svc.RedeemKey(ctx, token, "user-1")
		require.NoError(t, err)
		require.True(t, k.OwnerUserID.Valid)
		assert.Equal(t, "user-1", k.OwnerUserID.String)
		assert.True(t, k.RedeemedAt.Valid)

		u, err := f.users.FindByID(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, u.OwnsKey(token))
	})

	t.Run("unknown key", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.RedeemKey(ctx, "DEADBEEF", "user-1")
		assert.ErrorIs(t, err, service.ErrKeyNotFound)
	})

	t.Run("already redeemed", func(t *testing.T) {
		f := newFixture(t)
		token := f.mintRedeemed(t, "user-1")

		_, err := f.svc.RedeemKey(ctx, token, "user-2")
		assert.ErrorIs(t, err, service.ErrKeyAlreadyRedeemed)

		// Self-redeeming again fails the same way.
		_, err = f.svc.RedeemKey(ctx, token, "user-1")
		assert.ErrorIs(t, err, service.ErrKeyAlreadyRedeemed)
	})

	t.Run("blacklisted", func(t *testing.T) {
		f := newFixture(t)
		token := f.mintOne(t, 0)
		require.NoError(t, f.svc.Blacklist(ctx, token, "admin"))

		_, err := f.svc.RedeemKey(ctx, token, "user-1")
		assert.ErrorIs(t, err, service.ErrKeyBlacklisted)
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture(t)
		token := f.mintOne(t, 1)

		f.clock.Advance(25 * time.Hour)
		_, err := f.svc.RedeemKey(ctx, token, "user-1")
		assert.ErrorIs(t, err, service.ErrKeyExpired)
	})

	t.Run("not yet expired", func(t *testing.T) {
		f := newFixture(t)
		token := f.mintOne(t, 1)

		f.clock.Advance(23 * time.Hour)
		_, err := f.svc.RedeemKey(ctx, token, "user-1")
		assert.NoError(t, err)
	})

	t.Run("concurrent redeem has exactly one winner", func(t *testing.T) {
		f := newFixture(t)
		token := f.mintOne(t, 0)

		const contenders = 16
		errs := make([]error, contenders)
		var wg sync.WaitGroup
		var start sync.WaitGroup
		start.Add(1)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				start.Wait()
				_, errs[i] = f.svc.RedeemKey(ctx, token, userID(i))
			}(i)
		}
		start.Done()
		wg.Wait()

		var winners int
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, service.ErrKeyAlreadyRedeemed)
			}
		}
		assert.Equal(t, 1, winners)

		k, err := f.svc.CheckKey(ctx, token)
		require.NoError(t, err)
		require.True(t, k.OwnerUserID.Valid)

		// The winner's user record lists the key exactly once.
		u, err := f.users.FindByID(ctx, k.OwnerUserID.String)
		require.NoError(t, err)
		assert.Equal(t, []string{token}, u.Keys)
	})
}

func userID(i int) string {
	return "user-" + string(rune('a'+i))
}

func TestVerifyHwid(t *testing.T) {
	ctx := context.Background()

	t.Run("first use binds", func(t *testing.T) {
		f := newFixture(t)
		token := f.mintRedeemed(t, "user-1")

		status, err := f.svc.VerifyHwid(ctx, token, "hwid-a")
		require.NoError(t, err)
		assert.Equal(t, service.VerifyRegistered, status)

		k, err := f.svc.CheckKey(ctx, token)
		require.NoError(t, err)
		require.True(t, k.Hwid.Valid)
		assert.Equal(t, "hwid-a", k.Hwid.String)
	})

	t.Run("same hwid is idempotent", func(t *testing.T) {
		f := newFixture(t)
		token := f.mintRedeemed(t, "user-1")

		_, err := f.svc.VerifyHwid(ctx, token, "hwid-a")
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			status, err := f.svc.VerifyHwid(ctx, token, "hwid-a")
			require.NoError(t, err)
			assert.Equal(t, service.VerifyAccessGranted, status)
		}
	})

	t.Run("different hwid is rejected without mutation", func(t *testing.T) {
		f := newFixture(t)
		token := f.mintRedeemed(t, "user-1")

		_, err := f.svc.VerifyHwid(ctx, token, "hwid-a")
		require.NoError(t, err)

		status, err := f.svc.VerifyHwid(ctx, token, "hwid-b")
		require.NoError(t, err)
		assert.Equal(t, service.VerifyMismatch, status)

		k, err := f.svc.CheckKey(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "hwid-a", k.Hwid.String)

		// The original device still gets in.
		status, err = f.svc.VerifyHwid(ctx, token, "hwid-a")
		require.NoError(t, err)
		assert.Equal(t, service.VerifyAccessGranted, status)
	})

	t.Run("state preconditions", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.VerifyHwid(ctx, "DEADBEEF", "hwid-a")
		assert.ErrorIs(t, err, service.ErrKeyNotFound)

		unredeemed := f.mintOne(t, 0)
		_, err = f.svc.VerifyHwid(ctx, unredeemed, "hwid-a")
		assert.ErrorIs(t, err, service.ErrKeyNotRedeemed)

		blacklisted := f.mintRedeemed(t, "user-1")
		require.NoError(t, f.svc.Blacklist(ctx, blacklisted, "admin"))
		_, err = f.svc.VerifyHwid(ctx, blacklisted, "hwid-a")
		assert.ErrorIs(t, err, service.ErrKeyBlacklisted)

		expiring := f.mintOne(t, 1)
		_, err = f.svc.RedeemKey(ctx, expiring, "user-2")
		require.NoError(t, err)
		f.clock.Advance(25 * time.Hour)
		_, err = f.svc.VerifyHwid(ctx, expiring, "hwid-a")
		assert.ErrorIs(t, err, service.ErrKeyExpired)
	})

	t.Run("concurrent first binds have exactly one winner", func(t *testing.T) {
		f := newFixture(t)
		token := f.mintRedeemed(t, "user-1")

		const contenders = 8
		statuses := make([]service.VerifyStatus, contenders)
		errs := make([]error, contenders)
		var wg sync.WaitGroup
		var start sync.WaitGroup
		start.Add(1)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				start.Wait()
				statuses[i], errs[i] = f.svc.VerifyHwid(ctx, token, "hwid-"+string(rune('a'+i)))
			}(i)
		}
		start.Done()
		wg.Wait()

		var registered int
		for i := 0; i < contenders; i++ {
			require.NoError(t, errs[i])
			switch statuses[i] {
			case service.VerifyRegistered:
				registered++
			case service.VerifyMismatch:
			default:
				t.Fatalf("unexpected status %q", statuses[i])
			}
		}
		assert.Equal(t, 1, registered)
	})
}

func TestResetHwid(t *testing.T) {
	ctx := context.Background()
	premium := []service.Tier{service.TierPremium}

	bound := func(t *testing.T, f *fixture, userID string) string {
		token := f.mintRedeemed(t, userID)
		_, err := f.svc.VerifyHwid(ctx, token, "hwid-a")
		require.NoError(t, err)
		return token
	}

	t.Run("happy path clears binding and stamps user", func(t *testing.T) {
		f := newFixture(t)
		token := bound(t, f, "user-1")

		require.NoError(t, f.svc.ResetHwid(ctx, token, "user-1", premium))

		k, err := f.svc.CheckKey(ctx, token)
		require.NoError(t, err)
		assert.False(t, k.Hwid.Valid)

		u, err := f.users.FindByID(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, u.HwidLastResetAt.Valid)
		assert.Equal(t, 1, u.HwidResetCount)

		// A new device can now bind.
		status, err := f.svc.VerifyHwid(ctx, token, "hwid-b")
		require.NoError(t, err)
		assert.Equal(t, service.VerifyRegistered, status)
	})

	t.Run("no tier denied regardless of cooldown", func(t *testing.T) {
		f := newFixture(t)
		token := bound(t, f, "user-1")

		err := f.svc.ResetHwid(ctx, token, "user-1", nil)
		assert.ErrorIs(t, err, ierr.ErrInsufficientPrivilege)

		k, err := f.svc.CheckKey(ctx, token)
		require.NoError(t, err)
		assert.True(t, k.Hwid.Valid)
	})

	t.Run("cooldown enforcement and remaining decreases", func(t *testing.T) {
		f := newFixture(t)
		token := bound(t, f, "user-1")

		require.NoError(t, f.svc.ResetHwid(ctx, token, "user-1", premium))
		_, err := f.svc.VerifyHwid(ctx, token, "hwid-b")
		require.NoError(t, err)

		err = f.svc.ResetHwid(ctx, token, "user-1", premium)
		var cooldownErr *service.CooldownActiveError
		require.ErrorAs(t, err, &cooldownErr)
		first := cooldownErr.Remaining
		assert.Equal(t, 60*time.Hour, first)

		f.clock.Advance(10 * time.Hour)
		err = f.svc.ResetHwid(ctx, token, "user-1", premium)
		require.ErrorAs(t, err, &cooldownErr)
		assert.Equal(t, 50*time.Hour, cooldownErr.Remaining)
		assert.Less(t, cooldownErr.Remaining, first)

		f.clock.Advance(51 * time.Hour)
		assert.NoError(t, f.svc.ResetHwid(ctx, token, "user-1", premium))
	})

	t.Run("cooldown follows best tier", func(t *testing.T) {
		f := newFixture(t)
		token := bound(t, f, "user-1")

		require.NoError(t, f.svc.ResetHwid(ctx, token, "user-1", premium))
		_, err := f.svc.VerifyHwid(ctx, token, "hwid-b")
		require.NoError(t, err)

		// Premium is still cooling down but fast track clears in a second.
		f.clock.Advance(2 * time.Second)
		err = f.svc.ResetHwid(ctx, token, "user-1", []service.Tier{service.TierPremium, service.TierFastTrack})
		assert.NoError(t, err)
	})

	t.Run("ownership and state checks", func(t *testing.T) {
		f := newFixture(t)
		token := bound(t, f, "user-1")

		err := f.svc.ResetHwid(ctx, token, "user-2", premium)
		assert.ErrorIs(t, err, service.ErrNotKeyOwner)

		other := f.mintRedeemed(t, "user-2")
		err = f.svc.ResetHwid(ctx, other, "user-2", premium)
		assert.ErrorIs(t, err, service.ErrNoHwid)

		require.NoError(t, f.svc.Blacklist(ctx, token, "admin"))
		err = f.svc.ResetHwid(ctx, token, "user-1", premium)
		assert.ErrorIs(t, err, service.ErrKeyBlacklisted)

		err = f.svc.ResetHwid(ctx, "DEADBEEF", "user-1", premium)
		assert.ErrorIs(t, err, service.ErrKeyNotFound)
	})
}

func TestBlacklist(t *testing.T) {
	ctx := context.Background()

	t.Run("terminal", func(t *testing.T) {
		f := newFixture(t)
		token := f.mintRedeemed(t, "user-1")
		_, err := f.svc.VerifyHwid(ctx, token, "hwid-a")
		require.NoError(t, err)

		require.NoError(t, f.svc.Blacklist(ctx, token, "admin"))

		k, err := f.svc.CheckKey(ctx, token)
		require.NoError(t, err)
		assert.False(t, k.Active)
		assert.Equal(t, "admin", k.BlacklistedBy.String)

		// Every mutating path is now closed.
		_, err = f.svc.RedeemKey(ctx, token, "user-2")
		assert.ErrorIs(t, err, service.ErrKeyBlacklisted)
		_, err = f.svc.VerifyHwid(ctx, token, "hwid-a")
		assert.ErrorIs(t, err, service.ErrKeyBlacklisted)
		err = f.svc.ResetHwid(ctx, token, "user-1", []service.Tier{service.TierFastTrack})
		assert.ErrorIs(t, err, service.ErrKeyBlacklisted)
	})

	t.Run("double blacklist conflicts", func(t *testing.T) {
		f := newFixture(t)
		token := f.mintOne(t, 0)

		require.NoError(t, f.svc.Blacklist(ctx, token, "admin"))
		err := f.svc.Blacklist(ctx, token, "admin")
		assert.ErrorIs(t, err, service.ErrAlreadyInactive)
	})

	t.Run("unknown key", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.Blacklist(ctx, "DEADBEEF", "admin")
		assert.ErrorIs(t, err, service.ErrKeyNotFound)
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateKeys(ctx, 3, 0, "admin")
	require.NoError(t, err)
	token := f.mintRedeemed(t, "user-1")
	require.NoError(t, f.svc.Blacklist(ctx, token, "admin"))

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalKeys)
	assert.Equal(t, int64(3), stats.ActiveKeys)
	assert.Equal(t, int64(1), stats.TotalUsers)
}

func TestOwnedKeys(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.mintRedeemed(t, "user-1")
	f.clock.Advance(time.Minute)
	second := f.mintRedeemed(t, "user-1")
	f.mintRedeemed(t, "user-2")

	owned, err := f.svc.OwnedKeys(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, first, owned[0].Key)
	assert.Equal(t, second, owned[1].Key)
}
