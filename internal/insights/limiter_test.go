package insights

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-tracker/internal/localstore"
)

func newTestLimiter(t *testing.T, clock *time.Time) *Limiter {
	t.Helper()
	markers, err := localstore.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { markers.Close() })

	l := NewLimiter(markers)
	l.now = func() time.Time { return *clock }
	return l
}

func TestLimiter_Spacing(t *testing.T) {
	clock := time.UnixMilli(1700000000000)
	l := newTestLimiter(t, &clock)

	require.NoError(t, l.Allow())
	require.NoError(t, l.Record())

	clock = clock.Add(10 * time.Second)
	assert.ErrorIs(t, l.Allow(), ErrRateLimited)

	clock = clock.Add(25 * time.Second)
	assert.NoError(t, l.Allow())
}

func TestLimiter_HourlyBudgetTripsCooldown(t *testing.T) {
	clock := time.UnixMilli(1700000000000)
	l := newTestLimiter(t, &clock)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Allow(), "call %d", i)
		require.NoError(t, l.Record())
		clock = clock.Add(time.Minute)
	}

	assert.ErrorIs(t, l.Allow(), ErrQuotaExceeded)
	until, err := l.CooldownUntil()
	require.NoError(t, err)
	assert.Equal(t, clock.Add(30*time.Minute).UnixMilli(), until.UnixMilli())

	// Still cooling down even though older calls are aging out.
	clock = clock.Add(20 * time.Minute)
	assert.ErrorIs(t, l.Allow(), ErrQuotaExceeded)

	reset, err := l.ResetExpiredCooldown()
	require.NoError(t, err)
	assert.False(t, reset)

	clock = clock.Add(11 * time.Minute)
	reset, err = l.ResetExpiredCooldown()
	require.NoError(t, err)
	assert.True(t, reset)

	// Once the burst has left the rolling hour, calls are allowed again.
	clock = clock.Add(30 * time.Minute)
	assert.NoError(t, l.Allow())
}

func TestLimiter_TripCooldown(t *testing.T) {
	clock := time.UnixMilli(1700000000000)
	l := newTestLimiter(t, &clock)

	require.NoError(t, l.TripCooldown())
	assert.ErrorIs(t, l.Allow(), ErrQuotaExceeded)

	clock = clock.Add(31 * time.Minute)
	assert.NoError(t, l.Allow())
	until, err := l.CooldownUntil()
	require.NoError(t, err)
	assert.True(t, until.IsZero())
}
