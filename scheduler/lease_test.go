package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/trendspark/errors"
	qtesting "github.com/teranos/trendspark/internal/testing"
)

func newLeaseFixture(t *testing.T, atomic bool) (*LeaseManager, *JobConfig) {
	t.Helper()
	db := qtesting.CreateTestDB(t)
	configs := NewConfigStore(db)

	cfg := newIngestConfig()
	require.NoError(t, configs.Create(cfg))

	return NewLeaseManager(db, atomic, zap.NewNop().Sugar()), cfg
}

func TestLeaseLimitBlocksSecondAcquire(t *testing.T) {
	leases, cfg := newLeaseFixture(t, false)

	token, err := leases.Acquire(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = leases.Acquire(cfg)
	assert.True(t, errors.IsLeaseUnavailable(err))

	active, err := leases.ActiveCount(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestReleaseFreesExactlyOneSlot(t *testing.T) {
	leases, cfg := newLeaseFixture(t, false)
	cfg.ConcurrencyLimit = 2

	first, err := leases.Acquire(cfg)
	require.NoError(t, err)
	second, err := leases.Acquire(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = leases.Acquire(cfg)
	require.True(t, errors.IsLeaseUnavailable(err))

	require.NoError(t, leases.Release(cfg.ID, first))

	third, err := leases.Acquire(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, third)

	_, err = leases.Acquire(cfg)
	assert.True(t, errors.IsLeaseUnavailable(err))
}

func TestExpiredLeaseIsReclaimed(t *testing.T) {
	leases, cfg := newLeaseFixture(t, false)

	token, err := leases.Acquire(cfg)
	require.NoError(t, err)

	// Backdate the lease past its expiry.
	past := time.Now().UTC().Add(-time.Minute).Format(timeLayout)
	_, err = leases.db.Exec(`UPDATE scheduler_leases SET expires_at = ? WHERE lock_token = ?`,
		past, token)
	require.NoError(t, err)

	fresh, err := leases.Acquire(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh)

	active, err := leases.ActiveCount(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestReleaseUnknownTokenIsNoop(t *testing.T) {
	leases, cfg := newLeaseFixture(t, false)
	assert.NoError(t, leases.Release(cfg.ID, "nonexistent-token"))
}

func TestAtomicAcquireSemanticsMatch(t *testing.T) {
	leases, cfg := newLeaseFixture(t, true)

	token, err := leases.Acquire(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = leases.Acquire(cfg)
	assert.True(t, errors.IsLeaseUnavailable(err))

	require.NoError(t, leases.Release(cfg.ID, token))
	_, err = leases.Acquire(cfg)
	assert.NoError(t, err)
}

func TestConcurrentAcquireGrantsExactlyOne(t *testing.T) {
	leases, cfg := newLeaseFixture(t, true)

	const attempts = 8
	var granted, unavailable atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := leases.Acquire(cfg)
			switch {
			case err == nil:
				granted.Add(1)
			case errors.IsLeaseUnavailable(err):
				unavailable.Add(1)
			default:
				t.Errorf("unexpected acquire error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
	assert.Equal(t, int32(attempts-1), unavailable.Load())

	active, err := leases.ActiveCount(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestLeaseFloorsAppliedAtAcquire(t *testing.T) {
	leases, cfg := newLeaseFixture(t, false)
	cfg.ConcurrencyLimit = 0
	cfg.LockTimeoutSeconds = 0

	// A zero limit still grants one lease, and a zero timeout still
	// produces a future expiry.
	token, err := leases.Acquire(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = leases.Acquire(cfg)
	assert.True(t, errors.IsLeaseUnavailable(err))

	active, err := leases.ActiveCount(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}
