package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreflightWithinLimit(t *testing.T) {
	ledger, store := newTestLedger(1000)
	tenantID := uuid.New()
	store.put(Account{TenantID: tenantID, UsedBytes: 900, LimitBytes: 1000})

	require.NoError(t, ledger.Preflight(context.Background(), tenantID, 100))

	usage, err := ledger.Usage(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), usage.UsedBytes, "preflight must not consume bytes")
}

func TestPreflightRejectsOverLimit(t *testing.T) {
	ledger, store := newTestLedger(1000)
	tenantID := uuid.New()
	store.put(Account{TenantID: tenantID, UsedBytes: 900, LimitBytes: 1000})

	err := ledger.Preflight(context.Background(), tenantID, 101)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, StagePreflight, exceeded.Stage)
	assert.Equal(t, int64(101), exceeded.Requested)
}

func TestCommitExactlyToLimit(t *testing.T) {
	ledger, store := newTestLedger(1000)
	tenantID := uuid.New()
	store.put(Account{TenantID: tenantID, UsedBytes: 800, LimitBytes: 1000})

	acct, err := ledger.Commit(context.Background(), tenantID, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), acct.UsedBytes)

	_, err = ledger.Commit(context.Background(), tenantID, 1)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int64(1000), store.used(tenantID), "rejected commit must leave usage unchanged")
}

func TestCommitProvisionsDefaultAccount(t *testing.T) {
	ledger, store := newTestLedger(500)
	tenantID := uuid.New()

	acct, err := ledger.Commit(context.Background(), tenantID, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(500), acct.LimitBytes)
	assert.Equal(t, int64(200), store.used(tenantID))
}

func TestConcurrentCommitsNeverExceedLimit(t *testing.T) {
	ledger, store := newTestLedger(1000)
	tenantID := uuid.New()
	store.put(Account{TenantID: tenantID, LimitBytes: 1000})

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Commit(context.Background(), tenantID, 64); err == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(15), accepted.Load())
	assert.Equal(t, int64(960), store.used(tenantID))
}

func TestReleaseFloorsAtZero(t *testing.T) {
	ledger, store := newTestLedger(1000)
	tenantID := uuid.New()
	store.put(Account{TenantID: tenantID, UsedBytes: 100, LimitBytes: 1000})

	require.NoError(t, ledger.Release(context.Background(), tenantID, 300))
	assert.Equal(t, int64(0), store.used(tenantID))
}

func TestNegativeAmountsRejected(t *testing.T) {
	ledger, _ := newTestLedger(1000)
	tenantID := uuid.New()

	assert.ErrorIs(t, ledger.Preflight(context.Background(), tenantID, -1), ErrInvalidAmount)
	_, err := ledger.Commit(context.Background(), tenantID, -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.ErrorIs(t, ledger.Release(context.Background(), tenantID, -1), ErrInvalidAmount)
}

func TestUsageReportsPercent(t *testing.T) {
	ledger, store := newTestLedger(1000)
	tenantID := uuid.New()
	store.put(Account{TenantID: tenantID, UsedBytes: 250, LimitBytes: 1000})

	usage, err := ledger.Usage(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(750), usage.AvailableBytes)
	assert.InDelta(t, 25.0, usage.UsagePercent, 0.001)
}

func TestSetLimitBelowUsageBlocksFutureCommits(t *testing.T) {
	ledger, store := newTestLedger(1000)
	tenantID := uuid.New()
	store.put(Account{TenantID: tenantID, UsedBytes: 600, LimitBytes: 1000})

	_, err := ledger.SetLimit(context.Background(), tenantID, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(600), store.used(tenantID))

	_, err = ledger.Commit(context.Background(), tenantID, 1)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestReconcileUsesLiveTotal(t *testing.T) {
	ledger, store := newTestLedger(1000)
	tenantID := uuid.New()
	store.put(Account{TenantID: tenantID, UsedBytes: 700, LimitBytes: 1000})
	store.live[tenantID] = 420

	drift, err := ledger.Reconcile(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), drift.Before)
	assert.Equal(t, int64(420), drift.After)
	assert.Equal(t, int64(-280), drift.Delta())
	assert.Equal(t, int64(420), store.used(tenantID))
}

func TestReconcileWaitsForHeldCommit(t *testing.T) {
	ledger, store := newTestLedger(1000)
	tenantID := uuid.New()
	store.put(Account{TenantID: tenantID, LimitBytes: 1000})

	unhold, err := ledger.Hold(context.Background(), tenantID)
	require.NoError(t, err)
	_, err = ledger.Commit(context.Background(), tenantID, 300)
	require.NoError(t, err)

	var reconciled atomic.Bool
	result := make(chan Drift, 1)
	go func() {
		drift, err := ledger.Reconcile(context.Background(), tenantID)
		assert.NoError(t, err)
		reconciled.Store(true)
		result <- drift
	}()

	assert.Never(t, reconciled.Load, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, int64(300), store.used(tenantID))

	// The catalog row lands before the hold ends.
	store.setLive(tenantID, 300)
	unhold()

	drift := <-result
	assert.Equal(t, int64(300), drift.Before)
	assert.Equal(t, int64(300), drift.After)
	assert.Equal(t, int64(300), store.used(tenantID))
}

func TestHoldersDoNotBlockEachOther(t *testing.T) {
	ledger, _ := newTestLedger(1000)
	tenantID := uuid.New()

	first, err := ledger.Hold(context.Background(), tenantID)
	require.NoError(t, err)
	second, err := ledger.Hold(context.Background(), tenantID)
	require.NoError(t, err)
	second()
	first()
}

func newTestLedger(defaultLimit int64) (*Ledger, *fakeStore) {
	store := &fakeStore{accounts: map[uuid.UUID]Account{}, live: map[uuid.UUID]int64{}}
	return NewLedger(store, defaultLimit, nil), store
}

type fakeStore struct {
	usage    sync.RWMutex
	mu       sync.Mutex
	accounts map[uuid.UUID]Account
	live     map[uuid.UUID]int64
}

func (f *fakeStore) put(a Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[a.TenantID] = a
}

func (f *fakeStore) used(tenantID uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[tenantID].UsedBytes
}

func (f *fakeStore) EnsureAccount(_ context.Context, tenantID uuid.UUID, limitBytes int64) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[tenantID]
	if !ok {
		acct = Account{TenantID: tenantID, LimitBytes: limitBytes}
		f.accounts[tenantID] = acct
	}
	return acct, nil
}

func (f *fakeStore) Get(_ context.Context, tenantID uuid.UUID) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[tenantID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

func (f *fakeStore) TryAdd(_ context.Context, tenantID uuid.UUID, bytes int64) (Account, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct := f.accounts[tenantID]
	if acct.UsedBytes+bytes > acct.LimitBytes {
		return acct, false, nil
	}
	acct.UsedBytes += bytes
	f.accounts[tenantID] = acct
	return acct, true, nil
}

func (f *fakeStore) Subtract(_ context.Context, tenantID uuid.UUID, bytes int64) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[tenantID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	acct.UsedBytes -= bytes
	if acct.UsedBytes < 0 {
		acct.UsedBytes = 0
	}
	f.accounts[tenantID] = acct
	return acct, nil
}

func (f *fakeStore) SetLimit(_ context.Context, tenantID uuid.UUID, limitBytes int64) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct := f.accounts[tenantID]
	acct.LimitBytes = limitBytes
	f.accounts[tenantID] = acct
	return acct, nil
}

func (f *fakeStore) Hold(_ context.Context, _ uuid.UUID) (func(), error) {
	f.usage.RLock()
	return f.usage.RUnlock, nil
}

func (f *fakeStore) setLive(tenantID uuid.UUID, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[tenantID] = n
}

func (f *fakeStore) Reconcile(_ context.Context, tenantID uuid.UUID) (Drift, error) {
	f.usage.Lock()
	defer f.usage.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()
	acct := f.accounts[tenantID]
	drift := Drift{TenantID: tenantID, Before: acct.UsedBytes, After: f.live[tenantID]}
	acct.UsedBytes = drift.After
	f.accounts[tenantID] = acct
	return drift, nil
}
