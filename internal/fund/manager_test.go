package fund

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"YieldVault/internal/adaptor"
	"YieldVault/internal/auth"
	"YieldVault/internal/calculator"
	"YieldVault/internal/collector"
	"YieldVault/internal/model"
	"YieldVault/internal/oracle"
	"YieldVault/internal/recorder"
	"YieldVault/internal/vault"
)

var noLimit = calculator.Pow10(36)

func units(n int64, decimals uint8) math.Int {
	return calculator.Pow10(decimals).MulRaw(n)
}

type memRecorder struct {
	mu         sync.Mutex
	operations []recorder.OperationEvent
	requests   []recorder.RequestEvent
	snapshots  []model.Summary
}

func (r *memRecorder) RecordOperation(evt *recorder.OperationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, *evt)
	return nil
}

func (r *memRecorder) RecordRequest(evt *recorder.RequestEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, *evt)
	return nil
}

func (r *memRecorder) RecordSnapshot(s *model.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, *s)
	return nil
}

func (r *memRecorder) Close() error { return nil }

type fixture struct {
	m     *Manager
	v     *vault.Vault
	admin *vault.AdminCap
	op    *vault.OperatorCap
	rec   *memRecorder
	state string

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rec:   &memRecorder{},
		state: filepath.Join(t.TempDir(), "state", "vault.json"),
		now:   time.UnixMilli(1_700_000_000_000),
	}

	cache := oracle.NewCache(time.Hour, nil)
	var bindings []collector.Binding
	for _, key := range []string{"USDC", "USDT"} {
		require.NoError(t, cache.AddAsset(oracle.Asset{Key: key, FeedID: key + "-usd", AssetDecimals: 6, MaxFeedAge: time.Hour}))
		bindings = append(bindings, collector.Binding{Key: key, Feed: collector.NewStaticFeed(key+"-usd", units(1, 8), 8, f.now)})
	}

	authority, admin := auth.New(nil)
	v, err := vault.New(vault.Config{
		PrincipalAsset: "USDC",
		Params:         vault.DefaultParams(),
		Authority:      authority,
		Oracle:         cache,
		Adaptors:       adaptor.NewSet(adaptor.BalanceAdaptor{}),
		Clock:          f.clock,
	})
	require.NoError(t, err)
	op, err := v.CreateOperatorCap(admin)
	require.NoError(t, err)

	m, err := NewManager(Options{
		Vault:     v,
		Oracle:    cache,
		Collector: collector.NewCollector(nil, bindings...),
		Recorder:  f.rec,
		StateFile: f.state,
		Clock:     f.clock,
	})
	require.NoError(t, err)
	results, err := m.RefreshOracle(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	f.m, f.v, f.admin, f.op = m, v, admin, op
	return f
}

func (f *fixture) deposit(t *testing.T, user string, amount math.Int) (uuid.UUID, math.Int) {
	t.Helper()
	ctx := context.Background()
	id, rid, err := f.m.SubmitDeposit(ctx, user, uuid.Nil, amount, math.ZeroInt())
	require.NoError(t, err)
	f.advance(time.Second)
	res, err := f.m.ExecuteDeposit(ctx, f.op, id, noLimit)
	require.NoError(t, err)
	return rid, res.Shares
}

func TestManager_DepositRevaluesAndCheckpoints(t *testing.T) {
	f := newFixture(t)
	rid, shares := f.deposit(t, "alice", units(1_000, 6))
	assert.Equal(t, units(1_000, 9).String(), shares.String())

	cp, err := LoadCheckpoint(f.state)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, f.v.ID().String(), cp.VaultID)
	assert.Equal(t, "NORMAL", cp.Status)
	assert.Equal(t, shares.String(), cp.TotalShares.String())
	assert.Equal(t, units(1_000, 6).String(), cp.FreePrincipal.String())

	require.Len(t, f.rec.requests, 2)
	assert.Equal(t, "SUBMIT", f.rec.requests[0].Action)
	exec := f.rec.requests[1]
	assert.Equal(t, "EXECUTE", exec.Action)
	assert.Equal(t, "DEPOSIT", exec.Kind)
	assert.Equal(t, rid.String(), exec.ReceiptID)
	assert.Equal(t, "alice", exec.Account)
	assert.Equal(t, f.clock(), exec.At)
}

func TestManager_FailedCallLeavesNoJournalEntry(t *testing.T) {
	f := newFixture(t)
	id, _, err := f.m.SubmitDeposit(context.Background(), "alice", uuid.Nil, units(10, 6), math.ZeroInt())
	require.NoError(t, err)

	_, err = f.m.ExecuteDeposit(context.Background(), nil, id, noLimit)
	require.ErrorIs(t, err, model.ErrUnauthorized)
	assert.Len(t, f.rec.requests, 1)

	_, err = f.m.CancelDeposit(context.Background(), "mallory", id)
	require.ErrorIs(t, err, model.ErrUnauthorized)
	assert.Len(t, f.rec.requests, 1)
}

func TestManager_OperationLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, shares := f.deposit(t, "alice", units(1_000, 6))

	require.NoError(t, f.m.AddItem(ctx, f.op, "usdt", adaptor.NewBalance("USDT", units(500, 6))))

	f.advance(time.Second)
	custody, err := f.m.BeginOperation(ctx, f.op, []string{"usdt"}, units(100, 6))
	require.NoError(t, err)
	assert.Equal(t, model.StatusDuringOperation, f.v.Status())

	f.advance(time.Second)
	require.NoError(t, f.m.EndCustody(ctx, f.op, &vault.Custody{
		OperationID: custody.OperationID,
		Items:       custody.Items,
		Principal:   custody.Principal,
	}))
	f.advance(time.Second)
	require.NoError(t, f.m.EnableValuation(ctx, f.op))

	f.advance(time.Second)
	res, err := f.m.CompleteOperation(ctx, f.op, shares)
	require.NoError(t, err)
	assert.True(t, res.Loss.IsZero())
	assert.Equal(t, units(1_500, 9).String(), res.ValueAfter.String())
	assert.Equal(t, model.StatusNormal, f.v.Status())

	require.Len(t, f.rec.operations, 2)
	assert.Equal(t, "BEGIN", f.rec.operations[0].Action)
	assert.Equal(t, []string{"usdt"}, f.rec.operations[0].Keys)
	assert.Equal(t, units(1_500, 9).String(), f.rec.operations[0].ValueBefore.String())
	assert.Equal(t, "COMPLETE", f.rec.operations[1].Action)
	require.Len(t, f.rec.snapshots, 1)
	assert.True(t, f.rec.snapshots[0].Fresh)
}

func TestManager_CheckOperationAndEscapeHatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.deposit(t, "alice", units(1_000, 6))
	assert.Nil(t, f.m.CheckOperation(ctx, time.Minute))

	f.advance(time.Second)
	_, err := f.m.BeginOperation(ctx, f.op, nil, units(100, 6))
	require.NoError(t, err)

	f.advance(30 * time.Second)
	assert.Nil(t, f.m.CheckOperation(ctx, time.Minute))

	f.advance(2 * time.Hour)
	alert := f.m.CheckOperation(ctx, time.Minute)
	require.NotNil(t, alert)
	assert.False(t, alert.EscapeHatchOpen)
	_, err = f.m.AbortOperation(ctx, f.admin)
	require.ErrorIs(t, err, model.ErrInvalidStatus)

	f.advance(vault.DefaultParams().EscapeHatchDelay)
	alert = f.m.CheckOperation(ctx, time.Minute)
	require.NotNil(t, alert)
	assert.True(t, alert.EscapeHatchOpen)

	res, err := f.m.AbortOperation(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, []string{model.PrincipalKey}, res.WrittenOff)
	assert.Equal(t, model.StatusNormal, f.v.Status())
	assert.Equal(t, "ABORT", f.rec.operations[len(f.rec.operations)-1].Action)
	assert.Nil(t, f.m.CheckOperation(ctx, time.Minute))
}

func TestManager_SerialisesConcurrentCalls(t *testing.T) {
	f := newFixture(t)
	const n = 16

	var wg sync.WaitGroup
	ids := make(chan uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, _, err := f.m.SubmitDeposit(context.Background(), fmt.Sprintf("user-%d", i), uuid.Nil, units(1, 6), math.ZeroInt())
			assert.NoError(t, err)
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate request id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, f.m.Summary(context.Background()).PendingDeposits)
}

func TestManager_SnapshotRevaluesWithKeeper(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.deposit(t, "alice", units(1_000, 6))
	require.NoError(t, f.m.AddItem(ctx, f.op, "usdt", adaptor.NewBalance("USDT", units(500, 6))))

	f.advance(time.Second)
	s, err := f.m.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, s.Fresh, "without a keeper only the principal is revalued")

	f.m.keeper = f.op
	f.advance(time.Second)
	s, err = f.m.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, s.Fresh)
	assert.Equal(t, units(1_500, 9).String(), s.LastKnownValue.String())
}

func TestManager_AdminCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	market := &adaptor.LendingMarket{ID: "market-1"}
	require.ErrorIs(t, f.m.SetPool(ctx, nil, market), model.ErrUnauthorized)
	require.NoError(t, f.m.SetPool(ctx, f.admin, market))
	_, ok := f.v.Pool("market-1")
	assert.True(t, ok)

	require.NoError(t, f.m.SetOperatorFrozen(ctx, f.admin, f.op.ID(), true))
	require.ErrorIs(t, f.m.AddItem(ctx, f.op, "usdt", adaptor.NewBalance("USDT", units(1, 6))), model.ErrUnauthorized)
	require.ErrorIs(t, f.m.SetRewardRate(ctx, f.op, "REWARD", math.NewInt(1)), model.ErrUnauthorized)
	require.NoError(t, f.m.SetOperatorFrozen(ctx, f.admin, f.op.ID(), false))
	require.NoError(t, f.m.AddItem(ctx, f.op, "usdt", adaptor.NewBalance("USDT", units(1, 6))))
	require.NoError(t, f.m.SetRewardRate(ctx, f.op, "REWARD", math.NewInt(1)))
	assert.Equal(t, "1", f.v.RewardRates()["REWARD"].String())

	require.NoError(t, f.m.SetEnabled(ctx, f.admin, false))
	assert.Equal(t, model.StatusDisabled, f.v.Status())
	require.NoError(t, f.m.SetEnabled(ctx, f.admin, true))

	require.NoError(t, f.m.SetLossTolerance(ctx, f.admin, 50))
	require.NoError(t, f.m.SetFees(ctx, f.admin, 10, 20))
	require.NoError(t, f.m.SetLockingTimes(ctx, f.admin, time.Hour, time.Minute))
	p := f.v.Params()
	assert.Equal(t, uint64(50), p.LossToleranceBps)
	assert.Equal(t, uint64(20), p.WithdrawFeeBps)
	assert.Equal(t, time.Hour, p.LockingTimeForWithdraw)

	item, err := f.m.RemoveItem(ctx, f.admin, "usdt")
	require.NoError(t, err)
	assert.Equal(t, adaptor.KindBalance, item.Kind())
	assert.Empty(t, f.v.Keys())
}

func TestManager_RefreshOracleRunsOutsideCallLock(t *testing.T) {
	f := newFixture(t)
	f.m.mu.Lock()
	defer f.m.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := f.m.RefreshOracle(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("oracle refresh blocked on the call lock")
	}
}

func TestCheckpoint_MissingFileIsNil(t *testing.T) {
	s, err := LoadCheckpoint(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, s)
}
