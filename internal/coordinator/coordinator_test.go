package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mselser95/lending-liquidator/internal/execution"
	"github.com/mselser95/lending-liquidator/pkg/config"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	poolUSDC types.PoolID = 0
	poolSOL  types.PoolID = 1
)

func addr(b byte) ledger.Address {
	raw := make([]byte, ledger.AddressLength)
	for i := range raw {
		raw[i] = b
	}
	a, err := ledger.AddressFromBytes(raw)
	if err != nil {
		panic(err)
	}
	return a
}

func testPools(t *testing.T) *config.Pools {
	t.Helper()
	pools, err := config.NewPools([]config.PoolConfig{
		{ID: poolUSDC, Symbol: "USDC", Mint: addr(1), LTV: 0.8, Decimals: 6, LiquidationDiscount: 0.05, Stable: true},
		{ID: poolSOL, Symbol: "SOL", Mint: addr(2), LTV: 0.8, Decimals: 9, LiquidationDiscount: 0.05, SwapToken: "SOL"},
	})
	require.NoError(t, err)
	return pools
}

// 1000 USD of SOL against 900 USD of USDC: ratio 1.125.
func unsafeSnapshot() *types.PositionSnapshot {
	return &types.PositionSnapshot{Entries: []types.PositionEntry{
		{Pool: poolSOL, Deposit: 10_000_000_000},
		{Pool: poolUSDC, Borrow: 900_000_000},
	}}
}

// 1000 USD of SOL against 500 USD of USDC.
func healthySnapshot() *types.PositionSnapshot {
	return &types.PositionSnapshot{Entries: []types.PositionEntry{
		{Pool: poolSOL, Deposit: 10_000_000_000},
		{Pool: poolUSDC, Borrow: 500_000_000},
	}}
}

type fakeBorrower struct {
	wallet   ledger.Address
	snap     *types.PositionSnapshot
	mu       sync.Mutex
	last     time.Time
	inFlight atomic.Bool
}

func (b *fakeBorrower) Wallet() ledger.Address            { return b.wallet }
func (b *fakeBorrower) Snapshot() *types.PositionSnapshot { return b.snap }
func (b *fakeBorrower) TryBeginAttempt() bool             { return b.inFlight.CompareAndSwap(false, true) }
func (b *fakeBorrower) EndAttempt()                       { b.inFlight.Store(false) }
func (b *fakeBorrower) InFlight() bool                    { return b.inFlight.Load() }

func (b *fakeBorrower) LastFired() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func (b *fakeBorrower) MarkFired(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = at
}

type borrowerList []*fakeBorrower

func (l borrowerList) Borrowers() []Borrower {
	out := make([]Borrower, 0, len(l))
	for _, b := range l {
		out = append(out, b)
	}
	return out
}

type fakePrice struct {
	pool  types.PoolID
	price float64
	ok    atomic.Bool
}

func (p *fakePrice) Pool() types.PoolID { return p.pool }

func (p *fakePrice) Price() (float64, bool) {
	if !p.ok.Load() {
		return 0, false
	}
	return p.price, true
}

func readyPrice(pool types.PoolID, price float64) *fakePrice {
	p := &fakePrice{pool: pool, price: price}
	p.ok.Store(true)
	return p
}

type fakeExecutor struct {
	mu     sync.Mutex
	plans  []types.ExecutionPlan
	result *execution.Result
	err    error
	// onExecute runs before the plan is recorded.
	onExecute func()
}

func (e *fakeExecutor) Execute(_ context.Context, plan *types.ExecutionPlan) (*execution.Result, error) {
	if e.onExecute != nil {
		e.onExecute()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plans = append(e.plans, *plan)
	return e.result, e.err
}

func (e *fakeExecutor) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.plans)
}

type memoryStorage struct {
	mu       sync.Mutex
	attempts []types.LiquidationAttempt
}

func (s *memoryStorage) StoreAttempt(_ context.Context, a *types.LiquidationAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, *a)
	return nil
}

func (s *memoryStorage) Close() error { return nil }

func (s *memoryStorage) all() []types.LiquidationAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.LiquidationAttempt(nil), s.attempts...)
}

type fakeBreaker struct {
	enabled  bool
	mu       sync.Mutex
	recorded []float64
}

func (b *fakeBreaker) IsEnabled() bool { return b.enabled }

func (b *fakeBreaker) RecordLiquidation(size float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorded = append(b.recorded, size)
}

type fakeReadiness struct{ ready atomic.Bool }

func (r *fakeReadiness) SetReady(ready bool) { r.ready.Store(ready) }

type fixture struct {
	coord    *Coordinator
	executor *fakeExecutor
	storage  *memoryStorage
	borrower *fakeBorrower
}

func newFixture(t *testing.T, mode string, snap *types.PositionSnapshot, mutate func(*Config)) *fixture {
	t.Helper()

	borrower := &fakeBorrower{wallet: addr(9), snap: snap}
	exec := &fakeExecutor{result: &execution.Result{Signatures: []ledger.Signature{"sig-1"}}}
	store := &memoryStorage{}

	cfg := &Config{
		Borrowers:          borrowerList{borrower},
		Prices:             []PriceSource{readyPrice(poolUSDC, 1), readyPrice(poolSOL, 100)},
		Pools:              testPools(t),
		Executor:           exec,
		Storage:            store,
		Mode:               mode,
		EvaluationInterval: 10 * time.Second,
		Cooldown:           20 * time.Second,
		PriceWaitPoll:      10 * time.Millisecond,
		MaxLiquidationUSD:  1000,
		Logger:             zap.NewNop(),
	}
	if mutate != nil {
		mutate(cfg)
	}

	coord, err := New(cfg)
	require.NoError(t, err)

	return &fixture{coord: coord, executor: exec, storage: store, borrower: borrower}
}

func TestNew_Validation(t *testing.T) {
	pools := testPools(t)
	base := func() *Config {
		return &Config{
			Borrowers:          borrowerList{},
			Pools:              pools,
			Executor:           &fakeExecutor{},
			Storage:            &memoryStorage{},
			Mode:               config.ModePaper,
			EvaluationInterval: time.Second,
			PriceWaitPoll:      time.Second,
			Logger:             zap.NewNop(),
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil-borrowers", func(c *Config) { c.Borrowers = nil }},
		{"nil-pools", func(c *Config) { c.Pools = nil }},
		{"nil-storage", func(c *Config) { c.Storage = nil }},
		{"nil-logger", func(c *Config) { c.Logger = nil }},
		{"zero-interval", func(c *Config) { c.EvaluationInterval = 0 }},
		{"zero-price-poll", func(c *Config) { c.PriceWaitPoll = 0 }},
		{"negative-cooldown", func(c *Config) { c.Cooldown = -time.Second }},
		{"unknown-mode", func(c *Config) { c.Mode = "yolo" }},
		{"live-without-executor", func(c *Config) { c.Mode = config.ModeLive; c.Executor = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			_, err := New(cfg)
			require.Error(t, err)
		})
	}

	t.Run("dry-run-without-executor", func(t *testing.T) {
		cfg := base()
		cfg.Mode = config.ModeDryRun
		cfg.Executor = nil
		_, err := New(cfg)
		require.NoError(t, err)
	})
}

func TestCooldownWindow(t *testing.T) {
	f := newFixture(t, config.ModePaper, unsafeSnapshot(), nil)

	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	f.borrower.MarkFired(t0)

	tests := []struct {
		name    string
		elapsed time.Duration
		fired   int
	}{
		{"zero-seconds", 0, 0},
		{"five-seconds", 5 * time.Second, 0},
		{"exactly-cooldown", 20 * time.Second, 0},
		{"twenty-five-seconds", 25 * time.Second, 1},
	}

	for _, tt := range tests {
		now := t0.Add(tt.elapsed)
		f.coord.now = func() time.Time { return now }

		got := f.coord.Evaluate(context.Background())
		f.coord.Wait()
		assert.Equal(t, tt.fired, got, tt.name)
	}

	assert.Equal(t, 1, f.executor.calls())
	assert.Equal(t, t0.Add(25*time.Second), f.borrower.LastFired())
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestEvaluate_CooldownMeasuredFromAttemptStart(t *testing.T) {
	f := newFixture(t, config.ModePaper, unsafeSnapshot(), nil)

	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := &stepClock{now: t0}
	f.coord.now = clock.Now
	f.executor.onExecute = func() { clock.Advance(17 * time.Second) }

	require.Equal(t, 1, f.coord.Evaluate(context.Background()))
	f.coord.Wait()
	assert.Equal(t, t0, f.borrower.LastFired())

	attempts := f.storage.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, t0, attempts[0].StartedAt)
	assert.Equal(t, t0.Add(17*time.Second), attempts[0].FinishedAt)

	// 17s after the first start: still cooling down.
	assert.Equal(t, 0, f.coord.Evaluate(context.Background()))
	f.coord.Wait()

	clock.Set(t0.Add(25 * time.Second))
	assert.Equal(t, 1, f.coord.Evaluate(context.Background()))
	f.coord.Wait()

	assert.Equal(t, 2, f.executor.calls())
	assert.Equal(t, t0.Add(25*time.Second), f.borrower.LastFired())
}

func TestRun_EvaluatesBeforeFirstTick(t *testing.T) {
	f := newFixture(t, config.ModePaper, unsafeSnapshot(), func(c *Config) {
		c.EvaluationInterval = time.Hour
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.coord.Run(ctx) }()

	require.Eventually(t, func() bool { return f.executor.calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop")
	}
	assert.Len(t, f.storage.all(), 1)
}

func TestEvaluate_NeverFiredBorrowerFires(t *testing.T) {
	f := newFixture(t, config.ModePaper, unsafeSnapshot(), nil)

	fired := f.coord.Evaluate(context.Background())
	f.coord.Wait()

	require.Equal(t, 1, fired)
	attempts := f.storage.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, types.AttemptSucceeded, attempts[0].Status)
	assert.Equal(t, []string{"sig-1"}, attempts[0].Signatures)
	assert.Equal(t, config.ModePaper, attempts[0].Mode)
	assert.Equal(t, addr(9).String(), attempts[0].Plan.Borrower)
	assert.NotEmpty(t, attempts[0].ID)
	assert.False(t, f.borrower.LastFired().IsZero())
	assert.False(t, f.borrower.inFlight.Load())
}

func TestEvaluate_SkipsHealthyAndUnloaded(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		f := newFixture(t, config.ModePaper, healthySnapshot(), nil)
		assert.Equal(t, 0, f.coord.Evaluate(context.Background()))
	})

	t.Run("no-snapshot", func(t *testing.T) {
		f := newFixture(t, config.ModePaper, nil, nil)
		assert.Equal(t, 0, f.coord.Evaluate(context.Background()))
	})

	t.Run("missing-price", func(t *testing.T) {
		f := newFixture(t, config.ModePaper, unsafeSnapshot(), func(c *Config) {
			c.Prices = []PriceSource{readyPrice(poolUSDC, 1), &fakePrice{pool: poolSOL}}
		})
		// Collateral unpriced leaves the limit at zero, so the ratio is undefined.
		assert.Equal(t, 0, f.coord.Evaluate(context.Background()))
	})
}

func TestEvaluate_InFlightBorrowerNotRefired(t *testing.T) {
	f := newFixture(t, config.ModePaper, unsafeSnapshot(), nil)
	require.True(t, f.borrower.TryBeginAttempt())

	assert.Equal(t, 0, f.coord.Evaluate(context.Background()))
	assert.Equal(t, 0, f.executor.calls())
}

func TestEvaluate_FailedAttemptStillCoolsDown(t *testing.T) {
	f := newFixture(t, config.ModeLive, unsafeSnapshot(), nil)
	f.executor.err = errors.New("unit 1: confirm timeout")
	f.executor.result = &execution.Result{Signatures: []ledger.Signature{"sig-partial"}}

	require.Equal(t, 1, f.coord.Evaluate(context.Background()))
	f.coord.Wait()

	attempts := f.storage.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, types.AttemptFailed, attempts[0].Status)
	assert.Equal(t, "unit 1: confirm timeout", attempts[0].Error)
	assert.Equal(t, []string{"sig-partial"}, attempts[0].Signatures)
	assert.False(t, f.borrower.LastFired().IsZero())

	assert.Equal(t, 0, f.coord.Evaluate(context.Background()))
}

func TestEvaluate_CircuitBreakerOpenSkipsWithoutCooldown(t *testing.T) {
	breaker := &fakeBreaker{enabled: false}
	f := newFixture(t, config.ModePaper, unsafeSnapshot(), func(c *Config) { c.Breaker = breaker })

	require.Equal(t, 1, f.coord.Evaluate(context.Background()))
	f.coord.Wait()

	assert.Equal(t, 0, f.executor.calls())
	attempts := f.storage.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, types.AttemptSkipped, attempts[0].Status)
	assert.True(t, f.borrower.LastFired().IsZero())

	breaker.enabled = true
	require.Equal(t, 1, f.coord.Evaluate(context.Background()))
	f.coord.Wait()

	assert.Equal(t, 1, f.executor.calls())
	require.Len(t, breaker.recorded, 1)
	assert.InDelta(t, f.storage.all()[1].Plan.LiquidatedValue, breaker.recorded[0], 1e-9)
}

func TestEvaluate_DryRun(t *testing.T) {
	f := newFixture(t, config.ModeDryRun, unsafeSnapshot(), func(c *Config) { c.Executor = nil })

	require.Equal(t, 1, f.coord.Evaluate(context.Background()))
	f.coord.Wait()

	attempts := f.storage.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, types.AttemptSkipped, attempts[0].Status)
	assert.Equal(t, "dry-run", attempts[0].Error)
	assert.False(t, f.borrower.LastFired().IsZero())
}

func TestPriceTable(t *testing.T) {
	f := newFixture(t, config.ModePaper, nil, func(c *Config) {
		c.Prices = []PriceSource{readyPrice(poolUSDC, 1), &fakePrice{pool: poolSOL}}
	})

	table := f.coord.PriceTable()
	assert.Equal(t, types.PriceTable{poolUSDC: 1}, table)
}

func TestWaitForPrices(t *testing.T) {
	pending := &fakePrice{pool: poolSOL, price: 100}
	f := newFixture(t, config.ModePaper, nil, func(c *Config) {
		c.Prices = []PriceSource{readyPrice(poolUSDC, 1), pending}
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		pending.ok.Store(true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.coord.WaitForPrices(ctx))
}

func TestWaitForPrices_Cancelled(t *testing.T) {
	f := newFixture(t, config.ModePaper, nil, func(c *Config) {
		c.Prices = []PriceSource{&fakePrice{pool: poolSOL}}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := f.coord.WaitForPrices(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_MarksReadyAndStops(t *testing.T) {
	readiness := &fakeReadiness{}
	f := newFixture(t, config.ModePaper, nil, func(c *Config) {
		c.Readiness = readiness
		c.EvaluationInterval = 10 * time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.coord.Run(ctx) }()

	require.Eventually(t, readiness.ready.Load, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop")
	}
}
