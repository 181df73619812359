package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/application/ledger"
	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

const (
	testWallet = "0xTargetWallet"
	testWindow = 60 * time.Millisecond
)

// fakeExecutor records every order it receives. Outcomes listed in failing
// get a failure result, everything else fills instantly.
type fakeExecutor struct {
	mu       sync.Mutex
	requests []domain.OrderRequest
	failing  map[string]string // outcome → error message
}

func (f *fakeExecutor) Execute(_ context.Context, req domain.OrderRequest) domain.OrderResult {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()

	if msg, ok := f.failing[req.Outcome]; ok {
		return domain.OrderResult{Error: msg}
	}
	return domain.OrderResult{Success: true, OrderID: fmt.Sprintf("ord-%d", n)}
}

func (f *fakeExecutor) Requests() []domain.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.OrderRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

type fakeNotifier struct {
	mu     sync.Mutex
	copies []domain.WindowCopy
}

func (f *fakeNotifier) NotifyStart(context.Context, string, float64, bool) error { return nil }

func (f *fakeNotifier) NotifyCopy(_ context.Context, c domain.WindowCopy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, c)
	return nil
}

func (f *fakeNotifier) NotifyStop(context.Context, domain.ROISummary, int, int, int) error {
	return nil
}

func (f *fakeNotifier) Copies() []domain.WindowCopy {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.WindowCopy, len(f.copies))
	copy(out, f.copies)
	return out
}

// gateExecutor blocks every order until released, so tests can observe the
// engine while legs are still in flight.
type gateExecutor struct {
	mu       sync.Mutex
	requests []domain.OrderRequest
	entered  chan domain.OrderRequest
	release  chan struct{}
}

func newGateExecutor() *gateExecutor {
	return &gateExecutor{
		entered: make(chan domain.OrderRequest, 8),
		release: make(chan struct{}),
	}
}

func (g *gateExecutor) Execute(ctx context.Context, req domain.OrderRequest) domain.OrderResult {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	g.entered <- req
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return domain.OrderResult{Success: true, OrderID: "ord-" + req.OutcomeRef}
}

func (g *gateExecutor) Requests() []domain.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.OrderRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

type testHarness struct {
	engine       *Engine
	ledger       *ledger.Ledger
	notifier     *fakeNotifier
	snapshotPath string
	cancel       context.CancelFunc
	done         chan struct{}
}

func newHarness(t *testing.T, exec ports.OrderExecutor) *testHarness {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	snapshotPath := filepath.Join(dir, "snapshot.json")
	led, err := ledger.New(context.Background(), store, ledger.Config{
		SnapshotPath:    snapshotPath,
		SnapshotRecords: 100,
		PersistInterval: time.Hour,
	})
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	eng := New(Config{
		TargetWallet:  testWallet,
		Budget:        5.0,
		Window:        testWindow,
		ShutdownGrace: 2 * time.Second,
	}, led, exec, notifier, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()

	h := &testHarness{engine: eng, ledger: led, notifier: notifier, snapshotPath: snapshotPath, cancel: cancel, done: done}
	t.Cleanup(h.stop)
	return h
}

func (h *testHarness) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
	}
}

// waitWindows blocks until the window count reaches want or the deadline hits.
func (h *testHarness) waitWindows(t *testing.T, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h.engine.Stats().Windows >= want {
			// Window processing is async; give the records a beat to land.
			time.Sleep(20 * time.Millisecond)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d windows, have %d", want, h.engine.Stats().Windows)
}

func tradeEvent(tx, market, outcome, side string, size, price float64) domain.TradeEvent {
	return domain.TradeEvent{
		TransactionID: tx,
		Wallet:        testWallet,
		Side:          side,
		MarketKey:     market,
		Title:         "Test Market " + market,
		Outcome:       outcome,
		OutcomeRef:    "token-" + market + "-" + outcome,
		Size:          size,
		Price:         price,
		Timestamp:     time.Now(),
	}
}

func TestEngine_SameOutcomeBurstAggregatesToOneOrder(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)

	// Three rapid BUY Up trades inside one window.
	h.engine.Submit(tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 10, 0.5))
	h.engine.Submit(tradeEvent("tx2", "mkt-a", "Up", domain.SideBuy, 20, 0.5))
	h.engine.Submit(tradeEvent("tx3", "mkt-a", "Up", domain.SideBuy, 30, 0.5))
	h.waitWindows(t, 1)

	// One aggregate order for the full budget, never 3× the budget.
	reqs := exec.Requests()
	require.Len(t, reqs, 1)
	assert.InDelta(t, 5.0, reqs[0].Amount, 0.001)
	assert.Equal(t, "Up", reqs[0].Outcome)

	// All three transaction ids are known afterwards, and the window is not
	// a hedge.
	assert.True(t, h.ledger.IsCopied("tx1"))
	assert.True(t, h.ledger.IsCopied("tx2"))
	assert.True(t, h.ledger.IsCopied("tx3"))

	copies := h.notifier.Copies()
	require.Len(t, copies, 1)
	assert.False(t, copies[0].IsHedge)
}

func TestEngine_OpposingOutcomesBecomeHedge(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)

	// Up stake 30×0.6=18, Down stake 30×0.4=12 → $3.00 / $2.00 split of $5.
	h.engine.Submit(tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 30, 0.6))
	h.engine.Submit(tradeEvent("tx2", "mkt-a", "Down", domain.SideBuy, 30, 0.4))
	h.waitWindows(t, 1)

	reqs := exec.Requests()
	require.Len(t, reqs, 2)

	byOutcome := map[string]float64{}
	var total float64
	for _, r := range reqs {
		byOutcome[r.Outcome] = r.Amount
		total += r.Amount
	}
	assert.InDelta(t, 3.0, byOutcome["Up"], 0.001)
	assert.InDelta(t, 2.0, byOutcome["Down"], 0.001)
	assert.InDelta(t, 5.0, total, 0.001)

	copies := h.notifier.Copies()
	require.Len(t, copies, 1)
	assert.True(t, copies[0].IsHedge)
	assert.Len(t, copies[0].Legs, 2)
}

func TestEngine_DuplicateTransactionIgnored(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)

	h.engine.Submit(tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 10, 0.5))
	h.waitWindows(t, 1)
	require.Len(t, exec.Requests(), 1)

	// Replay of the same feed event: filtered out, no second window forms.
	h.engine.Submit(tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 10, 0.5))
	time.Sleep(3 * testWindow)

	assert.Len(t, exec.Requests(), 1)
	assert.Equal(t, 1, h.engine.Stats().Windows)
}

func TestEngine_FailedLegIsRecordedNotRetried(t *testing.T) {
	exec := &fakeExecutor{failing: map[string]string{"Down": "insufficient liquidity"}}
	h := newHarness(t, exec)

	h.engine.Submit(tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 30, 0.6))
	h.engine.Submit(tradeEvent("tx2", "mkt-a", "Down", domain.SideBuy, 30, 0.4))
	h.waitWindows(t, 1)

	// Exactly one attempt per leg, even though one failed.
	assert.Len(t, exec.Requests(), 2)

	stats := h.engine.Stats()
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, 1, stats.Failed)

	// Both transactions are consumed either way: a failed copy is never
	// re-attempted on replay.
	assert.True(t, h.ledger.IsCopied("tx1"))
	assert.True(t, h.ledger.IsCopied("tx2"))

	var failedLeg *domain.CopiedLeg
	for _, c := range h.notifier.Copies() {
		for i := range c.Legs {
			if !c.Legs[i].Result.Success {
				failedLeg = &c.Legs[i]
			}
		}
	}
	require.NotNil(t, failedLeg)
	assert.Equal(t, "insufficient liquidity", failedLeg.Result.Error)
}

func TestEngine_TrailingDebounceExtendsWindow(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)

	// Two trades spaced at ~half the window: the second arrival resets the
	// timer, so both land in ONE flush instead of two.
	h.engine.Submit(tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 30, 0.6))
	time.Sleep(testWindow / 2)
	h.engine.Submit(tradeEvent("tx2", "mkt-a", "Down", domain.SideBuy, 30, 0.4))
	h.waitWindows(t, 1)

	assert.Equal(t, 1, h.engine.Stats().Windows)
	copies := h.notifier.Copies()
	require.Len(t, copies, 1)
	assert.True(t, copies[0].IsHedge, "both trades must land in the same window")
}

func TestEngine_QuietGapSplitsWindows(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)

	h.engine.Submit(tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 30, 0.6))
	h.waitWindows(t, 1)
	h.engine.Submit(tradeEvent("tx2", "mkt-a", "Down", domain.SideBuy, 30, 0.4))
	h.waitWindows(t, 2)

	// Separated by a full quiet window they are two independent single-side
	// copies, each for the full budget.
	reqs := exec.Requests()
	require.Len(t, reqs, 2)
	assert.InDelta(t, 5.0, reqs[0].Amount, 0.001)
	assert.InDelta(t, 5.0, reqs[1].Amount, 0.001)

	for _, c := range h.notifier.Copies() {
		assert.False(t, c.IsHedge)
	}
}

func TestEngine_IndependentMarketsInOneWindow(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)

	// Hedge on mkt-a plus a single buy on mkt-b, all in one window. Budgets
	// are per market: $5 to each.
	h.engine.Submit(tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 30, 0.6))
	h.engine.Submit(tradeEvent("tx2", "mkt-a", "Down", domain.SideBuy, 30, 0.4))
	h.engine.Submit(tradeEvent("tx3", "mkt-b", "Yes", domain.SideBuy, 10, 0.3))
	h.waitWindows(t, 1)

	var totalA, totalB float64
	for _, r := range exec.Requests() {
		switch r.MarketKey {
		case "mkt-a":
			totalA += r.Amount
		case "mkt-b":
			totalB += r.Amount
		}
	}
	assert.InDelta(t, 5.0, totalA, 0.001)
	assert.InDelta(t, 5.0, totalB, 0.001)
	assert.Len(t, h.notifier.Copies(), 2)
}

func TestEngine_FilterRejectsForeignAndImplausible(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)

	foreign := tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 10, 0.5)
	foreign.Wallet = "0xSomeoneElse"
	h.engine.Submit(foreign)

	h.engine.Submit(tradeEvent("tx2", "mkt-a", "Up", domain.SideSell, 10, 0.5))
	h.engine.Submit(tradeEvent("tx3", "mkt-a", "Up", domain.SideBuy, 0, 0.5))
	h.engine.Submit(tradeEvent("tx4", "mkt-a", "Up", domain.SideBuy, 10, 1.2))

	time.Sleep(3 * testWindow)
	assert.Empty(t, exec.Requests())
	assert.Equal(t, 0, h.engine.Stats().Accepted)
}

func TestEngine_MissingOutcomeRefSkipsLeg(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)

	ev := tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 10, 0.5)
	ev.OutcomeRef = ""
	h.engine.Submit(ev)
	h.waitWindows(t, 1)

	assert.Empty(t, exec.Requests())
	assert.Equal(t, 1, h.engine.Stats().Skipped)
	// Still consumed: the skip record keeps the id from being re-processed.
	assert.True(t, h.ledger.IsCopied("tx1"))
}

func TestEngine_StopFlushesPendingWindow(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)

	// Buffer a trade and stop before the window elapses: the pending buffer
	// must be flushed, not dropped.
	h.engine.Submit(tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 10, 0.5))
	time.Sleep(10 * time.Millisecond)
	h.stop()

	reqs := exec.Requests()
	require.Len(t, reqs, 1)
	assert.InDelta(t, 5.0, reqs[0].Amount, 0.001)
	assert.True(t, h.ledger.IsCopied("tx1"))

	// A ledger flush taken after the engine stopped (the shutdown order the
	// binary uses) must include the drained window's record.
	require.NoError(t, h.ledger.Flush(context.Background()))
	data, err := os.ReadFile(h.snapshotPath)
	require.NoError(t, err)
	var doc storage.SnapshotDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Records, 1)
	assert.Equal(t, "tx1", doc.Records[0].TransactionID)
}

func TestEngine_MarketsInOneWindowExecuteConcurrently(t *testing.T) {
	exec := newGateExecutor()
	h := newHarness(t, exec)

	h.engine.Submit(tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 10, 0.5))
	h.engine.Submit(tradeEvent("tx2", "mkt-b", "Yes", domain.SideBuy, 10, 0.5))

	// Both markets' legs must be in flight at the same time. With serialized
	// markets the second Execute never starts while the first one blocks.
	seen := map[string]bool{}
	timeout := time.After(3 * time.Second)
	for len(seen) < 2 {
		select {
		case req := <-exec.entered:
			seen[req.MarketKey] = true
		case <-timeout:
			t.Fatalf("only %d markets in flight, want 2", len(seen))
		}
	}
	close(exec.release)
	h.waitWindows(t, 1)

	assert.True(t, h.ledger.IsCopied("tx1"))
	assert.True(t, h.ledger.IsCopied("tx2"))
}

func TestEngine_RedeliveryDuringInFlightOrderIgnored(t *testing.T) {
	exec := newGateExecutor()
	h := newHarness(t, exec)

	h.engine.Submit(tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 10, 0.5))
	select {
	case <-exec.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("order never started")
	}

	// Redelivery while the order is still in flight: the id is reserved at
	// flush, so it must not re-buffer and spend a second budget.
	h.engine.Submit(tradeEvent("tx1", "mkt-a", "Up", domain.SideBuy, 10, 0.5))
	time.Sleep(3 * testWindow)
	close(exec.release)
	h.waitWindows(t, 1)

	assert.Len(t, exec.Requests(), 1)
	stats := h.engine.Stats()
	assert.Equal(t, 1, stats.Accepted)
	assert.Equal(t, 1, stats.Windows)
}

func TestEngine_ZeroRoundedHedgeLegIsConsumed(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)

	// Down's share is 5×1/10001, which rounds to $0.00: no order goes out,
	// but the trade id must still be consumed or a redelivery re-buffers it.
	h.engine.Submit(tradeEvent("tx-big", "mkt-a", "Up", domain.SideBuy, 20000, 0.5))
	h.engine.Submit(tradeEvent("tx-dust", "mkt-a", "Down", domain.SideBuy, 2, 0.5))
	h.waitWindows(t, 1)

	reqs := exec.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Up", reqs[0].Outcome)
	assert.InDelta(t, 5.0, reqs[0].Amount, 0.001)

	assert.True(t, h.ledger.IsCopied("tx-dust"))
	assert.Equal(t, 1, h.engine.Stats().Skipped)

	// Redelivery of the dust trade is now filtered, no new window forms.
	h.engine.Submit(tradeEvent("tx-dust", "mkt-a", "Down", domain.SideBuy, 2, 0.5))
	time.Sleep(3 * testWindow)
	assert.Equal(t, 1, h.engine.Stats().Windows)
}
