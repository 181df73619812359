// Package engine wires the copy pipeline: filter → correlator → allocation
// → concurrent execution → ledger. One goroutine (the run loop) is the sole
// mutator of the window buffer and the flush timer; everything that can
// block — feed I/O, order placement, persistence — happens elsewhere.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polycopy/internal/application/ledger"
	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

const eventBuffer = 256

// Config holds the engine's runtime knobs.
type Config struct {
	TargetWallet       string
	Budget             float64 // per window and market, USDC
	Window             time.Duration
	CopySells          bool
	DryRun             bool
	ShutdownGrace      time.Duration
	ResolutionInterval time.Duration
}

// Stats are process-local counters owned by this engine instance. They are
// not authoritative — the ledger is — but they make the stop summary cheap.
type Stats struct {
	Received int // events delivered by the feed
	Accepted int // events that survived the filter
	Windows  int // flushed windows
	Hedges   int // groups classified as hedges
	Singles  int // groups classified as single-side
	Copied   int // success records written
	Failed   int // failed records written
	Skipped  int // skipped records written
}

// Engine is the per-instance coordinator. Multiple engines can coexist in
// one process; nothing here is global.
type Engine struct {
	cfg        Config
	ledger     *ledger.Ledger
	exec       ports.OrderExecutor
	notifier   ports.Notifier
	resolver   ports.MarketResolver // nil disables the resolution sweep
	catalog    ports.MarketCatalog  // nil disables metadata enrichment
	filter     *Filter
	correlator *Correlator

	events  chan domain.TradeEvent
	windows sync.WaitGroup

	// Transaction ids handed to an in-flight window but not yet in the
	// ledger. A feed redelivery during a slow order must not pass the filter
	// and spend twice.
	inFlightMu sync.Mutex
	inFlight   map[string]struct{}

	metaMu sync.Mutex
	meta   map[string]domain.MarketInfo

	statsMu sync.Mutex
	stats   Stats
}

// New builds an engine around its collaborators.
func New(cfg Config, led *ledger.Ledger, exec ports.OrderExecutor, notifier ports.Notifier, resolver ports.MarketResolver, catalog ports.MarketCatalog) *Engine {
	e := &Engine{
		cfg:        cfg,
		ledger:     led,
		exec:       exec,
		notifier:   notifier,
		resolver:   resolver,
		catalog:    catalog,
		correlator: &Correlator{},
		events:     make(chan domain.TradeEvent, eventBuffer),
		inFlight:   make(map[string]struct{}),
		meta:       make(map[string]domain.MarketInfo),
	}
	e.filter = NewFilter(cfg.TargetWallet, cfg.CopySells, e.seen)
	return e
}

// seen is the filter's idempotency check: already in the ledger, or reserved
// by a window whose orders are still in flight.
func (e *Engine) seen(transactionID string) bool {
	if e.ledger.IsCopied(transactionID) {
		return true
	}
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	_, ok := e.inFlight[transactionID]
	return ok
}

// reserve marks every transaction id of a flushed window as in flight, so a
// redelivery arriving while its orders execute cannot re-buffer.
func (e *Engine) reserve(groups []domain.HedgeGroup) {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	for _, g := range groups {
		for _, bt := range g.Trades {
			e.inFlight[bt.TransactionID] = struct{}{}
		}
	}
}

// release drops the reservations once the window has recorded. By now every
// recorded id is in the ledger; anything not recorded (a buffered SELL, say)
// goes back to being the filter's problem.
func (e *Engine) release(groups []domain.HedgeGroup) {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	for _, g := range groups {
		for _, bt := range g.Trades {
			delete(e.inFlight, bt.TransactionID)
		}
	}
}

// Submit hands a normalized trade event to the run loop. It never blocks
// the feed: if the engine is hopelessly behind, dropping is the lesser evil
// and the drop is logged.
func (e *Engine) Submit(ev domain.TradeEvent) {
	select {
	case e.events <- ev:
	default:
		slog.Warn("engine: event buffer full, dropping trade", "tx", ev.TransactionID)
	}
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

func (e *Engine) count(fn func(*Stats)) {
	e.statsMu.Lock()
	fn(&e.stats)
	e.statsMu.Unlock()
}

// Run drives the engine until ctx is cancelled. On stop it flushes the
// pending window instead of dropping buffered trades, waits out in-flight
// windows within the shutdown grace, and leaves the ledger flushed.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.notifier.NotifyStart(ctx, e.cfg.TargetWallet, e.cfg.Budget, e.cfg.DryRun); err != nil {
		slog.Debug("engine: start notification failed", "err", err)
	}

	// Windows keep executing under their own context so a stop signal lets
	// in-flight legs finish inside the grace period instead of cancelling
	// them mid-order.
	execCtx, execCancel := context.WithCancel(context.Background())
	defer execCancel()

	if e.resolver != nil {
		e.windows.Add(1)
		go func() {
			defer e.windows.Done()
			e.runResolutionSweep(ctx)
		}()
	}

	// Single resettable flush timer, armed only while trades are buffered.
	timer := time.NewTimer(e.cfg.Window)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			e.drain(execCtx)
			e.shutdown(execCancel)
			return nil

		case ev := <-e.events:
			e.count(func(s *Stats) { s.Received++ })
			if !e.filter.Accept(ev) {
				continue
			}
			e.count(func(s *Stats) { s.Accepted++ })
			e.correlator.Add(ev, time.Now())

			// Trailing debounce: the window is measured from the LAST
			// accepted trade, so every accept pushes the flush out again.
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(e.cfg.Window)
			armed = true
			slog.Debug("engine: trade buffered",
				"tx", ev.TransactionID,
				"market", ev.MarketKey,
				"outcome", ev.Outcome,
				"pending", e.correlator.Pending(),
			)

		case <-timer.C:
			armed = false
			groups := e.correlator.Flush()
			if len(groups) == 0 {
				continue
			}
			e.count(func(s *Stats) { s.Windows++ })
			e.reserve(groups)
			e.windows.Add(1)
			go func() {
				defer e.windows.Done()
				defer e.release(groups)
				e.processWindow(execCtx, groups)
			}()
		}
	}
}

// drain flushes whatever is still buffered when the stop signal arrives.
// Buffered trades were accepted; silently dropping them would lose copies.
func (e *Engine) drain(execCtx context.Context) {
	groups := e.correlator.Flush()
	if len(groups) == 0 {
		return
	}
	slog.Info("engine: flushing pending window on shutdown", "markets", len(groups))
	e.count(func(s *Stats) { s.Windows++ })
	e.reserve(groups)
	e.windows.Add(1)
	go func() {
		defer e.windows.Done()
		defer e.release(groups)
		e.processWindow(execCtx, groups)
	}()
}

// shutdown waits for in-flight windows within the grace period, then sends
// the final stats notification.
func (e *Engine) shutdown(execCancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		e.windows.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(e.cfg.ShutdownGrace):
		slog.Warn("engine: shutdown grace expired with windows still in flight")
		execCancel()
	}

	stats := e.Stats()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.notifier.NotifyStop(stopCtx, e.ledger.ROISummary(), stats.Copied, stats.Failed, stats.Skipped); err != nil {
		slog.Debug("engine: stop notification failed", "err", err)
	}

	slog.Info("engine: stopped",
		"received", stats.Received,
		"accepted", stats.Accepted,
		"windows", stats.Windows,
		"copied", stats.Copied,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
	)
}

// processWindow handles every group of one flushed window. Different
// windows, and different markets within one window, are independent and run
// concurrently: a slow order on one market must not delay another market's
// legs past its price. Correctness rests on ledger idempotency, never on
// ordering.
func (e *Engine) processWindow(ctx context.Context, groups []domain.HedgeGroup) {
	var wg sync.WaitGroup
	for _, g := range groups {
		wg.Add(1)
		go func(g domain.HedgeGroup) {
			defer wg.Done()
			e.processGroup(ctx, g)
		}(g)
	}
	wg.Wait()
}

func (e *Engine) processGroup(ctx context.Context, g domain.HedgeGroup) {
	e.enrichMetadata(ctx, &g)

	if g.IsDegenerate() {
		slog.Warn("engine: degenerate group skipped", "market", g.MarketKey, "trades", len(g.Trades))
		for _, bt := range g.Trades {
			e.recordSkip(ctx, g, bt, "degenerate group")
		}
		return
	}

	isHedge := g.IsHedge()
	if isHedge {
		e.count(func(s *Stats) { s.Hedges++ })
	} else {
		e.count(func(s *Stats) { s.Singles++ })
	}

	allocs := domain.Allocate(g, e.cfg.Budget)

	// An outcome whose proportional share rounded to $0.00 gets no order, but
	// its trades still need skip records: an unrecorded id would pass the
	// filter again on redelivery.
	allocated := make(map[string]struct{}, len(allocs))
	for _, a := range allocs {
		allocated[a.Outcome] = struct{}{}
	}
	for _, o := range g.Outcomes() {
		if _, ok := allocated[o]; ok {
			continue
		}
		slog.Warn("engine: allocation rounded to zero", "market", g.MarketKey, "outcome", o)
		for _, bt := range g.BuysForOutcome(o) {
			e.recordSkip(ctx, g, bt, "allocation rounded to zero")
		}
	}

	// Legs without an outcome reference cannot be placed; their trades are
	// skipped, not failed — nothing was ever attempted.
	executable := allocs[:0]
	for _, a := range allocs {
		if a.OutcomeRef == "" {
			slog.Warn("engine: missing outcome reference", "market", g.MarketKey, "outcome", a.Outcome)
			for _, bt := range g.BuysForOutcome(a.Outcome) {
				e.recordSkip(ctx, g, bt, "missing outcome reference")
			}
			continue
		}
		executable = append(executable, a)
	}
	if len(executable) == 0 {
		return
	}

	slog.Info("engine: executing window",
		"market", g.MarketKey,
		"title", g.Title,
		"hedge", isHedge,
		"legs", len(executable),
		"budget", e.cfg.Budget,
	)

	// Both legs of a hedge go out concurrently to minimize price drift
	// between them. Submission order is deliberately unspecified.
	legs := make([]domain.CopiedLeg, len(executable))
	var wg sync.WaitGroup
	for i, a := range executable {
		wg.Add(1)
		go func(i int, a domain.Allocation) {
			defer wg.Done()
			result := e.exec.Execute(ctx, domain.OrderRequest{
				MarketKey:  a.MarketKey,
				Outcome:    a.Outcome,
				OutcomeRef: a.OutcomeRef,
				Amount:     a.Amount,
				Price:      a.Price,
			})
			legs[i] = domain.CopiedLeg{Allocation: a, Result: result}
		}(i, a)
	}
	wg.Wait()

	for _, leg := range legs {
		e.recordLeg(ctx, g, leg, isHedge)
	}

	copySummary := domain.WindowCopy{
		MarketKey: g.MarketKey,
		Title:     g.Title,
		Slug:      g.Slug,
		IsHedge:   isHedge,
		Legs:      legs,
	}
	if err := e.notifier.NotifyCopy(ctx, copySummary); err != nil {
		slog.Debug("engine: copy notification failed", "err", err)
	}
}

// enrichMetadata backfills slug and title from the market catalog when the
// feed delivered the trades without them. Lookups are cached per market;
// failures degrade to the market key and get retried on the next window.
func (e *Engine) enrichMetadata(ctx context.Context, g *domain.HedgeGroup) {
	if e.catalog == nil || (g.Title != "" && g.Slug != "") {
		return
	}

	e.metaMu.Lock()
	info, cached := e.meta[g.MarketKey]
	e.metaMu.Unlock()

	if !cached {
		var err error
		info, err = e.catalog.MarketInfo(ctx, g.MarketKey)
		if err != nil {
			slog.Debug("engine: market metadata lookup failed", "market", g.MarketKey, "err", err)
			return
		}
		e.metaMu.Lock()
		e.meta[g.MarketKey] = info
		e.metaMu.Unlock()
	}

	if g.Title == "" {
		g.Title = info.Title
	}
	if g.Slug == "" {
		g.Slug = info.Slug
	}
}

// recordLeg writes one CopyRecord for the executed leg, keyed by the leg's
// representative (last-seen) trade. Earlier same-outcome trades in the
// window were aggregated into that single order and are recorded as skipped
// so their transaction ids still land in the idempotency index.
func (e *Engine) recordLeg(ctx context.Context, g domain.HedgeGroup, leg domain.CopiedLeg, isHedge bool) {
	buys := g.BuysForOutcome(leg.Allocation.Outcome)
	if len(buys) == 0 {
		return
	}
	rep := buys[len(buys)-1]

	rec := domain.CopyRecord{
		TransactionID: rep.TransactionID,
		CopiedAt:      time.Now().UTC(),
		MarketKey:     g.MarketKey,
		MarketSlug:    g.Slug,
		Title:         g.Title,
		Outcome:       leg.Allocation.Outcome,
		OutcomeRef:    leg.Allocation.OutcomeRef,
		IsHedge:       isHedge,
		EntryPrice:    leg.Allocation.Price,
	}

	if leg.Result.Success {
		rec.Status = domain.CopySuccess
		rec.OrderID = leg.Result.OrderID
		rec.AmountSpent = leg.Allocation.Amount
		e.count(func(s *Stats) { s.Copied++ })
		slog.Info("engine: leg copied",
			"tx", rep.TransactionID,
			"outcome", leg.Allocation.Outcome,
			"amount", leg.Allocation.Amount,
			"order_id", leg.Result.OrderID,
			"elapsed", leg.Result.Elapsed,
		)
	} else {
		rec.Status = domain.CopyFailed
		rec.Error = leg.Result.Error
		e.count(func(s *Stats) { s.Failed++ })
		slog.Error("engine: leg failed",
			"tx", rep.TransactionID,
			"outcome", leg.Allocation.Outcome,
			"err", leg.Result.Error,
		)
	}
	e.ledger.MarkCopied(ctx, rec)

	for _, bt := range buys[:len(buys)-1] {
		e.recordSkip(ctx, g, bt, "aggregated into "+rep.TransactionID)
	}
}

func (e *Engine) recordSkip(ctx context.Context, g domain.HedgeGroup, bt domain.BufferedTrade, reason string) {
	e.count(func(s *Stats) { s.Skipped++ })
	e.ledger.MarkCopied(ctx, domain.CopyRecord{
		TransactionID: bt.TransactionID,
		CopiedAt:      time.Now().UTC(),
		Status:        domain.CopySkipped,
		Error:         reason,
		MarketKey:     g.MarketKey,
		MarketSlug:    g.Slug,
		Title:         g.Title,
		Outcome:       bt.Outcome,
		OutcomeRef:    bt.OutcomeRef,
		EntryPrice:    bt.Price,
	})
}
