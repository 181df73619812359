// Package ledger owns the durable memory of the engine: which transactions
// were already copied, what happened to each attempt, and the ROI rollup
// derived from them.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

const flushTimeout = 10 * time.Second

// Config controls snapshot persistence.
type Config struct {
	SnapshotPath    string
	SnapshotRecords int // cap on records embedded in the snapshot document
	PersistInterval time.Duration
}

// Ledger keeps the idempotency set and the in-memory record log, hydrated
// from the record store at startup. Records are inserted into the store the
// moment they are marked; the JSON snapshot document is rewritten on a fixed
// interval and at shutdown. Snapshot failures are logged and retried on the
// next tick — they never block trade processing.
type Ledger struct {
	store ports.RecordStore
	cfg   Config

	mu      sync.Mutex
	copied  map[string]struct{}
	records []domain.CopyRecord // chronological, oldest first
	dirty   bool
}

// New hydrates a ledger from the store.
func New(ctx context.Context, store ports.RecordStore, cfg Config) (*Ledger, error) {
	ids, err := store.CopiedIDs(ctx)
	if err != nil {
		return nil, err
	}

	recent, err := store.RecentRecords(ctx, cfg.SnapshotRecords)
	if err != nil {
		return nil, err
	}
	// RecentRecords is newest-first; keep the in-memory log chronological.
	records := make([]domain.CopyRecord, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		records = append(records, recent[i])
	}

	copied := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		copied[id] = struct{}{}
	}

	slog.Info("ledger: hydrated", "known_transactions", len(copied), "records_in_memory", len(records))

	return &Ledger{
		store:   store,
		cfg:     cfg,
		copied:  copied,
		records: records,
	}, nil
}

// IsCopied is the O(1) idempotency check the trade filter consults.
func (l *Ledger) IsCopied(transactionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.copied[transactionID]
	return ok
}

// MarkCopied appends a record and updates the idempotency set. Replaying a
// transaction id is a no-op: exactly one record per transaction, ever.
// The store insert happens immediately; if it fails the record still counts
// in memory and the failure is logged — durability catches up on the next
// snapshot cycle, correctness does not depend on it.
func (l *Ledger) MarkCopied(ctx context.Context, rec domain.CopyRecord) {
	l.mu.Lock()
	if _, dup := l.copied[rec.TransactionID]; dup {
		l.mu.Unlock()
		slog.Warn("ledger: duplicate transaction ignored", "tx", rec.TransactionID)
		return
	}
	l.copied[rec.TransactionID] = struct{}{}
	l.records = append(l.records, rec)
	l.dirty = true
	l.mu.Unlock()

	if err := l.store.SaveRecord(ctx, rec); err != nil {
		slog.Error("ledger: save record failed", "tx", rec.TransactionID, "err", err)
	}
}

// ApplyResolution fills the settlement fields of a success record in place.
// Payout for a win is the full $1 per share bought at entry.
func (l *Ledger) ApplyResolution(ctx context.Context, transactionID string, won bool) {
	l.mu.Lock()
	var rec *domain.CopyRecord
	for i := range l.records {
		if l.records[i].TransactionID == transactionID {
			rec = &l.records[i]
			break
		}
	}
	if rec == nil || rec.Resolved || rec.Status != domain.CopySuccess {
		l.mu.Unlock()
		return
	}

	payout := 0.0
	if won {
		payout = rec.Shares()
	}
	profit := payout - rec.AmountSpent

	rec.Resolved = true
	rec.Won = &won
	rec.Payout = &payout
	rec.Profit = &profit
	l.dirty = true
	l.mu.Unlock()

	if err := l.store.UpdateResolution(ctx, transactionID, won, payout, profit); err != nil {
		slog.Error("ledger: update resolution failed", "tx", transactionID, "err", err)
	}

	slog.Info("ledger: resolution applied",
		"tx", transactionID,
		"won", won,
		"payout", payout,
		"profit", profit,
	)
}

// UnresolvedSuccess returns copies of the success records still waiting for
// settlement data, for the resolution sweep to chase.
func (l *Ledger) UnresolvedSuccess() []domain.CopyRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.CopyRecord
	for _, r := range l.records {
		if r.Status == domain.CopySuccess && !r.Resolved {
			out = append(out, r)
		}
	}
	return out
}

// ROISummary derives the rollup by scanning the in-memory records.
func (l *Ledger) ROISummary() domain.ROISummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.Summarize(l.records)
}

// TotalCopied is the number of distinct transactions ever recorded.
func (l *Ledger) TotalCopied() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.copied)
}

// Run drives the periodic snapshot cycle until ctx is cancelled, then takes
// one final snapshot so a clean shutdown never loses the rollup.
func (l *Ledger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.PersistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			if err := l.Flush(flushCtx); err != nil {
				slog.Error("ledger: final snapshot failed", "err", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := l.Flush(ctx); err != nil {
				slog.Warn("ledger: snapshot failed, will retry next interval", "err", err)
			}
		}
	}
}

// Flush writes the snapshot document if anything changed since the last one.
func (l *Ledger) Flush(_ context.Context) error {
	l.mu.Lock()
	if !l.dirty {
		l.mu.Unlock()
		return nil
	}

	// Newest first, capped to the configured record count.
	n := len(l.records)
	keep := l.cfg.SnapshotRecords
	if keep <= 0 || keep > n {
		keep = n
	}
	records := make([]domain.CopyRecord, 0, keep)
	for i := n - 1; i >= n-keep; i-- {
		records = append(records, l.records[i])
	}

	doc := storage.SnapshotDocument{
		LastUpdated:      time.Now().UTC(),
		TotalCopiedCount: len(l.copied),
		Summary:          domain.Summarize(l.records),
		Records:          records,
	}
	l.dirty = false
	l.mu.Unlock()

	if err := storage.WriteSnapshot(l.cfg.SnapshotPath, doc); err != nil {
		l.mu.Lock()
		l.dirty = true
		l.mu.Unlock()
		return err
	}

	slog.Debug("ledger: snapshot written", "records", len(records), "path", l.cfg.SnapshotPath)
	return nil
}
