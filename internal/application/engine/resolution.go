package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// runResolutionSweep periodically asks the external resolver about markets
// with unresolved success records and applies whatever it reports. The
// engine records resolutions; it never determines them.
func (e *Engine) runResolutionSweep(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ResolutionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepResolutions(ctx)
		}
	}
}

func (e *Engine) sweepResolutions(ctx context.Context) {
	pending := e.ledger.UnresolvedSuccess()
	if len(pending) == 0 {
		return
	}

	// One resolver call per market, not per record.
	byMarket := make(map[string][]string) // marketKey → transaction ids
	outcomes := make(map[string]string)   // transactionID → copied outcome
	for _, rec := range pending {
		byMarket[rec.MarketKey] = append(byMarket[rec.MarketKey], rec.TransactionID)
		outcomes[rec.TransactionID] = rec.Outcome
	}

	slog.Debug("engine: resolution sweep", "markets", len(byMarket), "records", len(pending))

	for marketKey, txs := range byMarket {
		res, err := e.resolver.Resolution(ctx, marketKey)
		if err != nil {
			slog.Debug("engine: resolution lookup failed", "market", marketKey, "err", err)
			continue
		}
		if !res.Resolved {
			continue
		}
		for _, tx := range txs {
			won := strings.EqualFold(outcomes[tx], res.WinningOutcome)
			e.ledger.ApplyResolution(ctx, tx, won)
		}
	}
}
