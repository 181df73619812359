package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/polycopy/internal/adapters/notify"
	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

const reportRecords = 25

func runReport(ctx context.Context, store *storage.SQLiteStore) {
	recent, err := store.RecentRecords(ctx, reportRecords)
	if err != nil {
		slog.Error("failed to read records", "err", err)
		os.Exit(1)
	}

	// Para el rollup interesa todo el histórico, no solo lo que se imprime.
	all, err := store.RecentRecords(ctx, 1<<20)
	if err != nil {
		slog.Error("failed to read records", "err", err)
		os.Exit(1)
	}

	fmt.Printf("\n── COPY LEDGER (%d records total) ──\n\n", len(all))
	notify.PrintSummary(os.Stdout, domain.Summarize(all))

	if len(recent) == 0 {
		fmt.Println("\n  (no copy records yet)")
		return
	}

	fmt.Printf("\n── LAST %d RECORDS ──\n", len(recent))
	fmt.Printf("  %-19s %-8s %-7s %-30s %-8s %8s %6s %s\n",
		"COPIED AT", "STATUS", "HEDGE", "MARKET", "OUTCOME", "SPENT", "PRICE", "RESULT")
	for _, r := range recent {
		title := r.Title
		if title == "" {
			title = r.MarketKey
		}
		if len(title) > 30 {
			title = title[:27] + "..."
		}

		hedge := ""
		if r.IsHedge {
			hedge = "hedge"
		}

		result := "-"
		switch {
		case r.Status == domain.CopyFailed:
			result = r.Error
		case r.Resolved && r.Won != nil && *r.Won:
			result = fmt.Sprintf("WON +$%.2f", deref(r.Profit))
		case r.Resolved:
			result = fmt.Sprintf("LOST $%.2f", deref(r.Profit))
		}
		if len(result) > 30 {
			result = result[:27] + "..."
		}

		fmt.Printf("  %-19s %-8s %-7s %-30s %-8s %8.2f %6.2f %s\n",
			r.CopiedAt.Format(time.DateTime),
			r.Status,
			hedge,
			title,
			r.Outcome,
			r.AmountSpent,
			r.EntryPrice,
			result,
		)
	}
	fmt.Println()
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
