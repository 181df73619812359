package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// Notifier delivers fire-and-forget text summaries of engine activity.
// Callers swallow any error it returns: a lost notification never affects
// trade processing.
type Notifier interface {
	// NotifyStart announces the engine coming up.
	NotifyStart(ctx context.Context, targetWallet string, budget float64, dryRun bool) error

	// NotifyCopy reports one flushed window for one market, hedge or single.
	NotifyCopy(ctx context.Context, copy domain.WindowCopy) error

	// NotifyStop reports the final rollup at shutdown.
	NotifyStop(ctx context.Context, summary domain.ROISummary, copied, failed, skipped int) error
}
