package engine

import (
	"log/slog"
	"strings"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// Filter decides which normalized trade events enter the window buffer.
// It is pure except for one read against the coordinator's idempotency
// check (ledger plus in-flight reservations).
type Filter struct {
	targetWallet string
	copySells    bool
	isCopied     func(transactionID string) bool
}

// NewFilter creates a filter for the given target. Wallet comparison is
// case-insensitive — addresses arrive checksummed or not depending on the
// producer.
func NewFilter(targetWallet string, copySells bool, isCopied func(string) bool) *Filter {
	return &Filter{
		targetWallet: strings.ToLower(targetWallet),
		copySells:    copySells,
		isCopied:     isCopied,
	}
}

// Accept returns true when the event should be buffered. Rejections are
// logged at debug with the reason; they are frequent and uninteresting.
func (f *Filter) Accept(ev domain.TradeEvent) bool {
	if !strings.EqualFold(ev.Wallet, f.targetWallet) {
		return false
	}
	if ev.Side != domain.SideBuy && !f.copySells {
		slog.Debug("filter: non-buy side dropped", "tx", ev.TransactionID, "side", ev.Side)
		return false
	}
	if ev.Size <= 0 || ev.Price <= 0 || ev.Price >= 1 {
		slog.Debug("filter: implausible size/price dropped",
			"tx", ev.TransactionID, "size", ev.Size, "price", ev.Price)
		return false
	}
	if f.isCopied(ev.TransactionID) {
		slog.Debug("filter: already copied", "tx", ev.TransactionID)
		return false
	}
	return true
}
