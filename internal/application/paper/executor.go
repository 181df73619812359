// Package paper provides the dry-run order executor. It lives in its own
// package, away from any live client: simulated runs never import, let
// alone construct, the code path that can reach the venue.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const simulatedLatency = 150 * time.Millisecond

// Executor implements ports.OrderExecutor without touching the network.
// Every leg succeeds after a fixed simulated latency and gets a synthetic
// order id, so the rest of the pipeline behaves exactly as in live mode.
type Executor struct {
	latency time.Duration
}

// New creates a dry-run executor with the default simulated latency.
func New() *Executor {
	return &Executor{latency: simulatedLatency}
}

// NewWithLatency is for tests that don't want to wait.
func NewWithLatency(latency time.Duration) *Executor {
	return &Executor{latency: latency}
}

// Execute simulates one fill-or-kill BUY.
func (e *Executor) Execute(ctx context.Context, req domain.OrderRequest) domain.OrderResult {
	start := time.Now()

	if req.OutcomeRef == "" {
		return domain.OrderResult{
			Error:   "missing outcome reference",
			Elapsed: time.Since(start),
		}
	}

	select {
	case <-ctx.Done():
		return domain.OrderResult{
			Error:   ctx.Err().Error(),
			Elapsed: time.Since(start),
		}
	case <-time.After(e.latency):
	}

	orderID := "sim-" + uuid.NewString()
	slog.Debug("paper: simulated fill",
		"outcome", req.Outcome,
		"amount", fmt.Sprintf("$%.2f", req.Amount),
		"price", req.Price,
		"order_id", orderID,
	)

	return domain.OrderResult{
		Success: true,
		OrderID: orderID,
		Elapsed: time.Since(start),
	}
}
