package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// OrderExecutor places exactly one fill-or-kill BUY order per call.
//
// One attempt, no retries — retrying a failed leg against a market that has
// already moved is the coordinator's call to make, and by policy it declines.
// Errors are reported inside the result, never returned.
type OrderExecutor interface {
	Execute(ctx context.Context, req domain.OrderRequest) domain.OrderResult
}
