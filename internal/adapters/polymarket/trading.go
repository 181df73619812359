package polymarket

// trading.go — Real order execution against the order-placement collaborator.
//
// Implements ports.OrderExecutor with exactly one FOK (fill-or-kill) BUY per
// call. A FOK order fills completely right away or is cancelled by the
// venue; there is never a resting or partially filled state to track.

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

type orderRequest struct {
	TokenID   string  `json:"tokenID"`
	Side      string  `json:"side"`
	Amount    float64 `json:"amount"` // USDC to spend
	OrderType string  `json:"orderType"`
}

type orderResponse struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderID"`
	ErrorMsg string `json:"errorMsg"`
	Status   string `json:"status"`
}

// TradingClient implements ports.OrderExecutor against the live backend.
//
// It can only be constructed with credentials. Dry-run wiring never creates
// one, so simulated runs are structurally unable to reach the live venue.
type TradingClient struct {
	client *Client
}

// NewTradingClient creates a live executor. Fails fast when the API key is
// missing — that is a startup error, not something to discover mid-trade.
func NewTradingClient(client *Client, apiKey string) (*TradingClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("polymarket.NewTradingClient: missing API key (set COPY_API_KEY)")
	}
	client.apiKey = apiKey
	return &TradingClient{client: client}, nil
}

// Execute submits one fill-or-kill BUY. One attempt per call; any failure is
// carried back in the result for the ledger to record.
func (tc *TradingClient) Execute(ctx context.Context, req domain.OrderRequest) domain.OrderResult {
	start := time.Now()

	if req.OutcomeRef == "" {
		return domain.OrderResult{
			Error:   "missing outcome reference",
			Elapsed: time.Since(start),
		}
	}

	body := orderRequest{
		TokenID:   req.OutcomeRef,
		Side:      domain.SideBuy,
		Amount:    req.Amount,
		OrderType: "FOK",
	}

	var resp orderResponse
	url := tc.client.orderBase + "/order"
	if err := tc.client.postOnce(ctx, tc.client.orderLimiter, url, body, &resp); err != nil {
		return domain.OrderResult{
			Error:   err.Error(),
			Elapsed: time.Since(start),
		}
	}

	if !resp.Success || resp.OrderID == "" {
		msg := resp.ErrorMsg
		if msg == "" {
			msg = fmt.Sprintf("order rejected (status %q)", resp.Status)
		}
		return domain.OrderResult{
			Error:   msg,
			Elapsed: time.Since(start),
		}
	}

	return domain.OrderResult{
		Success: true,
		OrderID: resp.OrderID,
		Elapsed: time.Since(start),
	}
}
