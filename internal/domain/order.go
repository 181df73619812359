package domain

import "time"

// OrderRequest is one fill-or-kill BUY leg sent to the order collaborator.
type OrderRequest struct {
	MarketKey  string
	Outcome    string
	OutcomeRef string  // token_id of the outcome to buy
	Amount     float64 // USDC to spend
	Price      float64 // reference price, informational only for FOK
}

// OrderResult is the outcome of exactly one placement attempt. Executors
// never return an error out of band: failures travel inside the result so
// the window pipeline can record them instead of unwinding.
type OrderResult struct {
	Success bool
	OrderID string
	Error   string
	Elapsed time.Duration
}

// CopiedLeg pairs an executed allocation with its placement result, for
// recording and notification.
type CopiedLeg struct {
	Allocation Allocation
	Result     OrderResult
}

// WindowCopy summarizes everything the engine did for one market in one
// flushed window.
type WindowCopy struct {
	MarketKey string
	Title     string
	Slug      string
	IsHedge   bool
	Legs      []CopiedLeg
}
