package domain

import "math"

// Allocation is the spend decision for one leg of a window: buy `Amount`
// USDC of `Outcome` at around `Price`.
type Allocation struct {
	MarketKey  string
	Outcome    string
	OutcomeRef string
	Amount     float64 // USDC to spend on this leg
	Price      float64 // representative (last-seen) price for the outcome
}

// Allocate converts a classified group into per-outcome spend, never
// exceeding the per-window budget for the market.
//
// Hedge group: split the budget proportionally to the target's own stakes,
// so the copy mirrors the target's hedge ratio instead of doubling up.
// Single-side group: the whole budget goes to the one outcome as a single
// aggregate order — k same-outcome trades in one window do not multiply it.
// Degenerate group (zero total stake): no allocation at all.
func Allocate(g HedgeGroup, budget float64) []Allocation {
	total := g.TotalStake()
	if total <= 0 || budget <= 0 {
		return nil
	}

	outcomes := g.Outcomes()
	allocs := make([]Allocation, 0, len(outcomes))

	if !g.IsHedge() {
		o := outcomes[0]
		return []Allocation{{
			MarketKey:  g.MarketKey,
			Outcome:    o,
			OutcomeRef: g.Refs[o],
			Amount:     roundCents(budget),
			Price:      g.Prices[o],
		}}
	}

	// Proportional split, rounded to cents. The rounding remainder lands on
	// the largest-stake leg so the amounts always sum to the budget.
	var allocated float64
	largest := 0
	for i, o := range outcomes {
		amount := roundCents(budget * g.Stakes[o] / total)
		allocated += amount
		if g.Stakes[o] > g.Stakes[outcomes[largest]] {
			largest = i
		}
		allocs = append(allocs, Allocation{
			MarketKey:  g.MarketKey,
			Outcome:    o,
			OutcomeRef: g.Refs[o],
			Amount:     amount,
			Price:      g.Prices[o],
		})
	}
	allocs[largest].Amount = roundCents(allocs[largest].Amount + budget - allocated)

	// Zero-stake outcomes get zero; drop them rather than sending $0 orders.
	kept := allocs[:0]
	for _, a := range allocs {
		if a.Amount > 0 {
			kept = append(kept, a)
		}
	}
	return kept
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
