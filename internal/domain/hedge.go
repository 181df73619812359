package domain

import "sort"

// HedgeGroup is all the activity for one market inside a single correlation
// window. It is a short-lived value: built at flush, consumed immediately,
// never persisted.
type HedgeGroup struct {
	MarketKey string
	Slug      string
	Title     string
	Trades    []BufferedTrade

	// Per-outcome aggregates over BUY legs only.
	Stakes map[string]float64 // outcome → Σ(size×price)
	Prices map[string]float64 // outcome → last-seen price
	Refs   map[string]string  // outcome → last-seen token_id
}

// IsHedge reports whether the target bought two or more distinct outcomes of
// the same market inside one window. A single outcome repeated k times is a
// conviction add, not a hedge, regardless of k.
func (g HedgeGroup) IsHedge() bool {
	return len(g.Stakes) >= 2
}

// TotalStake is the summed notional across all outcomes of the group.
func (g HedgeGroup) TotalStake() float64 {
	var total float64
	for _, s := range g.Stakes {
		total += s
	}
	return total
}

// IsDegenerate reports whether the group carries no usable stake at all.
// Degenerate groups produce no orders; their trades are marked skipped.
func (g HedgeGroup) IsDegenerate() bool {
	return g.TotalStake() <= 0
}

// Outcomes returns the outcome labels seen among BUY legs, sorted for
// deterministic iteration.
func (g HedgeGroup) Outcomes() []string {
	out := make([]string, 0, len(g.Stakes))
	for o := range g.Stakes {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// BuildGroups partitions a window buffer by market key. Trade order within a
// group follows buffer order, so "last seen" price/ref per outcome wins.
func BuildGroups(buffer []BufferedTrade) []HedgeGroup {
	byMarket := make(map[string]*HedgeGroup)
	var keys []string

	for _, bt := range buffer {
		g, ok := byMarket[bt.MarketKey]
		if !ok {
			g = &HedgeGroup{
				MarketKey: bt.MarketKey,
				Slug:      bt.Slug,
				Title:     bt.Title,
				Stakes:    make(map[string]float64),
				Prices:    make(map[string]float64),
				Refs:      make(map[string]string),
			}
			byMarket[bt.MarketKey] = g
			keys = append(keys, bt.MarketKey)
		}

		g.Trades = append(g.Trades, bt)
		if g.Title == "" {
			g.Title = bt.Title
		}

		if bt.Side == SideBuy {
			g.Stakes[bt.Outcome] += bt.Stake()
			g.Prices[bt.Outcome] = bt.Price
			if bt.OutcomeRef != "" {
				g.Refs[bt.Outcome] = bt.OutcomeRef
			}
		}
	}

	groups := make([]HedgeGroup, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, *byMarket[k])
	}
	return groups
}

// BuysForOutcome returns the group's BUY trades for one outcome, in buffer
// order. The last element is the representative trade for that leg.
func (g HedgeGroup) BuysForOutcome(outcome string) []BufferedTrade {
	var buys []BufferedTrade
	for _, bt := range g.Trades {
		if bt.Side == SideBuy && bt.Outcome == outcome {
			buys = append(buys, bt)
		}
	}
	return buys
}
