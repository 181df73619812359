package domain

import "time"

// Side of a trade as reported by the activity feed.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// TradeEvent es un trade del wallet objetivo tal como llega del feed,
// ya normalizado. Inmutable una vez construido.
type TradeEvent struct {
	TransactionID string // único a nivel global, clave de idempotencia
	Wallet        string
	Side          string // BUY | SELL
	MarketKey     string // condition_id del mercado
	Slug          string
	Title         string
	Outcome       string // label del outcome ("Up", "Down", "Yes", ...)
	OutcomeRef    string // token_id usado para colocar la orden
	Size          float64
	Price         float64
	Timestamp     time.Time
}

// Stake is the notional the target put behind this trade.
func (t TradeEvent) Stake() float64 {
	return t.Size * t.Price
}

// BufferedTrade is a TradeEvent plus the local receipt time. It only lives
// inside the active correlation window.
type BufferedTrade struct {
	TradeEvent
	ReceivedAt time.Time
}
