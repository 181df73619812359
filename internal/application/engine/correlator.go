package engine

import (
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// Correlator buffers accepted trades for the active window. It exists
// because a trader buying two opposing outcomes of one market within
// seconds is expressing market-neutral intent, not two directional bets —
// copying the legs one by one would misread the intent and fill the second
// leg after the market has already moved.
//
// The correlator owns only the buffer; the single resettable flush timer
// belongs to the engine loop, which is the buffer's one mutator.
type Correlator struct {
	buffer []domain.BufferedTrade
}

// Add appends an accepted trade to the active window.
func (c *Correlator) Add(ev domain.TradeEvent, receivedAt time.Time) {
	c.buffer = append(c.buffer, domain.BufferedTrade{TradeEvent: ev, ReceivedAt: receivedAt})
}

// Pending reports how many trades sit in the active window.
func (c *Correlator) Pending() int {
	return len(c.buffer)
}

// Flush partitions the buffer into one HedgeGroup per market observed since
// the last flush, and clears the buffer. Classification is the groups' own
// business (domain.HedgeGroup.IsHedge).
func (c *Correlator) Flush() []domain.HedgeGroup {
	if len(c.buffer) == 0 {
		return nil
	}
	groups := domain.BuildGroups(c.buffer)
	c.buffer = nil
	return groups
}
