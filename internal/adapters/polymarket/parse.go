package polymarket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// frameEnvelope matches the live-data message envelope. Payload stays raw so
// it can be decoded per topic/type.
type frameEnvelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// rawActivityTrade es un trade del canal de actividad, con numéricos como
// json.Number porque el feed los manda a veces como string.
type rawActivityTrade struct {
	TransactionHash string      `json:"transactionHash"`
	ProxyWallet     string      `json:"proxyWallet"`
	Side            string      `json:"side"`
	ConditionID     string      `json:"conditionId"`
	Slug            string      `json:"slug"`
	Title           string      `json:"title"`
	Outcome         string      `json:"outcome"`
	Asset           string      `json:"asset"`
	Size            json.Number `json:"size"`
	Price           json.Number `json:"price"`
	Timestamp       json.Number `json:"timestamp"`
}

// ParseFrame decodes one websocket frame into zero or more trade events.
// Frames from other topics yield nothing; malformed frames return an error
// for the caller to log and drop.
func ParseFrame(data []byte) ([]domain.TradeEvent, error) {
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("polymarket.ParseFrame: envelope: %w", err)
	}
	if env.Topic != "activity" || env.Type != "trades" || len(env.Payload) == 0 {
		return nil, nil
	}

	// The payload is a single trade object, or a batch when the feed catches up.
	var raws []rawActivityTrade
	if env.Payload[0] == '[' {
		if err := json.Unmarshal(env.Payload, &raws); err != nil {
			return nil, fmt.Errorf("polymarket.ParseFrame: payload batch: %w", err)
		}
	} else {
		var one rawActivityTrade
		if err := json.Unmarshal(env.Payload, &one); err != nil {
			return nil, fmt.Errorf("polymarket.ParseFrame: payload: %w", err)
		}
		raws = append(raws, one)
	}

	// Un trade inválido no invalida el resto del batch: se descarta solo él.
	events := make([]domain.TradeEvent, 0, len(raws))
	for _, rt := range raws {
		ev, err := rt.toEvent()
		if err != nil {
			slog.Debug("polymarket: trade dropped from frame", "err", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (rt rawActivityTrade) toEvent() (domain.TradeEvent, error) {
	if rt.TransactionHash == "" {
		return domain.TradeEvent{}, fmt.Errorf("trade without transaction hash")
	}
	if rt.ConditionID == "" {
		return domain.TradeEvent{}, fmt.Errorf("trade %s without condition id", rt.TransactionHash)
	}

	price, _ := rt.Price.Float64()
	size, _ := rt.Size.Float64()

	var ts time.Time
	if secs, err := rt.Timestamp.Int64(); err == nil && secs > 0 {
		// Algunos mensajes traen milisegundos en lugar de segundos.
		if secs > 1e12 {
			ts = time.UnixMilli(secs)
		} else {
			ts = time.Unix(secs, 0)
		}
	} else {
		ts = time.Now()
	}

	return domain.TradeEvent{
		TransactionID: rt.TransactionHash,
		Wallet:        rt.ProxyWallet,
		Side:          rt.Side,
		MarketKey:     rt.ConditionID,
		Slug:          rt.Slug,
		Title:         rt.Title,
		Outcome:       rt.Outcome,
		OutcomeRef:    rt.Asset,
		Size:          size,
		Price:         price,
		Timestamp:     ts,
	}, nil
}
