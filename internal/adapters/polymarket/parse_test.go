package polymarket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

func TestParseFrame_SingleTrade(t *testing.T) {
	frame := []byte(`{
		"topic": "activity",
		"type": "trades",
		"payload": {
			"transactionHash": "0xabc",
			"proxyWallet": "0xTarget",
			"side": "BUY",
			"conditionId": "0xcond",
			"slug": "btc-up-or-down",
			"title": "Bitcoin Up or Down?",
			"outcome": "Up",
			"asset": "1234567890",
			"size": 10,
			"price": 0.55,
			"timestamp": 1756100000
		}
	}`)

	events, err := ParseFrame(frame)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "0xabc", ev.TransactionID)
	assert.Equal(t, "0xTarget", ev.Wallet)
	assert.Equal(t, domain.SideBuy, ev.Side)
	assert.Equal(t, "0xcond", ev.MarketKey)
	assert.Equal(t, "Up", ev.Outcome)
	assert.Equal(t, "1234567890", ev.OutcomeRef)
	assert.InDelta(t, 10.0, ev.Size, 0.001)
	assert.InDelta(t, 0.55, ev.Price, 0.001)
	assert.Equal(t, int64(1756100000), ev.Timestamp.Unix())
}

func TestParseFrame_BatchPayload(t *testing.T) {
	frame := []byte(`{
		"topic": "activity",
		"type": "trades",
		"payload": [
			{"transactionHash": "0x1", "conditionId": "0xc", "side": "BUY", "size": "5", "price": "0.4", "timestamp": 1756100000},
			{"transactionHash": "0x2", "conditionId": "0xc", "side": "SELL", "size": "3", "price": "0.6", "timestamp": 1756100001}
		]
	}`)

	events, err := ParseFrame(frame)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Numerics arrive as strings in some frames; json.Number absorbs both.
	assert.InDelta(t, 5.0, events[0].Size, 0.001)
	assert.InDelta(t, 0.6, events[1].Price, 0.001)
}

func TestParseFrame_OtherTopicsIgnored(t *testing.T) {
	events, err := ParseFrame([]byte(`{"topic": "prices", "type": "update", "payload": {"x": 1}}`))
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseFrame_MalformedJSON(t *testing.T) {
	_, err := ParseFrame([]byte(`{not json`))
	assert.Error(t, err)
}

func TestParseFrame_MissingTransactionHash(t *testing.T) {
	frame := []byte(`{
		"topic": "activity",
		"type": "trades",
		"payload": {"conditionId": "0xc", "side": "BUY", "size": 1, "price": 0.5}
	}`)
	events, err := ParseFrame(frame)
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseFrame_BadTradeDoesNotPoisonBatch(t *testing.T) {
	// The middle trade has no transaction hash; its neighbors must survive.
	frame := []byte(`{
		"topic": "activity",
		"type": "trades",
		"payload": [
			{"transactionHash": "0x1", "conditionId": "0xc", "side": "BUY", "size": 1, "price": 0.5},
			{"conditionId": "0xc", "side": "BUY", "size": 1, "price": 0.5},
			{"transactionHash": "0x3", "conditionId": "0xc", "side": "BUY", "size": 1, "price": 0.5}
		]
	}`)

	events, err := ParseFrame(frame)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "0x1", events[0].TransactionID)
	assert.Equal(t, "0x3", events[1].TransactionID)
}

func TestParseFrame_MillisecondTimestamps(t *testing.T) {
	frame := []byte(`{
		"topic": "activity",
		"type": "trades",
		"payload": {"transactionHash": "0x1", "conditionId": "0xc", "side": "BUY", "size": 1, "price": 0.5, "timestamp": 1756100000123}
	}`)

	events, err := ParseFrame(frame)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1756100000), events[0].Timestamp.Unix())
}
