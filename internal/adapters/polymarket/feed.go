package polymarket

// feed.go — Streaming trade-activity listener.
//
// One websocket connection to the live-data endpoint. The connection walks a
// small explicit state machine (disconnected → connecting → connected →
// disconnected) instead of nesting reconnect callbacks, so cancellation
// stays a straight line. Every (re)connect reissues the same subscription
// exactly once; reconnects wait a fixed delay and retry forever until the
// context is cancelled.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	pingInterval     = 5 * time.Second
)

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// subscription is the fixed trade-activity subscription. It never changes
// across reconnects, so a reconnect can never double-subscribe.
type subscription struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
}

type subscribeRequest struct {
	Action        string         `json:"action"`
	Subscriptions []subscription `json:"subscriptions"`
}

// Feed maintains the streaming connection and forwards raw frames to a
// callback. Parsing and filtering happen downstream; the feed's only jobs
// are liveness and delivery.
type Feed struct {
	url            string
	reconnectDelay time.Duration
	onFrame        func(data []byte)

	mu    sync.Mutex
	state connState
	wg    sync.WaitGroup
}

// NewFeed creates a listener for the trade-activity channel.
func NewFeed(url string, reconnectDelay time.Duration, onFrame func(data []byte)) *Feed {
	return &Feed{
		url:            url,
		reconnectDelay: reconnectDelay,
		onFrame:        onFrame,
		state:          stateDisconnected,
	}
}

// Start runs the connection loop until ctx is cancelled.
func (f *Feed) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.runLoop(ctx)
	}()
}

// Wait blocks until the connection loop has fully stopped.
func (f *Feed) Wait() {
	f.wg.Wait()
}

func (f *Feed) setState(s connState) {
	f.mu.Lock()
	prev := f.state
	f.state = s
	f.mu.Unlock()
	if prev != s {
		slog.Debug("feed: state change", "from", prev.String(), "to", s.String())
	}
}

func (f *Feed) runLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			f.setState(stateDisconnected)
			return
		}

		f.setState(stateConnecting)
		conn, err := f.connect(ctx)
		if err != nil {
			slog.Warn("feed: connect failed", "err", err, "retry_in", f.reconnectDelay)
			f.setState(stateDisconnected)
			if !sleepCtx(ctx, f.reconnectDelay) {
				return
			}
			continue
		}

		f.setState(stateConnected)
		slog.Info("feed: connected", "endpoint", f.url)

		if err := f.readLoop(ctx, conn); err != nil && ctx.Err() == nil {
			slog.Warn("feed: read loop ended", "err", err)
		}
		conn.Close()
		f.setState(stateDisconnected)

		if ctx.Err() != nil {
			return
		}
		if !sleepCtx(ctx, f.reconnectDelay) {
			return
		}
	}
}

// connect dials and sends the subscription. Any failure leaves no half-open
// connection behind.
func (f *Feed) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, resp, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}

	req := subscribeRequest{
		Action:        "subscribe",
		Subscriptions: []subscription{{Topic: "activity", Type: "trades"}},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("marshal subscribe: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	slog.Info("feed: subscribed", "topic", "activity", "type", "trades")
	return conn, nil
}

// readLoop reads frames until the connection dies. A ping goroutine keeps
// the session alive; closing the connection unblocks the read.
func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	var writeMu sync.Mutex
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				writeMu.Unlock()
				if err != nil {
					slog.Warn("feed: ping failed", "err", err)
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 || string(data) == "pong" || string(data) == "ping" {
			continue
		}
		f.onFrame(data)
	}
}

// sleepCtx waits d, returning false if the context was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
