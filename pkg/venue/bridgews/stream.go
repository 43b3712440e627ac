package bridgews

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	common "signal-engine/pkg/venue/common"
)

const (
	reconnectBase = time.Second
	reconnectMax  = time.Minute
)

// Start opens the websocket stream and keeps it alive until ctx is done.
// Quote frames feed the spot cache and subscribers; every other frame is
// forwarded raw to Events for the engine to classify.
func (c *Client) Start(ctx context.Context) {
	go c.runStream(ctx)
}

func (c *Client) runStream(ctx context.Context) {
	backoff := reconnectBase
	for {
		select {
		case <-ctx.Done():
			close(c.events)
			return
		default:
		}

		started := time.Now()
		err := c.readLoop(ctx)
		if ctx.Err() != nil {
			continue
		}
		// A clean close or a session that held for a while means the
		// venue recovered; start the next retry ladder from the bottom.
		if err == nil || time.Since(started) >= reconnectMax {
			backoff = reconnectBase
		}
		if err != nil {
			c.log.WithError(err).Warnf("stream disconnected, reconnecting in %v", backoff)
		}

		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("X-API-Key", c.cfg.APIKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.WSURL, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.sendMu.Lock()
	c.sendFn = func(v any) error { return conn.WriteJSON(v) }
	c.sendMu.Unlock()
	defer func() {
		c.sendMu.Lock()
		c.sendFn = nil
		c.sendMu.Unlock()
	}()

	c.log.Info("stream connected")
	c.resubscribeAll()

	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return err
		}
		c.handleFrame(msg)
	}
}

func (c *Client) handleFrame(msg []byte) {
	// Frame kind may live under different keys; probe before routing.
	var probe struct {
		Type    string `json:"type"`
		Event   string `json:"event"`
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		c.log.WithError(err).Debug("unparseable stream frame")
		return
	}

	kind := probe.Type
	if kind == "" {
		kind = probe.Event
	}
	if kind == "" {
		kind = probe.Channel
	}

	if strings.EqualFold(kind, "quote") || strings.EqualFold(kind, "spot") {
		c.handleQuote(msg)
		return
	}

	// Everything else is an execution event; the classifier owns the shape.
	select {
	case c.events <- common.RawEvent{Payload: msg, Received: time.Now()}:
	default:
		c.log.Warn("event buffer full, dropping frame")
	}
}

func (c *Client) handleQuote(msg []byte) {
	var q spotPayload
	if err := json.Unmarshal(msg, &q); err != nil || q.Symbol == "" {
		return
	}

	quote := common.Spot{
		Symbol: q.Symbol,
		Bid:    c.norm.Normalize(q.Symbol, q.Bid),
		Ask:    c.norm.Normalize(q.Symbol, q.Ask),
		Time:   time.Now(),
	}

	c.mu.Lock()
	c.quotes[q.Symbol] = quote
	subs := c.spotSubs[q.Symbol]
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- quote:
		default:
			// drop if subscriber is slow; quotes are superseded anyway
		}
	}
}

func (c *Client) requestStreamSubscribe(symbol string) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendFn == nil {
		return // sent on next (re)connect by resubscribeAll
	}
	if err := c.sendFn(map[string]string{"op": "subscribe", "symbol": symbol}); err != nil {
		c.log.WithError(err).Warnf("subscribe %s failed", symbol)
	}
}

func (c *Client) resubscribeAll() {
	c.mu.RLock()
	symbols := make([]string, 0, len(c.subs))
	for sym := range c.subs {
		symbols = append(symbols, sym)
	}
	c.mu.RUnlock()

	for _, sym := range symbols {
		c.requestStreamSubscribe(sym)
	}
}
