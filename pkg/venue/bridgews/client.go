// Package bridgews implements the primary-venue gateway over the broker
// bridge's JSON API: request/response operations via HTTP, quotes and
// execution events via a single websocket stream.
package bridgews

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"signal-engine/pkg/logger"
	"signal-engine/pkg/pricescale"
	common "signal-engine/pkg/venue/common"
)

// Config holds connection settings for the bridge.
type Config struct {
	RESTURL        string
	WSURL          string
	APIKey         string
	APISecret      string
	RequestTimeout time.Duration
	QuoteStaleTime time.Duration
}

// Client talks to the broker bridge. Implements common.Gateway.
// The bridge speaks venue-native scaled integer prices on the wire;
// the normalizer converts them to decimals at the boundary.
type Client struct {
	cfg     Config
	norm    *pricescale.Normalizer
	http    *resty.Client
	limiter *rate.Limiter
	log     *logrus.Entry

	events chan common.RawEvent

	mu       sync.RWMutex
	quotes   map[string]common.Spot
	spotSubs map[string][]chan common.Spot
	subs     map[string]bool // symbols requested on the stream

	sendMu sync.Mutex
	sendFn func(v any) error // set while a ws connection is alive
}

// New builds a bridge client. Call Start to open the event stream.
func New(cfg Config, norm *pricescale.Normalizer) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.QuoteStaleTime <= 0 {
		cfg.QuoteStaleTime = 5 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.RESTURL).
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("X-API-Key", cfg.APIKey).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry transport failures and 5xx; explicit rejections must surface.
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError
		})

	if cfg.APISecret != "" {
		httpClient.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			ts := fmt.Sprintf("%d", time.Now().UnixMilli())
			mac := hmac.New(sha256.New, []byte(cfg.APISecret))
			mac.Write([]byte(ts + r.Method + r.URL))
			r.SetHeader("X-API-Timestamp", ts)
			r.SetHeader("X-API-Signature", hex.EncodeToString(mac.Sum(nil)))
			return nil
		})
	}

	return &Client{
		cfg:      cfg,
		norm:     norm,
		http:     httpClient,
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
		log:      logger.Component("venue_bridge"),
		events:   make(chan common.RawEvent, 256),
		quotes:   make(map[string]common.Spot),
		spotSubs: make(map[string][]chan common.Spot),
		subs:     make(map[string]bool),
	}
}

// Wire prices are venue-native scaled integers.
type orderPayload struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Type       string  `json:"type"`
	Price      int64   `json:"price,omitempty"`
	StopLoss   int64   `json:"sl,omitempty"`
	TakeProfit int64   `json:"tp,omitempty"`
	Volume     float64 `json:"volume,omitempty"`
	ClientID   string  `json:"clientId,omitempty"`
}

type orderAck struct {
	OrderID    string `json:"orderId"`
	PositionID string `json:"positionId"`
	Status     string `json:"status"`
	FillPrice  int64  `json:"fillPrice"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubmitOrder sends an order to the bridge.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return common.OrderResult{}, err
	}

	payload := orderPayload{
		Symbol:   req.Symbol,
		Side:     string(req.Side),
		Type:     string(req.Type),
		Volume:   req.Volume,
		ClientID: req.ClientID,
	}
	if req.Price > 0 {
		payload.Price = c.norm.Denormalize(req.Symbol, req.Price)
	}
	if req.StopLoss > 0 {
		payload.StopLoss = c.norm.Denormalize(req.Symbol, req.StopLoss)
	}
	if req.TakeProfit > 0 {
		payload.TakeProfit = c.norm.Denormalize(req.Symbol, req.TakeProfit)
	}

	var ack orderAck
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&ack).
		Post("/orders")
	if err != nil {
		return common.OrderResult{}, c.transportErr("submit order", err)
	}
	if resp.IsError() {
		return common.OrderResult{}, c.rejectErr(resp)
	}

	status := common.OrderStatus(ack.Status)
	if status == "" {
		status = common.StatusNew
	}
	result := common.OrderResult{
		OrderID:    ack.OrderID,
		PositionID: ack.PositionID,
		Status:     status,
	}
	if ack.FillPrice > 0 {
		result.FillPrice = c.norm.Normalize(req.Symbol, ack.FillPrice)
	}
	return result, nil
}

// AmendPosition updates protective levels on an open position or a
// still-pending order. The position endpoint takes decimal prices (the
// bridge knows the instrument server-side) and sends no confirmation
// body on success.
func (c *Client) AmendPosition(ctx context.Context, positionID string, sl, tp float64) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body := map[string]float64{}
	if sl > 0 {
		body["sl"] = sl
	}
	if tp > 0 {
		body["tp"] = tp
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Patch("/positions/" + positionID)
	if err != nil {
		return c.transportErr("amend position", err)
	}
	if resp.IsError() {
		return c.rejectErr(resp)
	}
	return nil
}

// CancelOrder cancels a pending order by venue order id.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		Delete("/orders/" + orderID)
	if err != nil {
		return c.transportErr("cancel order", err)
	}
	if resp.IsError() {
		return c.rejectErr(resp)
	}
	return nil
}

type spotPayload struct {
	Symbol string `json:"symbol"`
	Bid    int64  `json:"bid"` // scaled
	Ask    int64  `json:"ask"` // scaled
	Time   int64  `json:"ts"`
}

// GetSpot returns the latest quote, preferring the stream cache and
// falling back to a REST fetch when the cache is stale or empty.
func (c *Client) GetSpot(ctx context.Context, symbol string) (common.Spot, error) {
	c.mu.RLock()
	cached, ok := c.quotes[symbol]
	c.mu.RUnlock()
	if ok && time.Since(cached.Time) < c.cfg.QuoteStaleTime {
		return cached, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return common.Spot{}, err
	}

	var sp spotPayload
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&sp).
		Get("/spot/" + symbol)
	if err != nil {
		return common.Spot{}, c.transportErr("get spot", err)
	}
	if resp.IsError() {
		return common.Spot{}, c.rejectErr(resp)
	}
	if sp.Bid <= 0 || sp.Ask <= 0 {
		return common.Spot{}, fmt.Errorf("no quote available for %s", symbol)
	}

	quote := common.Spot{
		Symbol: symbol,
		Bid:    c.norm.Normalize(symbol, sp.Bid),
		Ask:    c.norm.Normalize(symbol, sp.Ask),
		Time:   time.Now(),
	}
	c.mu.Lock()
	c.quotes[symbol] = quote
	c.mu.Unlock()
	return quote, nil
}

// SubscribeSpot registers a live quote channel for symbol.
func (c *Client) SubscribeSpot(symbol string) (<-chan common.Spot, error) {
	ch := make(chan common.Spot, 64)
	c.mu.Lock()
	c.spotSubs[symbol] = append(c.spotSubs[symbol], ch)
	c.subs[symbol] = true
	c.mu.Unlock()

	c.requestStreamSubscribe(symbol)
	return ch, nil
}

// Events returns the raw execution event stream.
func (c *Client) Events() <-chan common.RawEvent {
	return c.events
}

func (c *Client) transportErr(op string, err error) error {
	c.log.WithError(err).Warnf("%s: transport error", op)
	if errors.Is(err, context.DeadlineExceeded) {
		return common.ErrTimeout
	}
	return errors.Wrap(err, op)
}

func (c *Client) rejectErr(resp *resty.Response) error {
	var apiErr apiError
	if err := json.Unmarshal(resp.Body(), &apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = fmt.Sprintf("HTTP_%d", resp.StatusCode())
		apiErr.Message = string(resp.Body())
	}
	return &common.VenueError{
		Code:    apiErr.Code,
		Reason:  common.ClassifyRejectCode(apiErr.Code),
		Message: apiErr.Message,
	}
}
