package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"signal-engine/internal/events"
	"signal-engine/internal/matchq"
	"signal-engine/internal/signal"
	"signal-engine/pkg/db"
	common "signal-engine/pkg/venue/common"
)

type fakeGateway struct {
	mu       sync.Mutex
	spot     common.Spot
	spotErr  error
	submits  []common.OrderRequest
	results  []submitResult
	amends   []amendCall
	amendErr error
	events   chan common.RawEvent
}

type submitResult struct {
	res common.OrderResult
	err error
}

type amendCall struct {
	positionID string
	sl, tp     float64
}

func newFakeGateway(spot common.Spot) *fakeGateway {
	return &fakeGateway{spot: spot, events: make(chan common.RawEvent, 16)}
}

func (f *fakeGateway) queueResult(res common.OrderResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, submitResult{res: res, err: err})
}

func (f *fakeGateway) SubmitOrder(_ context.Context, req common.OrderRequest) (common.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, req)
	if len(f.results) == 0 {
		return common.OrderResult{OrderID: "order-1", Status: common.StatusAccepted}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.res, r.err
}

func (f *fakeGateway) AmendPosition(_ context.Context, positionID string, sl, tp float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amends = append(f.amends, amendCall{positionID: positionID, sl: sl, tp: tp})
	return f.amendErr
}

func (f *fakeGateway) CancelOrder(context.Context, string, string) error { return nil }

func (f *fakeGateway) GetSpot(context.Context, string) (common.Spot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spot, f.spotErr
}

func (f *fakeGateway) SubscribeSpot(string) (<-chan common.Spot, error) { return nil, nil }

func (f *fakeGateway) Events() <-chan common.RawEvent { return f.events }

func (f *fakeGateway) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeGateway) lastSubmit(t *testing.T) common.OrderRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.submits) == 0 {
		t.Fatal("no orders submitted")
	}
	return f.submits[len(f.submits)-1]
}

func newTestEngine(t *testing.T, gw common.Gateway) (*Engine, *db.Database) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	cfg := Config{
		PendingWatchTimeout: time.Hour,
		SweepInterval:       time.Minute,
		PriceRetryDelay:     time.Millisecond,
		AmendConfirmTimeout: time.Second,
		CloseTolerance:      0.005,
		InstanceTag:         "test0001",
	}
	eng := New(cfg, gw, database, events.NewBus(), matchq.New(database), newFakeProcessedStore())
	return eng, database
}

func buySignal(id string) signal.TradeSignal {
	entry := 1.0750
	return signal.TradeSignal{
		ID:          id,
		Asset:       "EURUSD",
		Direction:   common.SideBuy,
		EntryPrice:  &entry,
		StopLoss:    1.0730,
		TakeProfits: []float64{1.0800},
		Legs:        signal.LegConfig{TakeOriginal: true},
		StrategyTag: "trend",
	}
}

func TestHandleSignalLimitOrderPends(t *testing.T) {
	gw := newFakeGateway(common.Spot{Symbol: "EURUSD", Bid: 1.0755, Ask: 1.0756})
	eng, _ := newTestEngine(t, gw)

	if err := eng.HandleSignal(context.Background(), buySignal("sig-1")); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}

	req := gw.lastSubmit(t)
	if req.Type != common.OrderTypeLimit {
		t.Errorf("order type = %v, want LIMIT", req.Type)
	}
	if req.Price != 1.0750 || req.StopLoss != 1.0730 || req.TakeProfit != 1.0800 {
		t.Errorf("order levels = %+v", req)
	}
	if req.ClientID == "" {
		t.Error("client id not set")
	}

	pending := eng.Pending()
	if len(pending) != 1 || pending[0].SignalID != "sig-1" {
		t.Fatalf("pending = %+v, want one watch for sig-1", pending)
	}
	if pending[0].ApplyStopsAfterFill {
		t.Error("limit order should carry stops inline, not defer them")
	}
}

func TestHandleSignalMarketOrderDefersStops(t *testing.T) {
	gw := newFakeGateway(common.Spot{Symbol: "EURUSD", Bid: 1.0755, Ask: 1.0756})
	gw.queueResult(common.OrderResult{OrderID: "order-1", PositionID: "pos-1", Status: common.StatusFilled, FillPrice: 1.0756}, nil)
	eng, database := newTestEngine(t, gw)

	sig := buySignal("sig-1")
	sig.EntryPrice = nil
	if err := eng.HandleSignal(context.Background(), sig); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}

	req := gw.lastSubmit(t)
	if req.Type != common.OrderTypeMarket {
		t.Errorf("order type = %v, want MARKET", req.Type)
	}
	if req.StopLoss != 0 || req.TakeProfit != 0 {
		t.Errorf("market order carried inline stops: %+v", req)
	}

	// Fill was immediate, so levels must have been amended in.
	gw.mu.Lock()
	amends := append([]amendCall(nil), gw.amends...)
	gw.mu.Unlock()
	if len(amends) != 1 || amends[0].positionID != "pos-1" || amends[0].sl != 1.0730 || amends[0].tp != 1.0800 {
		t.Fatalf("amends = %+v, want SL/TP applied to pos-1", amends)
	}

	pos, err := database.GetPosition(context.Background(), "pos-1")
	if err != nil {
		t.Fatalf("position not stored: %v", err)
	}
	if pos.EntryPrice != 1.0756 || pos.Status != db.PositionOpen {
		t.Errorf("position = %+v", pos)
	}
	if pos.StopLoss != 1.0730 || pos.TakeProfit != 1.0800 {
		t.Errorf("persisted levels = SL %v TP %v", pos.StopLoss, pos.TakeProfit)
	}

	depth, err := matchq.New(database).Depth(context.Background(), "EURUSD", "BUY")
	if err != nil || depth != 1 {
		t.Errorf("queue depth = %d (%v), want 1", depth, err)
	}
}

func TestHandleSignalDuplicateExecutesOnce(t *testing.T) {
	gw := newFakeGateway(common.Spot{Symbol: "EURUSD", Bid: 1.0755, Ask: 1.0756})
	eng, _ := newTestEngine(t, gw)

	if err := eng.HandleSignal(context.Background(), buySignal("sig-1")); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := eng.HandleSignal(context.Background(), buySignal("sig-1")); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if n := gw.submitCount(); n != 1 {
		t.Errorf("submits = %d, want 1", n)
	}
}

func TestHandleSignalBothLegs(t *testing.T) {
	gw := newFakeGateway(common.Spot{Symbol: "EURUSD", Bid: 1.0755, Ask: 1.0756})
	eng, _ := newTestEngine(t, gw)

	sig := buySignal("sig-1")
	sig.Legs.TakeOpposite = true
	if err := eng.HandleSignal(context.Background(), sig); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}

	gw.mu.Lock()
	submits := append([]common.OrderRequest(nil), gw.submits...)
	gw.mu.Unlock()
	if len(submits) != 2 {
		t.Fatalf("submits = %d, want 2", len(submits))
	}

	mirror := submits[1]
	if mirror.Side != common.SideSell {
		t.Errorf("mirror side = %v, want SELL", mirror.Side)
	}
	if !closeTo(mirror.StopLoss, 1.0770) || !closeTo(mirror.TakeProfit, 1.0700) {
		t.Errorf("mirror levels = SL %v TP %v, want 1.0770 / 1.0700", mirror.StopLoss, mirror.TakeProfit)
	}
}

func TestHandleSignalMirrorWithoutAnchorAbandons(t *testing.T) {
	gw := newFakeGateway(common.Spot{})
	gw.spotErr = context.DeadlineExceeded
	eng, database := newTestEngine(t, gw)

	sig := buySignal("sig-1")
	sig.EntryPrice = nil
	sig.Legs = signal.LegConfig{TakeOpposite: true}

	if err := eng.HandleSignal(context.Background(), sig); err == nil {
		t.Fatal("HandleSignal succeeded with no price to mirror around")
	}
	if n := gw.submitCount(); n != 0 {
		t.Errorf("submits = %d, want 0", n)
	}

	entries, err := database.GetSignalJournal(context.Background(), "sig-1")
	if err != nil || len(entries) != 1 {
		t.Fatalf("journal = %+v (%v)", entries, err)
	}
	if entries[0].State != JournalAbandoned || !entries[0].IsOpposite {
		t.Errorf("journal entry = %+v, want ABANDONED opposite leg", entries[0])
	}
}

func TestHandleSignalMarketabilityReject(t *testing.T) {
	gw := newFakeGateway(common.Spot{Symbol: "EURUSD", Bid: 1.0755, Ask: 1.0756})
	eng, database := newTestEngine(t, gw)

	sig := buySignal("sig-1")
	entry := 1.0756 // at the ask: limit would fill immediately
	sig.EntryPrice = &entry

	if err := eng.HandleSignal(context.Background(), sig); err == nil {
		t.Fatal("HandleSignal accepted an immediately-marketable limit")
	}
	if n := gw.submitCount(); n != 0 {
		t.Errorf("submits = %d, want 0", n)
	}

	entries, err := database.GetSignalJournal(context.Background(), "sig-1")
	if err != nil || len(entries) != 1 {
		t.Fatalf("journal = %+v (%v)", entries, err)
	}
	if entries[0].State != JournalMarketabilityRejected {
		t.Errorf("journal state = %q, want %q", entries[0].State, JournalMarketabilityRejected)
	}
}

func TestHandleSignalInvalidStopsResubmitsBare(t *testing.T) {
	gw := newFakeGateway(common.Spot{Symbol: "EURUSD", Bid: 1.0755, Ask: 1.0756})
	gw.queueResult(common.OrderResult{}, &common.VenueError{Code: "INVALID_STOPS", Reason: common.RejectInvalidStops, Message: "stops too close"})
	eng, _ := newTestEngine(t, gw)

	if err := eng.HandleSignal(context.Background(), buySignal("sig-1")); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}

	if n := gw.submitCount(); n != 2 {
		t.Fatalf("submits = %d, want original plus bare resubmission", n)
	}
	bare := gw.lastSubmit(t)
	if bare.StopLoss != 0 || bare.TakeProfit != 0 {
		t.Errorf("resubmission still carries stops: %+v", bare)
	}

	pending := eng.Pending()
	if len(pending) != 1 || !pending[0].ApplyStopsAfterFill {
		t.Fatalf("pending = %+v, want deferred-stops watch", pending)
	}
}

func TestHandleSignalAbandonsOnMargin(t *testing.T) {
	gw := newFakeGateway(common.Spot{Symbol: "EURUSD", Bid: 1.0755, Ask: 1.0756})
	gw.queueResult(common.OrderResult{}, &common.VenueError{Code: "NO_MONEY", Reason: common.RejectInsufficientMargin, Message: "margin"})
	eng, database := newTestEngine(t, gw)

	if err := eng.HandleSignal(context.Background(), buySignal("sig-1")); err == nil {
		t.Fatal("HandleSignal succeeded despite margin reject")
	}
	if n := gw.submitCount(); n != 1 {
		t.Errorf("submits = %d, want 1 (no retry)", n)
	}

	entries, _ := database.GetSignalJournal(context.Background(), "sig-1")
	if len(entries) != 1 || entries[0].State != JournalAbandoned {
		t.Errorf("journal = %+v, want one ABANDONED entry", entries)
	}
}

func TestHandleSignalValidationFailure(t *testing.T) {
	gw := newFakeGateway(common.Spot{})
	eng, database := newTestEngine(t, gw)

	bad := buySignal("sig-1")
	bad.Direction = "SIDEWAYS"
	if err := eng.HandleSignal(context.Background(), bad); err == nil {
		t.Fatal("HandleSignal accepted invalid signal")
	}
	if n := gw.submitCount(); n != 0 {
		t.Errorf("submits = %d, want 0", n)
	}

	entries, _ := database.GetSignalJournal(context.Background(), "sig-1")
	if len(entries) != 1 || entries[0].State != JournalValidationFailed {
		t.Errorf("journal = %+v, want VALIDATION_FAILED", entries)
	}
}
