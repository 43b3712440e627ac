package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	common "signal-engine/pkg/venue/common"
)

// scriptedAmender fails specific amend shapes so fallback paths can be
// exercised.
type scriptedAmender struct {
	fakeGateway
	mu    sync.Mutex
	calls []amendCall
	fail  func(sl, tp float64) error
}

func (s *scriptedAmender) AmendPosition(_ context.Context, positionID string, sl, tp float64) error {
	s.mu.Lock()
	s.calls = append(s.calls, amendCall{positionID: positionID, sl: sl, tp: tp})
	s.mu.Unlock()
	if s.fail != nil {
		return s.fail(sl, tp)
	}
	return nil
}

func invalidStops() error {
	return &common.VenueError{Code: "INVALID_STOPS", Reason: common.RejectInvalidStops, Message: "rejected"}
}

func TestSLTPApplyBothLevels(t *testing.T) {
	gw := &scriptedAmender{}
	s := NewSLTPStrategy(gw, time.Second, false)

	sl, tp, err := s.Apply(context.Background(), "pos-1", 1.0730, 1.0800)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if sl != 1.0730 || tp != 1.0800 {
		t.Errorf("applied = SL %v TP %v", sl, tp)
	}
	if len(gw.calls) != 1 {
		t.Errorf("amend calls = %d, want 1", len(gw.calls))
	}
}

func TestSLTPApplyFallsBackToStopOnly(t *testing.T) {
	gw := &scriptedAmender{fail: func(sl, tp float64) error {
		if sl > 0 && tp > 0 {
			return invalidStops()
		}
		return nil
	}}
	s := NewSLTPStrategy(gw, time.Second, false)

	sl, tp, err := s.Apply(context.Background(), "pos-1", 1.0730, 1.0800)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if sl != 1.0730 || tp != 0 {
		t.Errorf("applied = SL %v TP %v, want stop only", sl, tp)
	}
}

func TestSLTPApplyFallsBackToTargetOnly(t *testing.T) {
	gw := &scriptedAmender{fail: func(sl, tp float64) error {
		if sl > 0 {
			return invalidStops()
		}
		return nil
	}}
	s := NewSLTPStrategy(gw, time.Second, false)

	sl, tp, err := s.Apply(context.Background(), "pos-1", 1.0730, 1.0800)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if sl != 0 || tp != 1.0800 {
		t.Errorf("applied = SL %v TP %v, want target only", sl, tp)
	}
}

func TestSLTPApplyAllRejected(t *testing.T) {
	gw := &scriptedAmender{fail: func(sl, tp float64) error { return invalidStops() }}
	s := NewSLTPStrategy(gw, time.Second, false)

	sl, tp, err := s.Apply(context.Background(), "pos-1", 1.0730, 1.0800)
	if err == nil {
		t.Fatal("Apply succeeded with every amend rejected")
	}
	if sl != 0 || tp != 0 {
		t.Errorf("applied = SL %v TP %v, want none", sl, tp)
	}
	if len(gw.calls) != 3 {
		t.Errorf("amend calls = %d, want combined plus two fallbacks", len(gw.calls))
	}
}

func TestSLTPApplyTimeoutAssumedSuccess(t *testing.T) {
	gw := &scriptedAmender{fail: func(sl, tp float64) error { return common.ErrTimeout }}

	t.Run("assume success treats timeout as applied", func(t *testing.T) {
		s := NewSLTPStrategy(gw, time.Second, true)
		sl, tp, err := s.Apply(context.Background(), "pos-1", 1.0730, 1.0800)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if sl != 1.0730 || tp != 1.0800 {
			t.Errorf("applied = SL %v TP %v", sl, tp)
		}
	})

	t.Run("strict mode surfaces the timeout", func(t *testing.T) {
		s := NewSLTPStrategy(gw, time.Second, false)
		if _, _, err := s.Apply(context.Background(), "pos-1", 1.0730, 1.0800); err == nil {
			t.Fatal("Apply swallowed an unconfirmed amend")
		}
	})
}

func TestSLTPApplyNothingToDo(t *testing.T) {
	gw := &scriptedAmender{}
	s := NewSLTPStrategy(gw, time.Second, false)

	if _, _, err := s.Apply(context.Background(), "pos-1", 0, 0); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(gw.calls) != 0 {
		t.Errorf("amend calls = %d, want 0", len(gw.calls))
	}
}
