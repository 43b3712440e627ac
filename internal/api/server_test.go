package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"signal-engine/internal/engine"
	"signal-engine/internal/events"
	"signal-engine/internal/matchq"
	"signal-engine/pkg/db"
	common "signal-engine/pkg/venue/common"
)

type stubGateway struct{}

func (stubGateway) SubmitOrder(context.Context, common.OrderRequest) (common.OrderResult, error) {
	return common.OrderResult{OrderID: "order-1", Status: common.StatusAccepted}, nil
}
func (stubGateway) AmendPosition(context.Context, string, float64, float64) error { return nil }
func (stubGateway) CancelOrder(context.Context, string, string) error             { return nil }
func (stubGateway) GetSpot(context.Context, string) (common.Spot, error) {
	return common.Spot{Symbol: "EURUSD", Bid: 1.0755, Ask: 1.0756}, nil
}
func (stubGateway) SubscribeSpot(string) (<-chan common.Spot, error) { return nil, nil }
func (stubGateway) Events() <-chan common.RawEvent                   { return nil }

const testSecret = "test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	queue := matchq.New(database)
	eng := engine.New(engine.Config{
		PendingWatchTimeout: time.Hour,
		CloseTolerance:      0.005,
		InstanceTag:         "test0001",
	}, stubGateway{}, database, events.NewBus(), queue, nil)

	return NewServer(eng, database, queue, SystemMeta{
		Venue:       "bridge",
		Symbols:     []string{"EURUSD"},
		InstanceTag: "test0001",
		Version:     "test",
	}, testSecret)
}

func authedRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	token, err := IssueToken("test-suite", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthzIsPublic(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/pending", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/pending", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		w := httptest.NewRecorder()
		s.Router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.Router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/pending", ""))
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200, body %s", w.Code, w.Body.String())
		}
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := IssueToken("test-suite", testSecret, -time.Minute)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/api/pending", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		s.Router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestPostSignal(t *testing.T) {
	t.Run("valid signal accepted", func(t *testing.T) {
		s := newTestServer(t)
		body := `{"id":"sig-1","asset":"eurusd","direction":"buy","entry_price":1.0750,"stop_loss":1.0730,"take_profits":[1.0800]}`
		w := httptest.NewRecorder()
		s.Router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/signals", body))
		if w.Code != http.StatusAccepted {
			t.Errorf("status = %d, want 202, body %s", w.Code, w.Body.String())
		}
	})

	t.Run("structurally invalid signal rejected", func(t *testing.T) {
		s := newTestServer(t)
		body := `{"id":"","asset":"EURUSD","direction":"BUY"}`
		w := httptest.NewRecorder()
		s.Router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/signals", body))
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422, body %s", w.Code, w.Body.String())
		}
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		s := newTestServer(t)
		w := httptest.NewRecorder()
		s.Router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/signals", "{not json"))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestGetQueueDepth(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/queue/EURUSD/BUY", ""))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	s.Router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/queue/EURUSD/UP", ""))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad direction status = %d, want 400", w.Code)
	}
}

func TestGetPositionNotFound(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/positions/missing", ""))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
