package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"signal-engine/internal/signal"
	"signal-engine/pkg/db"
	"signal-engine/pkg/logger"
	common "signal-engine/pkg/venue/common"
)

// signalRequest is the intake payload for one routed signal.
type signalRequest struct {
	ID          string    `json:"id"`
	Asset       string    `json:"asset"`
	Direction   string    `json:"direction"`
	EntryPrice  *float64  `json:"entry_price"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfits []float64 `json:"take_profits"`
	TakeOrig    *bool     `json:"take_original"`
	TakeOpp     bool      `json:"take_opposite"`
	Volume      float64   `json:"volume"`
	StrategyTag string    `json:"strategy_tag"`
}

func (r *signalRequest) toSignal() signal.TradeSignal {
	takeOriginal := true
	if r.TakeOrig != nil {
		takeOriginal = *r.TakeOrig
	}
	return signal.TradeSignal{
		ID:          r.ID,
		Asset:       strings.ToUpper(strings.TrimSpace(r.Asset)),
		Direction:   common.Side(strings.ToUpper(strings.TrimSpace(r.Direction))),
		EntryPrice:  r.EntryPrice,
		StopLoss:    r.StopLoss,
		TakeProfits: r.TakeProfits,
		Legs:        signal.LegConfig{TakeOriginal: takeOriginal, TakeOpposite: r.TakeOpp},
		Volume:      r.Volume,
		StrategyTag: r.StrategyTag,
		ReceivedAt:  time.Now(),
	}
}

// postSignal accepts a signal and executes it asynchronously. Intake
// acknowledges receipt, not execution: lifecycle outcomes arrive on the
// venue stream long after this request has returned.
func (s *Server) postSignal(c *gin.Context) {
	var req signalRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}

	sig := req.toSignal()
	if err := sig.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":  "INVALID_SIGNAL",
			"error": err.Error(),
		})
		return
	}

	// Execution outlives the request; detach from its context.
	log := logger.Component("api")
	go func() {
		if err := s.Engine.HandleSignal(context.Background(), sig); err != nil {
			log.WithError(err).Warnf("signal %s execution failed", sig.ID)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"status":    "accepted",
		"signal_id": sig.ID,
	})
}

func (s *Server) getSignalJournal(c *gin.Context) {
	entries, err := s.DB.GetSignalJournal(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) getPositions(c *gin.Context) {
	positions, err := s.DB.GetOpenPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "position lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) getPosition(c *gin.Context) {
	pos, err := s.DB.GetPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "position lookup failed"})
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) getPending(c *gin.Context) {
	watches := s.Engine.Pending()
	c.JSON(http.StatusOK, gin.H{
		"count":   len(watches),
		"watches": watches,
	})
}

func (s *Server) getQueueDepth(c *gin.Context) {
	asset := strings.ToUpper(c.Param("asset"))
	direction := strings.ToUpper(c.Param("direction"))
	if direction != string(common.SideBuy) && direction != string(common.SideSell) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be BUY or SELL"})
		return
	}
	depth, err := s.Queue.Depth(c.Request.Context(), asset, direction)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "queue lookup failed"})
		return
	}
	head, err := s.Queue.Peek(c.Request.Context(), asset, direction)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "queue lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"asset":     asset,
		"direction": direction,
		"depth":     depth,
		"head":      head,
	})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"venue":        s.Meta.Venue,
		"symbols":      s.Meta.Symbols,
		"instance_tag": s.Meta.InstanceTag,
		"version":      s.Meta.Version,
		"pending":      len(s.Engine.Pending()),
	})
}
