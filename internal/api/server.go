// Package api exposes the ops HTTP surface: signal intake plus
// read-only views over positions, pending watches and the matching
// queue.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"signal-engine/internal/engine"
	"signal-engine/internal/matchq"
	"signal-engine/pkg/db"
)

// Server wires HTTP endpoints around the execution engine.
type Server struct {
	Router    *gin.Engine
	Engine    *engine.Engine
	DB        *db.Database
	Queue     *matchq.Queue
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime identity exposed on the status endpoint.
type SystemMeta struct {
	Venue       string
	Symbols     []string
	InstanceTag string
	Version     string
}

func NewServer(eng *engine.Engine, database *db.Database, queue *matchq.Queue, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Engine:    eng,
		DB:        database,
		Queue:     queue,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/healthz", s.health)

	api := s.Router.Group("/api")
	api.Use(AuthMiddleware(s.JWTSecret))
	{
		api.GET("/system/status", s.getSystemStatus)

		api.POST("/signals", s.postSignal)
		api.GET("/signals/:id/journal", s.getSignalJournal)

		api.GET("/positions", s.getPositions)
		api.GET("/positions/:id", s.getPosition)

		api.GET("/pending", s.getPending)
		api.GET("/queue/:asset/:direction", s.getQueueDepth)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
