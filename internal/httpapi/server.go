// Package httpapi is the narrow external HTTP/WebSocket surface every
// tile and client exposes: /join, /my/attack, /game/state, and /ws,
// per spec.md §4.6.
package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kartikbazzad/territory/internal/grid"
	"github.com/kartikbazzad/territory/internal/model"
	"github.com/kartikbazzad/territory/pkg/eventbus"
	"github.com/kartikbazzad/territory/pkg/logger"
)

// Proposer is the subset of *raft.Node handlers need.
type Proposer interface {
	IsLeader() bool
	LeaderHint() string
	Propose(payload []byte) (uint64, error)
}

// OrchestratorClient is the subset of the orchestrator HTTP contract the
// HTTP surface needs to bootstrap new tiles on demand.
type OrchestratorClient interface {
	SpawnSingleNode(ctx context.Context, gameID string, coord grid.Coord, ownerID uint64) error
}

// Server wires the gin engine, the Raft proposer, and the event bus
// feeding /ws together.
type Server struct {
	engine   *gin.Engine
	node     Proposer
	state    func() *model.GameState
	orch     OrchestratorClient
	bus      *eventbus.Broker
	gameID   string
	capacity uint64
}

// Config carries the constructor arguments for Server.
type Config struct {
	Node     Proposer
	State    func() *model.GameState
	Orch     OrchestratorClient
	Bus      *eventbus.Broker
	GameID   string
	Capacity uint64
}

// NewServer builds the gin engine and registers every route.
func NewServer(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	s := &Server{
		engine:   engine,
		node:     cfg.Node,
		state:    cfg.State,
		orch:     cfg.Orch,
		bus:      cfg.Bus,
		gameID:   cfg.GameID,
		capacity: cfg.Capacity,
	}

	engine.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	engine.POST("/join", s.handleJoin)
	engine.POST("/my/attack", s.handleAttack)
	engine.GET("/game/state", s.handleGameState)
	engine.GET("/ws", s.handleWebSocket)

	return s
}

// Run starts the HTTP server on the given address and blocks until ctx is
// cancelled or the listener fails.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("httpapi: serve: %w", err)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Get().Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}
