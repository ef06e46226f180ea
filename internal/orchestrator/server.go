package orchestrator

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kartikbazzad/territory/internal/grid"
	"github.com/kartikbazzad/territory/pkg/logger"
)

// Directory is the in-memory per-game peer registry backing the reference
// orchestrator. Real process spawning/killing is out of scope (spec.md §1);
// this directory only tracks who registered and hands back contract-shaped
// responses.
type Directory struct {
	mu    sync.RWMutex
	games map[string][]PeerInfo
}

func newDirectory() *Directory {
	return &Directory{games: make(map[string][]PeerInfo)}
}

func (d *Directory) register(gameID string, p PeerInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	peers := d.games[gameID]
	for i, existing := range peers {
		if existing.NodeID == p.NodeID {
			peers[i] = p
			return
		}
	}
	d.games[gameID] = append(peers, p)
}

func (d *Directory) peers(gameID string) []PeerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]PeerInfo, len(d.games[gameID]))
	copy(out, d.games[gameID])
	return out
}

func (d *Directory) clear(gameID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.games, gameID)
}

// removeEverywhere drops nodeID from every game's peer list. A /kill call
// only carries a node ID, not the game it belongs to.
func (d *Directory) removeEverywhere(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for gameID, peers := range d.games {
		for i, existing := range peers {
			if existing.NodeID == nodeID {
				d.games[gameID] = append(peers[:i], peers[i+1:]...)
				break
			}
		}
	}
}

// Server is the reference implementation of the five-endpoint orchestrator
// contract. It never shells out to spawn or kill an OS process; callers
// treat 2xx responses as "accepted" and drive the rest of the lifecycle
// themselves (e.g. a human or script watching logs in a single-host demo).
type Server struct {
	engine *gin.Engine
	dir    *Directory
}

// NewServer builds the gin engine and registers the five routes.
func NewServer() *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(func(c *gin.Context) {
		reqID := uuid.NewString()
		c.Set("request_id", reqID)
		c.Next()
		logger.Get().Debug("orchestrator request",
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	})

	s := &Server{engine: engine, dir: newDirectory()}

	engine.POST("/register_worker", s.handleRegisterWorker)
	engine.GET("/get_peer", s.handleGetPeer)
	engine.POST("/spawn_single_node", s.handleSpawnSingleNode)
	engine.POST("/kill_workers", s.handleKillWorkers)
	engine.POST("/kill", s.handleKill)

	return s
}

// Handler exposes the underlying gin engine for http.ListenAndServe.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleRegisterWorker(c *gin.Context) {
	var req RegisterWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.dir.register(req.GameID, PeerInfo{
		NodeID:   req.NodeID,
		Coord:    req.Coord,
		RaftAddr: req.RaftAddr,
		DataAddr: req.DataAddr,
		IsClient: req.IsClient,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleGetPeer(c *gin.Context) {
	gameID := c.Query("game_id")
	if gameID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing game_id"})
		return
	}
	c.JSON(http.StatusOK, s.dir.peers(gameID))
}

type spawnRequest struct {
	GameID  string     `json:"game_id" binding:"required"`
	Coord   grid.Coord `json:"coord"`
	OwnerID uint64     `json:"owner_id"`
}

// handleSpawnSingleNode acknowledges a spawn request in contract shape.
// This reference implementation never actually launches a process; a real
// deployment would replace this with a call into its scheduler.
func (s *Server) handleSpawnSingleNode(c *gin.Context) {
	var req spawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"accepted": true,
		"game_id":  req.GameID,
		"coord":    req.Coord,
		"owner_id": req.OwnerID,
	})
}

type killWorkersRequest struct {
	GameID string `json:"game_id" binding:"required"`
}

func (s *Server) handleKillWorkers(c *gin.Context) {
	var req killWorkersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.dir.clear(req.GameID)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "game_id": req.GameID})
}

type killRequest struct {
	NodeID string `json:"node_id" binding:"required"`
}

func (s *Server) handleKill(c *gin.Context) {
	var req killRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.dir.removeEverywhere(req.NodeID)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "node_id": req.NodeID})
}
