package httpapi

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kartikbazzad/territory/internal/grid"
	"github.com/kartikbazzad/territory/internal/model"
	"github.com/kartikbazzad/territory/pkg/apperr"
)

// joinRequest is the body of POST /join.
type joinRequest struct {
	GameID     string `json:"game_id" binding:"required"`
	PlayerName string `json:"player_name" binding:"required"`
	NodeIP     string `json:"node_ip"`
	IsClient   bool   `json:"is_client"`
}

// handleJoin allocates a capital coordinate, proposes PlayerJoin through
// this node's existing Raft group, and asks the orchestrator to spawn the
// capital tile (spec.md §4.6). It does not bootstrap or join a Raft group
// itself; on a non-leader the proposal fails with NotLeader.
func (s *Server) handleJoin(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apperr.New(apperr.MalformedRequest, "invalid join request", err))
		return
	}

	state := s.state()
	playerID := uint64(len(state.Players) + 1)
	for {
		if _, taken := state.Players[playerID]; !taken {
			break
		}
		playerID++
	}

	capital := allocateCapitalCoord(state)

	ev := model.NewPlayerJoin(uint64(time.Now().Unix()), model.PlayerJoin{
		PlayerID:     playerID,
		Name:         req.PlayerName,
		CapitalCoord: capital,
		NodeIP:       req.NodeIP,
		IsClient:     req.IsClient,
	})
	if !s.propose(c, ev) {
		return
	}

	if s.orch != nil && !req.IsClient {
		if err := s.orch.SpawnSingleNode(c.Request.Context(), req.GameID, capital, playerID); err != nil {
			writeErr(c, apperr.New(apperr.Internal, "failed to spawn capital tile", err))
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"player_id": playerID, "capital_coord": capital})
}

// allocateCapitalCoord picks a random unoccupied coord in [-10,10]^2, up to
// 100 tries, falling back to a timestamp-derived coord (spec.md §4.6).
func allocateCapitalCoord(state *model.GameState) grid.Coord {
	for i := 0; i < 100; i++ {
		c := grid.Coord{Q: rand.Intn(21) - 10, R: rand.Intn(21) - 10}
		if _, occupied := state.Nodes[c]; !occupied {
			return c
		}
	}
	ts := time.Now().UnixNano()
	return grid.Coord{Q: int(ts % 21) - 10, R: int((ts / 21) % 21) - 10}
}

// attackRequest is the body of POST /my/attack.
type attackRequest struct {
	NodeQ   int `json:"node_q"`
	NodeR   int `json:"node_r"`
	TargetQ int `json:"target_q"`
	TargetR int `json:"target_r"`
}

// handleAttack validates ownership and adjacency, lazily initializes the
// target's six neighbors if the target tile is absent, and proposes
// SetNodeTarget (spec.md §4.6).
func (s *Server) handleAttack(c *gin.Context) {
	var req attackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apperr.New(apperr.MalformedRequest, "invalid attack request", err))
		return
	}

	source := grid.Coord{Q: req.NodeQ, R: req.NodeR}
	target := grid.Coord{Q: req.TargetQ, R: req.TargetR}

	if !grid.Adjacent(source, target) {
		writeErr(c, apperr.New(apperr.MalformedRequest, "not adjacent", nil))
		return
	}

	state := s.state()
	sourceTile, ok := state.Nodes[source]
	if !ok {
		writeErr(c, apperr.New(apperr.MalformedRequest, "source tile does not exist", nil))
		return
	}
	ownerID, err := ownerFromRequest(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	if sourceTile.OwnerID != ownerID {
		writeErr(c, apperr.New(apperr.MalformedRequest, "source tile not owned by caller", nil))
		return
	}

	if _, exists := state.Nodes[target]; !exists {
		for _, n := range target.Neighbors() {
			ev := model.NewNodeInitializationStarted(uint64(time.Now().Unix()), model.NodeInitializationStarted{
				Coord: n, OwnerID: 0,
			})
			if !s.propose(c, ev) {
				return
			}
			if s.orch != nil {
				_ = s.orch.SpawnSingleNode(c.Request.Context(), s.gameID, n, 0)
			}
		}
	}

	ev := model.NewSetNodeTarget(uint64(time.Now().Unix()), model.SetNodeTarget{
		Coord:  source,
		Target: model.CoordTarget(target),
	})
	if !s.propose(c, ev) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ownerFromRequest resolves the caller's player ID. The narrow external
// surface has no session/auth layer (out of scope); callers identify
// themselves with an X-Player-ID header.
func ownerFromRequest(c *gin.Context) (uint64, error) {
	idStr := c.GetHeader("X-Player-ID")
	if idStr == "" {
		return 0, apperr.New(apperr.MalformedRequest, "missing X-Player-ID header", nil)
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.MalformedRequest, "invalid X-Player-ID header", err)
	}
	return id, nil
}

// handleGameState serves a JSON view of the local reducer's state, read
// from the (possibly slightly stale, on followers) FSM.
func (s *Server) handleGameState(c *gin.Context) {
	c.JSON(http.StatusOK, s.state())
}

// propose submits ev to the leader; on NotLeader it writes a 503 naming
// the known leader and returns false so the caller can bail out early.
func (s *Server) propose(c *gin.Context, ev model.GameEvent) bool {
	payload, err := model.Encode(ev)
	if err != nil {
		writeErr(c, apperr.New(apperr.Internal, "failed to encode event", err))
		return false
	}
	if _, err := s.node.Propose(payload); err != nil {
		writeErr(c, err)
		return false
	}
	return true
}

func writeErr(c *gin.Context, err error) {
	appErr, ok := err.(*apperr.Error)
	if !ok {
		appErr = apperr.New(apperr.Internal, err.Error(), err)
	}
	c.JSON(appErr.ToHTTPStatus(), gin.H{
		"error":  appErr.Message,
		"code":   appErr.Code.String(),
		"leader": appErr.Leader,
	})
}
