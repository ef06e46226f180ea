// Package evaluator implements the leader-only capture-rule scan: a 1 Hz
// tick that watches sustained packet loss on attacked tiles and proposes
// NodeCaptured events once an attacker has sustained overload for 10
// seconds. It also runs the final-kill side effect when a player dies.
package evaluator

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/kartikbazzad/territory/internal/grid"
	"github.com/kartikbazzad/territory/internal/model"
)

const (
	overloadThreshold = 0.20
	captureWindow     = 10 * time.Second
	tickInterval      = time.Second
)

// Proposer is the subset of *raft.Node the evaluator needs: propose an
// event if this replica is leader, no-op (well, error) otherwise.
type Proposer interface {
	IsLeader() bool
	Propose(payload []byte) (uint64, error)
}

// FinalKiller starts the local, log-free flood launched when a player is
// killed, aimed at the victim's client IP, for exactly 10 seconds.
type FinalKiller interface {
	LaunchFinalKill(ctx context.Context, fromCoord grid.Coord, toIP string)
}

// Orchestrator is the subset of the orchestrator client the evaluator needs
// to end the game once game_over is observed.
type Orchestrator interface {
	KillAll(ctx context.Context) error
	KillSelf(ctx context.Context) error
}

type tracker struct {
	ownerID   uint64
	firstSeen time.Time
}

// Evaluator runs the 1 Hz leader scan against a live FSM.
type Evaluator struct {
	proposer Proposer
	state    func() *model.GameState
	clock    Clock
	kill     FinalKiller
	orch     Orchestrator
	nowID    string // this tile's node ID; stored, not read by the final-kill scan

	mu             sync.Mutex
	overloadSince  map[grid.Coord]tracker
	killedPlayers  map[uint64]bool
}

// New builds an Evaluator. state returns a fresh read-only snapshot of the
// current GameState (typically fsm.State).
func New(nodeID string, proposer Proposer, state func() *model.GameState, clock Clock, kill FinalKiller, orch Orchestrator) *Evaluator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Evaluator{
		proposer:      proposer,
		state:         state,
		clock:         clock,
		kill:          kill,
		orch:          orch,
		nowID:         nodeID,
		overloadSince: make(map[grid.Coord]tracker),
		killedPlayers: make(map[uint64]bool),
	}
}

// Run ticks at 1 Hz until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Evaluator) tick(ctx context.Context) {
	state := e.state()

	// Final kill is a local side effect every replica performs independently
	// on observing a dead player — it is not gated on Raft leadership.
	e.scanFinalKills(ctx, state)

	if !e.proposer.IsLeader() {
		return
	}

	e.scanCaptures(state)

	if state.GameOver {
		e.handleGameOver(ctx)
	}
}

// scanCaptures implements spec's capture rule, tile by tile.
func (e *Evaluator) scanCaptures(state *model.GameState) {
	attackersByTarget := make(map[grid.Coord][]*model.Tile)
	for _, n := range state.Nodes {
		if n.Target != nil && n.Target.IsCoord() {
			attackersByTarget[n.Target.Coord] = append(attackersByTarget[n.Target.Coord], n)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for coord, tile := range state.Nodes {
		attackers := attackersByTarget[coord]
		if len(attackers) == 0 {
			delete(e.overloadSince, coord)
			continue
		}

		winner := lexicographicWinner(attackers)
		metrics := state.NodeMetrics[coord]

		if metrics.PacketLoss < overloadThreshold {
			delete(e.overloadSince, coord)
			continue
		}

		cur, tracked := e.overloadSince[coord]
		// A new winning owner resets the window even if overload never
		// cleared in between (spec.md §9 open question, resolved: the
		// tracker is keyed on (coord, owner_id), not coord alone).
		if !tracked || cur.ownerID != winner.OwnerID {
			e.overloadSince[coord] = tracker{ownerID: winner.OwnerID, firstSeen: e.clock.Now()}
			continue
		}

		if e.clock.Now().Sub(cur.firstSeen) >= captureWindow {
			e.proposeCapture(coord, winner.OwnerID, tile)
			delete(e.overloadSince, coord)
		}
	}
}

func (e *Evaluator) proposeCapture(coord grid.Coord, newOwnerID uint64, tile *model.Tile) {
	ev := model.NewNodeCaptured(uint64(e.clock.Now().Unix()), model.NodeCaptured{
		Coord:      coord,
		NewOwnerID: newOwnerID,
	})
	payload, err := model.Encode(ev)
	if err != nil {
		log.Printf("evaluator: encode capture for %s: %v", coord, err)
		return
	}
	if _, err := e.proposer.Propose(payload); err != nil {
		// Leadership may have flipped between IsLeader() and here; the new
		// leader re-derives the same capture from the same metrics.
		log.Printf("evaluator: propose capture for %s dropped: %v", coord, err)
	}
}

// scanFinalKills notices newly-dead players and, for every tile the killer
// owns anywhere on the grid, starts a flood from this process toward the
// victim's client IP. It does not check whether this replica's own tile is
// one of the killer's, so every replica launches one flood per killer-owned
// tile. This never goes through the log (spec.md §4.4).
func (e *Evaluator) scanFinalKills(ctx context.Context, state *model.GameState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for playerID, p := range state.Players {
		if p.Alive || e.killedPlayers[playerID] {
			continue
		}
		e.killedPlayers[playerID] = true

		clientIP, ok := state.ClientIPs[playerID]
		if !ok {
			continue
		}

		killerID := e.findCapturerOf(state, playerID)
		if killerID == 0 {
			continue
		}

		for _, tile := range state.Nodes {
			if tile.OwnerID == killerID && e.kill != nil {
				e.kill.LaunchFinalKill(ctx, tile.Coord, clientIP)
			}
		}
	}
}

// findCapturerOf returns the owner of the dead player's former capital, the
// best available proxy for "who killed them" given the GameState alone.
func (e *Evaluator) findCapturerOf(state *model.GameState, playerID uint64) uint64 {
	p, ok := state.Players[playerID]
	if !ok {
		return 0
	}
	if tile, ok := state.Nodes[p.CapitalCoord]; ok {
		return tile.OwnerID
	}
	return 0
}

func (e *Evaluator) handleGameOver(ctx context.Context) {
	if e.orch == nil {
		return
	}
	if err := e.orch.KillAll(ctx); err != nil {
		log.Printf("evaluator: kill_all failed: %v", err)
	}
	if err := e.orch.KillSelf(ctx); err != nil {
		log.Printf("evaluator: kill self failed: %v", err)
	}
}

// lexicographicWinner picks the deterministic tie-break: lowest (q, r).
func lexicographicWinner(tiles []*model.Tile) *model.Tile {
	sort.Slice(tiles, func(i, j int) bool {
		return grid.Less(tiles[i].Coord, tiles[j].Coord)
	})
	return tiles[0]
}
