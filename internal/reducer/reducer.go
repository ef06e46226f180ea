// Package reducer folds the replicated event log into the authoritative
// GameState. Apply is a pure, total function: no I/O, no errors, no
// suspension — it is called holding the state machine's write lock.
package reducer

import (
	"github.com/kartikbazzad/territory/internal/model"
)

// Apply folds one event into state in place. It is idempotent and
// deterministic: replaying the same event sequence from an empty state
// always reproduces the same GameState, regardless of wall time.
func Apply(state *model.GameState, ev model.GameEvent) {
	if ev.IsBlank() {
		return
	}

	switch ev.Type {
	case model.EventPlayerJoin:
		applyPlayerJoin(state, ev.PlayerJoin, ev.Ts)
	case model.EventNodeInitializationStarted:
		applyNodeInitializationStarted(state, ev.NodeInitializationStarted)
	case model.EventNodeInitializationComplete:
		applyNodeInitializationComplete(state, ev.NodeInitializationComplete)
	case model.EventSetNodeTarget:
		applySetNodeTarget(state, ev.SetNodeTarget)
	case model.EventNodeMetricsReport:
		applyNodeMetricsReport(state, ev.NodeMetricsReport, ev.Ts)
	case model.EventNodeCaptured:
		applyNodeCaptured(state, ev.NodeCaptured)
	}
}

func applyPlayerJoin(state *model.GameState, e *model.PlayerJoin, ts uint64) {
	if e == nil {
		return
	}
	state.Players[e.PlayerID] = &model.Player{
		PlayerID:     e.PlayerID,
		Name:         e.Name,
		CapitalCoord: e.CapitalCoord,
		Alive:        true,
		JoinTime:     ts,
		IsClient:     e.IsClient,
	}

	kind := model.Capital
	if e.IsClient {
		kind = model.Client
	}
	state.Nodes[e.CapitalCoord] = &model.Tile{
		Coord:     e.CapitalCoord,
		OwnerID:   e.PlayerID,
		Kind:      kind,
		IsClient:  e.IsClient,
		InitState: model.Ready,
	}
	state.NodeIPs[e.CapitalCoord] = e.NodeIP
	if e.IsClient {
		state.ClientIPs[e.PlayerID] = e.NodeIP
	}
}

func applyNodeInitializationStarted(state *model.GameState, e *model.NodeInitializationStarted) {
	if e == nil {
		return
	}
	if _, exists := state.Nodes[e.Coord]; exists {
		return // idempotent: never overwrite an existing tile
	}
	state.Nodes[e.Coord] = &model.Tile{
		Coord:     e.Coord,
		OwnerID:   e.OwnerID,
		Kind:      model.Regular,
		InitState: model.Initializing,
	}
}

func applyNodeInitializationComplete(state *model.GameState, e *model.NodeInitializationComplete) {
	if e == nil {
		return
	}
	if t, ok := state.Nodes[e.Coord]; ok {
		t.InitState = model.Ready
	}
	state.NodeIPs[e.Coord] = e.NodeIP
}

func applySetNodeTarget(state *model.GameState, e *model.SetNodeTarget) {
	if e == nil {
		return
	}
	if t, ok := state.Nodes[e.Coord]; ok {
		target := e.Target
		t.Target = &target
	}
}

func applyNodeMetricsReport(state *model.GameState, e *model.NodeMetricsReport, ts uint64) {
	if e == nil {
		return
	}
	state.NodeMetrics[e.Coord] = model.NodeMetrics{
		BandwidthIn: e.BandwidthIn,
		PacketLoss:  e.PacketLoss,
		Timestamp:   ts,
	}
}

func applyNodeCaptured(state *model.GameState, e *model.NodeCaptured) {
	if e == nil {
		return
	}
	t, ok := state.Nodes[e.Coord]
	if !ok {
		return
	}
	if t.OwnerID == e.NewOwnerID {
		return // already owned by new_owner_id: no-op
	}

	old := t.OwnerID
	t.OwnerID = e.NewOwnerID
	t.Target = nil

	if t.Kind == model.Capital {
		if p, ok := state.Players[old]; ok {
			p.Alive = false
		}
		t.Kind = model.Regular
		if state.AlivePlayerCount() <= 1 {
			state.GameOver = true
		}
	}
}

// ApplyAll folds an ordered event sequence into a freshly built GameState,
// used for full log replay and for rebuilding state after snapshot install.
func ApplyAll(events []model.GameEvent) *model.GameState {
	state := model.NewGameState()
	for _, ev := range events {
		Apply(state, ev)
	}
	return state
}
