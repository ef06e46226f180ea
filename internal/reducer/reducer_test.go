package reducer

import (
	"reflect"
	"testing"

	"github.com/kartikbazzad/territory/internal/grid"
	"github.com/kartikbazzad/territory/internal/model"
)

func join(playerID uint64, name string, c grid.Coord, isClient bool, ts uint64) model.GameEvent {
	return model.NewPlayerJoin(ts, model.PlayerJoin{
		PlayerID: playerID, Name: name, CapitalCoord: c, NodeIP: "10.0.0.1", IsClient: isClient,
	})
}

func TestSoloBootstrap(t *testing.T) {
	state := ApplyAll([]model.GameEvent{
		join(1, "A", grid.Coord{Q: 0, R: 0}, false, 1000),
	})

	if len(state.Players) != 1 || !state.Players[1].Alive {
		t.Fatalf("expected one alive player, got %+v", state.Players)
	}
	tile, ok := state.Nodes[grid.Coord{Q: 0, R: 0}]
	if !ok || tile.OwnerID != 1 || tile.Kind != model.Capital {
		t.Fatalf("expected capital tile owned by player 1, got %+v", tile)
	}
}

func TestIdempotentInitDoesNotOverwrite(t *testing.T) {
	c := grid.Coord{Q: 1, R: 0}
	events := []model.GameEvent{
		model.NewNodeInitializationStarted(1, model.NodeInitializationStarted{Coord: c, OwnerID: 5}),
		model.NewNodeInitializationStarted(2, model.NodeInitializationStarted{Coord: c, OwnerID: 9}),
	}
	state := ApplyAll(events)
	tile := state.Nodes[c]
	if tile.OwnerID != 5 {
		t.Fatalf("second init overwrote owner: got %d, want 5", tile.OwnerID)
	}
	if tile.InitState != model.Initializing {
		t.Fatalf("expected tile to remain Initializing, got %v", tile.InitState)
	}
}

func TestInitializationCompleteTransitionsReady(t *testing.T) {
	c := grid.Coord{Q: 1, R: 0}
	state := ApplyAll([]model.GameEvent{
		model.NewNodeInitializationStarted(1, model.NodeInitializationStarted{Coord: c, OwnerID: 0}),
		model.NewNodeInitializationComplete(2, model.NodeInitializationComplete{Coord: c, NodeIP: "10.0.0.5"}),
	})
	tile := state.Nodes[c]
	if tile.InitState != model.Ready {
		t.Fatalf("expected Ready, got %v", tile.InitState)
	}
	if state.NodeIPs[c] != "10.0.0.5" {
		t.Fatalf("expected node IP recorded, got %q", state.NodeIPs[c])
	}
}

func TestCaptureOfCapitalKillsPlayerAndDemotesTile(t *testing.T) {
	p1Capital := grid.Coord{Q: 0, R: 0}
	events := []model.GameEvent{
		join(1, "A", p1Capital, false, 1),
		join(2, "B", grid.Coord{Q: 1, R: 0}, false, 2),
		model.NewNodeCaptured(3, model.NodeCaptured{Coord: p1Capital, NewOwnerID: 2}),
	}
	state := ApplyAll(events)

	if state.Players[1].Alive {
		t.Fatal("expected player 1 to be dead after capital capture")
	}
	tile := state.Nodes[p1Capital]
	if tile.OwnerID != 2 || tile.Kind != model.Regular {
		t.Fatalf("expected capital demoted to regular owned by 2, got %+v", tile)
	}
	if !state.GameOver {
		t.Fatal("expected game_over with only one alive player left")
	}
}

func TestGameOverMonotonicity(t *testing.T) {
	p1 := grid.Coord{Q: 0, R: 0}
	p2 := grid.Coord{Q: 1, R: 0}
	p3 := grid.Coord{Q: 2, R: 0}
	events := []model.GameEvent{
		join(1, "A", p1, false, 1),
		join(2, "B", p2, false, 2),
		join(3, "C", p3, false, 3),
		model.NewNodeCaptured(4, model.NodeCaptured{Coord: p1, NewOwnerID: 2}),
	}
	state := ApplyAll(events)
	if state.GameOver {
		t.Fatal("two alive players remain; game_over must still be false")
	}

	events = append(events, model.NewNodeCaptured(5, model.NodeCaptured{Coord: p2, NewOwnerID: 3}))
	state = ApplyAll(events)
	if !state.GameOver {
		t.Fatal("one alive player remains; game_over must be true")
	}

	// Monotonicity: further events must never flip it back.
	events = append(events, model.NewNodeMetricsReport(6, model.NodeMetricsReport{Coord: p3, BandwidthIn: 1, PacketLoss: 0}))
	state = ApplyAll(events)
	if !state.GameOver {
		t.Fatal("game_over flipped back to false")
	}
}

func TestCaptureIsIdempotentWhenAlreadyOwned(t *testing.T) {
	c := grid.Coord{Q: 0, R: 0}
	events := []model.GameEvent{
		join(1, "A", c, false, 1),
		join(2, "B", grid.Coord{Q: 1, R: 0}, false, 2),
		model.NewNodeCaptured(3, model.NodeCaptured{Coord: c, NewOwnerID: 2}),
	}
	once := ApplyAll(events)
	twice := ApplyAll(append(events, model.NewNodeCaptured(4, model.NodeCaptured{Coord: c, NewOwnerID: 2})))

	if !reflect.DeepEqual(once.Players[1], twice.Players[1]) {
		t.Fatal("re-applying a no-op capture must not change player state")
	}
}

func TestReducerIsDeterministicAcrossIndependentReplays(t *testing.T) {
	events := []model.GameEvent{
		join(1, "A", grid.Coord{Q: 0, R: 0}, false, 1),
		join(2, "B", grid.Coord{Q: 1, R: 0}, false, 2),
		model.NewNodeMetricsReport(3, model.NodeMetricsReport{Coord: grid.Coord{Q: 0, R: 0}, BandwidthIn: 10, PacketLoss: 0.5}),
		model.NewNodeCaptured(4, model.NodeCaptured{Coord: grid.Coord{Q: 0, R: 0}, NewOwnerID: 2}),
	}

	a := ApplyAll(events)
	b := ApplyAll(events)

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("two independent replays diverged:\na=%+v\nb=%+v", a, b)
	}
}

func TestCommutingMetricsReportsOrderIndependent(t *testing.T) {
	c1 := grid.Coord{Q: 0, R: 0}
	c2 := grid.Coord{Q: 5, R: 5}
	m1 := model.NewNodeMetricsReport(1, model.NodeMetricsReport{Coord: c1, BandwidthIn: 100, PacketLoss: 0.1})
	m2 := model.NewNodeMetricsReport(2, model.NodeMetricsReport{Coord: c2, BandwidthIn: 200, PacketLoss: 0.2})

	forward := ApplyAll([]model.GameEvent{m1, m2})
	reversed := ApplyAll([]model.GameEvent{m2, m1})

	if !reflect.DeepEqual(forward.NodeMetrics, reversed.NodeMetrics) {
		t.Fatal("metrics reports for distinct coords must commute")
	}
}
