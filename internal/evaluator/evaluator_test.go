package evaluator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kartikbazzad/territory/internal/grid"
	"github.com/kartikbazzad/territory/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeProposer struct {
	mu       sync.Mutex
	leader   bool
	proposed []model.GameEvent
}

func (p *fakeProposer) IsLeader() bool { return p.leader }

func (p *fakeProposer) Propose(payload []byte) (uint64, error) {
	ev, err := model.Decode(payload)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proposed = append(p.proposed, ev)
	return uint64(len(p.proposed)), nil
}

func (p *fakeProposer) captures() []model.NodeCaptured {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.NodeCaptured
	for _, ev := range p.proposed {
		if ev.Type == model.EventNodeCaptured {
			out = append(out, *ev.NodeCaptured)
		}
	}
	return out
}

func stateWithOneAttacker(target, attacker grid.Coord, attackerOwner uint64, loss float32) *model.GameState {
	s := model.NewGameState()
	s.Nodes[target] = &model.Tile{Coord: target, OwnerID: 1}
	tgt := model.CoordTarget(target)
	s.Nodes[attacker] = &model.Tile{Coord: attacker, OwnerID: attackerOwner, Target: &tgt}
	s.NodeMetrics[target] = model.NodeMetrics{PacketLoss: loss}
	return s
}

func TestCaptureAfterTenSecondsOfSustainedOverload(t *testing.T) {
	target := grid.Coord{Q: 0, R: 0}
	attacker := grid.Coord{Q: 1, R: 0}

	clock := &fakeClock{now: time.Unix(0, 0)}
	proposer := &fakeProposer{leader: true}

	var state *model.GameState
	stateFn := func() *model.GameState { return state }

	ev := New("tile-0", proposer, stateFn, clock, nil, nil)

	state = stateWithOneAttacker(target, attacker, 2, 0.5)
	for i := 0; i < 9; i++ {
		ev.tick(context.Background())
		clock.Advance(time.Second)
	}
	if len(proposer.captures()) != 0 {
		t.Fatalf("expected no capture before the window elapses, got %v", proposer.captures())
	}

	ev.tick(context.Background())
	clock.Advance(time.Second)
	ev.tick(context.Background())

	captures := proposer.captures()
	if len(captures) != 1 {
		t.Fatalf("expected exactly one capture, got %d: %v", len(captures), captures)
	}
	if captures[0].Coord != target || captures[0].NewOwnerID != 2 {
		t.Fatalf("unexpected capture: %+v", captures[0])
	}
}

func TestLossDropMidWindowResetsTracker(t *testing.T) {
	target := grid.Coord{Q: 0, R: 0}
	attacker := grid.Coord{Q: 1, R: 0}

	clock := &fakeClock{now: time.Unix(0, 0)}
	proposer := &fakeProposer{leader: true}

	var state *model.GameState
	stateFn := func() *model.GameState { return state }
	ev := New("tile-0", proposer, stateFn, clock, nil, nil)

	state = stateWithOneAttacker(target, attacker, 2, 0.5)
	for i := 0; i < 5; i++ {
		ev.tick(context.Background())
		clock.Advance(time.Second)
	}

	state = stateWithOneAttacker(target, attacker, 2, 0.0) // loss drops at t=5
	ev.tick(context.Background())
	clock.Advance(time.Second)

	state = stateWithOneAttacker(target, attacker, 2, 0.5) // loss resumes at t=6
	for i := 0; i < 10; i++ {
		ev.tick(context.Background())
		clock.Advance(time.Second)
	}
	if len(proposer.captures()) != 0 {
		t.Fatalf("expected no capture before 10s since t=6, got %v", proposer.captures())
	}

	ev.tick(context.Background())
	if len(proposer.captures()) != 1 {
		t.Fatalf("expected exactly one capture once the restarted window elapses, got %v", proposer.captures())
	}
}

func TestNonLeaderNeverProposes(t *testing.T) {
	target := grid.Coord{Q: 0, R: 0}
	attacker := grid.Coord{Q: 1, R: 0}

	clock := &fakeClock{now: time.Unix(0, 0)}
	proposer := &fakeProposer{leader: false}
	state := stateWithOneAttacker(target, attacker, 2, 0.9)
	ev := New("tile-0", proposer, func() *model.GameState { return state }, clock, nil, nil)

	for i := 0; i < 20; i++ {
		ev.tick(context.Background())
		clock.Advance(time.Second)
	}
	if len(proposer.captures()) != 0 {
		t.Fatalf("non-leader must never propose, got %v", proposer.captures())
	}
}

func TestTieBreakPicksLexicographicallySmallestAttacker(t *testing.T) {
	target := grid.Coord{Q: 0, R: 0}
	a1 := grid.Coord{Q: 2, R: 0}
	a2 := grid.Coord{Q: -1, R: 5}

	state := model.NewGameState()
	state.Nodes[target] = &model.Tile{Coord: target, OwnerID: 1}
	tgt := model.CoordTarget(target)
	state.Nodes[a1] = &model.Tile{Coord: a1, OwnerID: 10, Target: &tgt}
	state.Nodes[a2] = &model.Tile{Coord: a2, OwnerID: 20, Target: &tgt}
	state.NodeMetrics[target] = model.NodeMetrics{PacketLoss: 0.5}

	clock := &fakeClock{now: time.Unix(0, 0)}
	proposer := &fakeProposer{leader: true}
	ev := New("tile-0", proposer, func() *model.GameState { return state }, clock, nil, nil)

	for i := 0; i < 11; i++ {
		ev.tick(context.Background())
		clock.Advance(time.Second)
	}

	captures := proposer.captures()
	if len(captures) != 1 || captures[0].NewOwnerID != 20 {
		t.Fatalf("expected capture by lexicographically smallest attacker (owner 20), got %+v", captures)
	}
}
