package raft

import (
	"fmt"
	"testing"
	"time"

	"github.com/kartikbazzad/territory/internal/model"
	"github.com/kartikbazzad/territory/internal/wire"
)

// mockRPC dispatches peer RPCs directly to in-process Nodes, skipping the
// network entirely, so cluster behavior can be tested deterministically.
type mockRPC struct {
	peers map[string]*Node
}

func (m *mockRPC) SendRequestVote(peer string, args wire.RequestVoteRequest) (wire.RequestVoteReply, error) {
	p, ok := m.peers[peer]
	if !ok {
		return wire.RequestVoteReply{}, fmt.Errorf("peer not found: %s", peer)
	}
	return p.RequestVote(args), nil
}

func (m *mockRPC) SendAppendEntries(peer string, args wire.AppendEntriesRequest) (wire.AppendEntriesReply, error) {
	p, ok := m.peers[peer]
	if !ok {
		return wire.AppendEntriesReply{}, fmt.Errorf("peer not found: %s", peer)
	}
	return p.AppendEntries(args), nil
}

func (m *mockRPC) SendInstallSnapshot(peer string, args wire.InstallSnapshotRequest) (wire.InstallSnapshotReply, error) {
	p, ok := m.peers[peer]
	if !ok {
		return wire.InstallSnapshotReply{}, fmt.Errorf("peer not found: %s", peer)
	}
	return p.InstallSnapshot(args), nil
}

func createCluster(n int) ([]*Node, *mockRPC) {
	peers := make([]string, n)
	for i := 0; i < n; i++ {
		peers[i] = fmt.Sprintf("node%d", i)
	}

	rpc := &mockRPC{peers: make(map[string]*Node, n)}
	nodes := make([]*Node, n)
	for i := 0; i < n; i++ {
		cfg := DefaultConfig(peers[i], peers)
		cfg.ElectionMinMs = 150
		cfg.ElectionMaxMs = 300
		cfg.HeartbeatMs = 50

		nodes[i] = NewNode(cfg, NewStorage(), rpc, NewFSM())
		rpc.peers[peers[i]] = nodes[i]
	}
	return nodes, rpc
}

func startAll(t *testing.T, nodes []*Node) {
	t.Helper()
	for _, n := range nodes {
		n.Start()
		t.Cleanup(n.Stop)
	}
}

func findLeader(nodes []*Node) *Node {
	for _, n := range nodes {
		if n.IsLeader() {
			return n
		}
	}
	return nil
}

func TestLeaderElectionConvergesToOne(t *testing.T) {
	nodes, _ := createCluster(3)
	startAll(t, nodes)

	time.Sleep(600 * time.Millisecond)

	leaders := 0
	for _, n := range nodes {
		if n.IsLeader() {
			leaders++
		}
	}
	if leaders != 1 {
		t.Fatalf("expected exactly 1 leader, got %d", leaders)
	}
}

func TestLogReplicatesToFollowers(t *testing.T) {
	nodes, _ := createCluster(3)
	startAll(t, nodes)

	time.Sleep(600 * time.Millisecond)
	leader := findLeader(nodes)
	if leader == nil {
		t.Fatal("no leader elected")
	}

	ev := model.NewPlayerJoin(1, model.PlayerJoin{PlayerID: 1, Name: "Alice", NodeIP: "10.0.0.1"})
	payload, err := model.Encode(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := leader.Propose(payload); err != nil {
		t.Fatalf("propose: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	for _, n := range nodes {
		state := n.FSM().State()
		if _, ok := state.Players[1]; !ok {
			t.Errorf("node %s did not replicate player join", n.id)
		}
	}
}

func TestOnlyLeaderAcceptsProposals(t *testing.T) {
	nodes, _ := createCluster(3)
	startAll(t, nodes)

	time.Sleep(600 * time.Millisecond)
	for _, n := range nodes {
		if n.IsLeader() {
			continue
		}
		if _, err := n.Propose([]byte("x")); err == nil {
			t.Errorf("expected non-leader %s to reject Propose", n.id)
		}
	}
}

func TestSnapshotInstallCatchesUpLaggingFollower(t *testing.T) {
	nodes, rpc := createCluster(3)
	startAll(t, nodes)

	time.Sleep(600 * time.Millisecond)
	leader := findLeader(nodes)
	if leader == nil {
		t.Fatal("no leader elected")
	}

	ev := model.NewPlayerJoin(1, model.PlayerJoin{PlayerID: 1, Name: "Alice", NodeIP: "10.0.0.1"})
	payload, _ := model.Encode(ev)
	idx, err := leader.Propose(payload)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	snap, err := leader.FSM().BuildSnapshot()
	if err != nil {
		t.Fatalf("build snapshot: %v", err)
	}

	var follower *Node
	for _, n := range nodes {
		if n != leader {
			follower = n
			break
		}
	}

	delete(rpc.peers, follower.id) // simulate the follower being unreachable
	leader.sendSnapshot(follower.id, leader.currentTerm, snap)
	rpc.peers[follower.id] = follower

	leader.mu.Lock()
	term := leader.currentTerm
	leader.mu.Unlock()
	leader.sendSnapshot(follower.id, term, snap)

	state := follower.FSM().State()
	if _, ok := state.Players[1]; !ok {
		t.Fatal("follower did not pick up snapshot contents")
	}
	if follower.FSM().LastAppliedIndex() != idx {
		t.Fatalf("follower last applied index = %d, want %d", follower.FSM().LastAppliedIndex(), idx)
	}
}
