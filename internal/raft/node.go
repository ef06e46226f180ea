// Package raft implements the Raft consensus algorithm backing the
// replicated event log: leader election, log replication, and snapshot
// install/transfer. It is deliberately unaware of the game's event
// semantics — that lives in the reducer package, wired in via FSM.
package raft

import (
	"math/rand"
	"sync"
	"time"

	"github.com/kartikbazzad/territory/internal/wire"
	"github.com/kartikbazzad/territory/pkg/apperr"
)

// State is the current role of a Raft node.
type State int

const (
	Follower State = iota
	Candidate
	Leader
)

func (s State) String() string {
	switch s {
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "follower"
	}
}

// Config holds per-node Raft tuning parameters. Defaults match spec.md §4.2:
// randomized election timeout in [1.5s, 3.0s], 500ms heartbeat.
type Config struct {
	ID                string
	Peers             []string
	ElectionMinMs     int
	ElectionMaxMs     int
	HeartbeatMs       int
	MaxEntriesPerSend int
}

// DefaultConfig returns the spec-mandated timing parameters for id/peers.
func DefaultConfig(id string, peers []string) *Config {
	return &Config{
		ID:                id,
		Peers:             peers,
		ElectionMinMs:     1500,
		ElectionMaxMs:     3000,
		HeartbeatMs:       500,
		MaxEntriesPerSend: 300,
	}
}

// RPCClient sends the three peer RPCs. Implemented by TCPTransport.
type RPCClient interface {
	SendRequestVote(peer string, args wire.RequestVoteRequest) (wire.RequestVoteReply, error)
	SendAppendEntries(peer string, args wire.AppendEntriesRequest) (wire.AppendEntriesReply, error)
	SendInstallSnapshot(peer string, args wire.InstallSnapshotRequest) (wire.InstallSnapshotReply, error)
}

// Node is a single Raft participant.
type Node struct {
	mu sync.Mutex

	currentTerm uint64
	votedFor    string
	storage     *Storage

	commitIndex uint64
	state       State
	leaderID    string

	nextIndex  map[string]uint64
	matchIndex map[string]uint64

	id     string
	peers  []string
	config *Config

	rpc RPCClient
	fsm *FSM

	electionTimer  *time.Timer
	heartbeatTimer *time.Ticker
	stopCh         chan struct{}
	stopped        bool
}

// NewNode creates a new Raft node. storage must be fresh or previously
// populated via ReplaceLog (snapshot install / restart).
func NewNode(cfg *Config, storage *Storage, rpc RPCClient, fsm *FSM) *Node {
	term, votedFor, _ := storage.ReadVote()
	return &Node{
		id:          cfg.ID,
		peers:       cfg.Peers,
		config:      cfg,
		storage:     storage,
		rpc:         rpc,
		fsm:         fsm,
		state:       Follower,
		currentTerm: term,
		votedFor:    votedFor,
		nextIndex:   make(map[string]uint64),
		matchIndex:  make(map[string]uint64),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the election timer and background loops.
func (n *Node) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resetElectionTimerLocked()
}

// Stop halts all timers for this node.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}
	n.stopped = true
	close(n.stopCh)
	if n.electionTimer != nil {
		n.electionTimer.Stop()
	}
	if n.heartbeatTimer != nil {
		n.heartbeatTimer.Stop()
	}
}

// IsLeader reports whether this node currently believes itself to be leader.
func (n *Node) IsLeader() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state == Leader
}

// LeaderHint returns the node ID this replica last saw as leader (possibly
// itself, possibly empty if no leader has been observed yet).
func (n *Node) LeaderHint() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leaderID
}

// CommittedIndex returns the highest committed log index.
func (n *Node) CommittedIndex() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.commitIndex
}

// FSM returns the node's state machine.
func (n *Node) FSM() *FSM { return n.fsm }

func (n *Node) resetElectionTimerLocked() {
	if n.electionTimer != nil {
		n.electionTimer.Stop()
	}
	spread := n.config.ElectionMaxMs - n.config.ElectionMinMs
	if spread <= 0 {
		spread = 1
	}
	duration := time.Duration(n.config.ElectionMinMs+rand.Intn(spread)) * time.Millisecond
	n.electionTimer = time.AfterFunc(duration, n.startElection)
}

func (n *Node) startElection() {
	n.mu.Lock()
	if n.stopped || n.state == Leader {
		n.mu.Unlock()
		return
	}
	n.state = Candidate
	n.currentTerm++
	n.votedFor = n.id
	_ = n.storage.SaveVote(n.currentTerm, n.votedFor)
	n.resetElectionTimerLocked()
	term := n.currentTerm
	peers := append([]string(nil), n.peers...)
	n.mu.Unlock()

	go n.runElection(term, peers)
}

func (n *Node) getLastLogInfoLocked() (uint64, uint64) {
	ls := n.storage.GetLogState()
	return ls.LastIndex, ls.LastTerm
}

// Propose appends a new entry for payload to the leader's log and returns
// its log_id once appended locally (replication to followers continues in
// the background). Non-leaders return apperr.NotLeaderErr.
func (n *Node) Propose(payload []byte) (uint64, error) {
	n.mu.Lock()
	if n.state != Leader {
		hint := n.leaderID
		n.mu.Unlock()
		return 0, apperr.NotLeaderErr(hint)
	}
	lastIdx, _ := n.getLastLogInfoLocked()
	entry := StoredEntry{
		LogEntry: wire.LogEntry{Index: lastIdx + 1, Term: n.currentTerm, Payload: payload},
		LeaderID: n.id,
	}
	n.storage.AppendToLog([]StoredEntry{entry})
	term := n.currentTerm
	n.mu.Unlock()

	n.broadcastAppendEntries(term)
	return entry.Index, nil
}
