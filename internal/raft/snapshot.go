package raft

import (
	"log"

	"github.com/kartikbazzad/territory/internal/wire"
)

// InstallSnapshot handles a snapshot push from the leader, used when a
// follower's nextIndex falls behind the leader's compacted log (spec.md
// §4.2). The follower discards its own log tail and rebuilds GameState by
// replaying the snapshot's event vector.
func (n *Node) InstallSnapshot(args wire.InstallSnapshotRequest) wire.InstallSnapshotReply {
	n.mu.Lock()

	if args.Term < n.currentTerm {
		reply := wire.InstallSnapshotReply{Term: n.currentTerm}
		n.mu.Unlock()
		return reply
	}

	n.resetElectionTimerLocked()
	if args.Term > n.currentTerm {
		n.currentTerm = args.Term
		n.votedFor = ""
		_ = n.storage.SaveVote(n.currentTerm, n.votedFor)
	}
	n.state = Follower
	n.leaderID = args.LeaderID

	fsm := n.fsm
	n.mu.Unlock()

	if err := fsm.InstallSnapshot(Snapshot{
		LastIncludedIndex: args.LastIncludedIndex,
		LastIncludedTerm:  args.LastIncludedTerm,
		Events:            args.Data,
	}); err != nil {
		log.Printf("[%s] install snapshot from %s: %v", n.id, args.LeaderID, err)
		n.mu.Lock()
		reply := wire.InstallSnapshotReply{Term: n.currentTerm}
		n.mu.Unlock()
		return reply
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	tail := n.storage.TryGetLogEntries(args.LastIncludedIndex+1, ^uint64(0))
	n.storage.ReplaceLog(tail, args.LastIncludedIndex, args.LastIncludedTerm)
	if args.LastIncludedIndex > n.commitIndex {
		n.commitIndex = args.LastIncludedIndex
	}
	return wire.InstallSnapshotReply{Term: n.currentTerm}
}

// sendSnapshot pushes snap to peer, then sets the follower's nextIndex past
// it so the next replication round resumes with AppendEntries.
func (n *Node) sendSnapshot(peer string, term uint64, snap Snapshot) {
	n.mu.Lock()
	if n.state != Leader || n.currentTerm != term {
		n.mu.Unlock()
		return
	}
	args := wire.InstallSnapshotRequest{
		Term:              term,
		LeaderID:          n.id,
		LastIncludedIndex: snap.LastIncludedIndex,
		LastIncludedTerm:  snap.LastIncludedTerm,
		Data:              snap.Events,
	}
	n.mu.Unlock()

	reply, err := n.rpc.SendInstallSnapshot(peer, args)
	if err != nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != Leader || n.currentTerm != term {
		return
	}
	if reply.Term > n.currentTerm {
		n.currentTerm = reply.Term
		n.state = Follower
		n.votedFor = ""
		_ = n.storage.SaveVote(n.currentTerm, n.votedFor)
		n.resetElectionTimerLocked()
		return
	}
	n.nextIndex[peer] = args.LastIncludedIndex + 1
	n.matchIndex[peer] = args.LastIncludedIndex
}

// maybeCompactLocked purges the log tail once it grows past the 1,000-entry
// retention window spec.md §4.2 allows past the last compaction point. It
// builds no snapshot itself; replicateTo builds one from the FSM on demand
// when a follower needs a purged entry. Called by the leader after advancing
// commitIndex.
func (n *Node) maybeCompactLocked() {
	const retain = 1000
	if n.commitIndex < n.storage.CompactedUpto()+retain {
		return
	}
	purgeUpto := n.commitIndex - retain
	purgeTerm := n.storage.TermAt(purgeUpto)
	go func() {
		n.storage.PurgeLogsUpto(purgeUpto, purgeTerm)
	}()
}
