package raft

import (
	"time"

	"github.com/kartikbazzad/territory/internal/wire"
)

// AppendEntries handles a log replication request from the leader.
//
//  1. Reject if the leader's term is older than ours.
//  2. Step down if the leader's term is newer.
//  3. Check PrevLogIndex/PrevLogTerm consistency; fail if they don't match.
//  4. Resolve conflicts (truncate divergent suffix) and append new entries.
//  5. Advance commitIndex to min(LeaderCommit, index of last new entry).
func (n *Node) AppendEntries(args wire.AppendEntriesRequest) wire.AppendEntriesReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	reply := wire.AppendEntriesReply{Term: n.currentTerm, Success: false}

	if args.Term < n.currentTerm {
		return reply
	}

	n.resetElectionTimerLocked() // recognized a valid leader
	if args.Term > n.currentTerm {
		n.currentTerm = args.Term
		n.state = Follower
		n.votedFor = ""
		_ = n.storage.SaveVote(n.currentTerm, n.votedFor)
	}
	n.leaderID = args.LeaderID
	if n.state == Candidate {
		n.state = Follower
	}

	if args.PrevLogIndex > 0 {
		entry, found := n.storage.GetEntry(args.PrevLogIndex)
		if !found || entry.Term != args.PrevLogTerm {
			return reply
		}
	}

	n.storage.DeleteConflictLogsSince(args.PrevLogIndex+1, args.LeaderID)

	var toAppend []StoredEntry
	for _, e := range args.Entries {
		toAppend = append(toAppend, StoredEntry{LogEntry: e, LeaderID: args.LeaderID})
	}
	n.storage.AppendToLog(toAppend)

	if args.LeaderCommit > n.commitIndex {
		lastNew := args.PrevLogIndex + uint64(len(args.Entries))
		newCommit := args.LeaderCommit
		if lastNew < newCommit {
			newCommit = lastNew
		}
		if newCommit > n.commitIndex {
			n.commitIndex = newCommit
		}
		n.applyLogsLocked()
	}

	reply.Success = true
	reply.Term = n.currentTerm
	return reply
}

func (n *Node) startHeartbeatLocked() {
	if n.heartbeatTimer != nil {
		n.heartbeatTimer.Stop()
	}
	n.heartbeatTimer = time.NewTicker(time.Duration(n.config.HeartbeatMs) * time.Millisecond)

	go func(ticker *time.Ticker) {
		for {
			select {
			case <-ticker.C:
				n.mu.Lock()
				if n.state != Leader {
					ticker.Stop()
					n.mu.Unlock()
					return
				}
				term := n.currentTerm
				n.mu.Unlock()
				n.broadcastAppendEntries(term)
			case <-n.stopCh:
				return
			}
		}
	}(n.heartbeatTimer)
}

func (n *Node) broadcastAppendEntries(term uint64) {
	n.mu.Lock()
	peers := append([]string(nil), n.peers...)
	n.mu.Unlock()

	for _, peer := range peers {
		if peer == n.id {
			continue
		}
		go n.replicateTo(peer, term)
	}
}

func (n *Node) replicateTo(peer string, term uint64) {
	n.mu.Lock()
	if n.state != Leader || n.currentTerm != term {
		n.mu.Unlock()
		return
	}
	nextIdx := n.nextIndex[peer]
	if nextIdx == 0 {
		nextIdx = 1
	}
	compactedUpto := n.storage.CompactedUpto()

	if nextIdx <= compactedUpto {
		// The entry the follower needs has already been compacted away;
		// it must catch up via InstallSnapshot instead.
		snap, err := n.fsm.BuildSnapshot()
		n.mu.Unlock()
		if err != nil {
			return
		}
		snap.LastIncludedTerm = n.storage.TermAt(snap.LastIncludedIndex)
		n.sendSnapshot(peer, term, snap)
		return
	}

	prevLogIndex := nextIdx - 1
	var prevLogTerm uint64
	if prevLogIndex > 0 {
		if entry, found := n.storage.GetEntry(prevLogIndex); found {
			prevLogTerm = entry.Term
		}
	}

	stored := n.storage.TryGetLogEntries(nextIdx, nextIdx+uint64(n.config.MaxEntriesPerSend)-1)
	entries := make([]wire.LogEntry, len(stored))
	for i, e := range stored {
		entries[i] = e.LogEntry
	}
	leaderCommit := n.commitIndex
	n.mu.Unlock()

	args := wire.AppendEntriesRequest{
		Term:         term,
		LeaderID:     n.id,
		PrevLogIndex: prevLogIndex,
		PrevLogTerm:  prevLogTerm,
		Entries:      entries,
		LeaderCommit: leaderCommit,
	}

	reply, err := n.rpc.SendAppendEntries(peer, args)
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

	if reply.Success {
		if len(entries) > 0 {
			last := entries[len(entries)-1]
			n.matchIndex[peer] = last.Index
			n.nextIndex[peer] = last.Index + 1
			n.updateCommitIndexLocked()
		}
	} else if n.nextIndex[peer] > 1 {
		n.nextIndex[peer]--
	}
}

func (n *Node) applyLogsLocked() {
	lastApplied := n.fsm.LastAppliedIndex()
	for lastApplied < n.commitIndex {
		lastApplied++
		entry, found := n.storage.GetEntry(lastApplied)
		if !found {
			break
		}
		// Apply releases nothing under n.mu; FSM has its own lock, and the
		// reducer never blocks, so this is safe to call while holding n.mu.
		_, _ = n.fsm.Apply(lastApplied, entry.Payload)
	}
}

func (n *Node) updateCommitIndexLocked() {
	lastIdx, _ := n.getLastLogInfoLocked()
	for N := lastIdx; N > n.commitIndex; N-- {
		entry, found := n.storage.GetEntry(N)
		if !found || entry.Term != n.currentTerm {
			continue
		}

		count := 1
		for _, peer := range n.peers {
			if peer == n.id {
				continue
			}
			if n.matchIndex[peer] >= N {
				count++
			}
		}

		if count > len(n.peers)/2 {
			n.commitIndex = N
			n.applyLogsLocked()
			n.maybeCompactLocked()
			break
		}
	}
}
