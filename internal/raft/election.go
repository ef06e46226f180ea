package raft

import (
	"log"
	"sync/atomic"

	"github.com/kartikbazzad/territory/internal/wire"
)

// RequestVote handles an incoming vote request from a candidate.
//
//  1. Reject if the candidate's term is older than ours.
//  2. Step down if the candidate's term is newer.
//  3. Grant the vote only if we haven't voted for someone else this term
//     and the candidate's log is at least as up-to-date as ours.
func (n *Node) RequestVote(args wire.RequestVoteRequest) wire.RequestVoteReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	reply := wire.RequestVoteReply{Term: n.currentTerm, VoteGranted: false}

	if args.Term < n.currentTerm {
		return reply
	}

	if args.Term > n.currentTerm {
		n.currentTerm = args.Term
		n.state = Follower
		n.votedFor = ""
		_ = n.storage.SaveVote(n.currentTerm, n.votedFor)
		n.resetElectionTimerLocked()
	}

	lastIdx, lastTerm := n.getLastLogInfoLocked()
	upToDate := args.LastLogTerm > lastTerm ||
		(args.LastLogTerm == lastTerm && args.LastLogIndex >= lastIdx)

	if (n.votedFor == "" || n.votedFor == args.CandidateID) && upToDate {
		n.votedFor = args.CandidateID
		_ = n.storage.SaveVote(n.currentTerm, n.votedFor)
		n.resetElectionTimerLocked()
		reply.VoteGranted = true
		reply.Term = n.currentTerm
	}

	return reply
}

func (n *Node) runElection(term uint64, peers []string) {
	var votes int32 = 1 // vote for self

	for _, peer := range peers {
		if peer == n.id {
			continue
		}
		go func(p string) {
			n.mu.Lock()
			lastIdx, lastTerm := n.getLastLogInfoLocked()
			n.mu.Unlock()

			args := wire.RequestVoteRequest{
				Term:         term,
				CandidateID:  n.id,
				LastLogIndex: lastIdx,
				LastLogTerm:  lastTerm,
			}

			reply, err := n.rpc.SendRequestVote(p, args)
			if err != nil {
				return
			}

			n.mu.Lock()
			defer n.mu.Unlock()

			if n.state != Candidate || n.currentTerm != term {
				return // election obsolete
			}

			if reply.Term > n.currentTerm {
				n.currentTerm = reply.Term
				n.state = Follower
				n.votedFor = ""
				_ = n.storage.SaveVote(n.currentTerm, n.votedFor)
				n.resetElectionTimerLocked()
				return
			}

			if reply.VoteGranted {
				v := atomic.AddInt32(&votes, 1)
				if int(v) > len(n.peers)/2 {
					n.becomeLeaderLocked()
				}
			}
		}(peer)
	}
}

func (n *Node) becomeLeaderLocked() {
	if n.state == Leader {
		return
	}
	n.state = Leader
	n.leaderID = n.id
	log.Printf("[%s] became leader in term %d", n.id, n.currentTerm)

	if n.electionTimer != nil {
		n.electionTimer.Stop()
	}

	lastIdx, _ := n.getLastLogInfoLocked()
	n.nextIndex = make(map[string]uint64)
	n.matchIndex = make(map[string]uint64)
	for _, p := range n.peers {
		n.nextIndex[p] = lastIdx + 1
		n.matchIndex[p] = 0
	}

	n.startHeartbeatLocked()
}
