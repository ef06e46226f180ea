package raft

import (
	"fmt"
	"sync"

	"github.com/kartikbazzad/territory/internal/wire"
)

// StoredEntry is a log entry as the storage layer keeps it: the wire entry
// plus the ID of the leader that produced it, needed for conflict
// resolution on leader change (spec.md §4.2). LeaderID never goes out on
// the wire itself — AppendEntriesRequest.LeaderID applies to the whole
// batch, and the receiver stamps it onto each stored entry.
type StoredEntry struct {
	wire.LogEntry
	LeaderID string
}

// LogState summarizes the tail of the log.
type LogState struct {
	LastIndex uint64
	LastTerm  uint64
}

// Snapshot is the opaque blob installed on a replica: the full event vector
// re-derivable GameState plus the index it was built at. It is identified by
// readers as "snapshot-{LastIncludedIndex}" per spec.md §6.
type Snapshot struct {
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	Events            []byte // JSON-encoded []model.GameEvent
}

// Storage is the persistent-per-replica contract spec.md §4.2 names. This
// implementation keeps everything in memory (Non-goal: durable on-disk
// storage), generalizing the teacher's Node-embedded `log []wire.LogEntry`
// into its own struct so the reducer-backed state machine and the log can
// be snapshotted independently (spec.md §9).
type Storage struct {
	mu sync.RWMutex

	votedTerm uint64
	votedFor  string

	log []StoredEntry // entries with Index > compactedUpto are kept in full

	compactedUpto uint64 // highest index folded into the last snapshot
	compactedTerm uint64
}

// NewStorage returns an empty in-memory storage.
func NewStorage() *Storage {
	return &Storage{}
}

// SaveVote persists the current term and candidate voted for in it.
func (s *Storage) SaveVote(term uint64, votedFor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votedTerm = term
	s.votedFor = votedFor
	return nil
}

// ReadVote returns the last saved vote.
func (s *Storage) ReadVote() (term uint64, votedFor string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.votedTerm, s.votedFor, nil
}

// GetLogState reports the index/term of the last log entry (or the
// snapshot's last-included index/term if the log tail is empty).
func (s *Storage) GetLogState() LogState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.log) == 0 {
		return LogState{LastIndex: s.compactedUpto, LastTerm: s.compactedTerm}
	}
	last := s.log[len(s.log)-1]
	return LogState{LastIndex: last.Index, LastTerm: last.Term}
}

// TryGetLogEntries returns entries with Index in [lo, hi], inclusive.
func (s *Storage) TryGetLogEntries(lo, hi uint64) []StoredEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []StoredEntry
	for _, e := range s.log {
		if e.Index >= lo && e.Index <= hi {
			out = append(out, e)
		}
	}
	return out
}

// GetEntry returns the entry at index, if present in the uncompacted tail.
func (s *Storage) GetEntry(index uint64) (StoredEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.log {
		if e.Index == index {
			return e, true
		}
	}
	return StoredEntry{}, false
}

// AppendToLog appends new entries, skipping any index already present.
func (s *Storage) AppendToLog(entries []StoredEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if s.indexExistsLocked(e.Index) {
			continue
		}
		s.log = append(s.log, e)
	}
}

func (s *Storage) indexExistsLocked(index uint64) bool {
	for _, e := range s.log {
		if e.Index == index {
			return true
		}
	}
	return false
}

// DeleteConflictLogsSince removes every entry at or after logID whose
// LeaderID differs from leaderID, preserving entries written by the same
// leader (spec.md §4.2 — needed for correct leader-change resolution).
func (s *Storage) DeleteConflictLogsSince(logID uint64, leaderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []StoredEntry
	for _, e := range s.log {
		if e.Index >= logID && e.LeaderID != leaderID {
			continue
		}
		kept = append(kept, e)
	}
	s.log = kept
}

// PurgeLogsUpto drops entries with Index <= logID and advances the
// compaction boundary to (logID, term); used by the leader's compaction
// step to bound the tail, keeping up to 1,000 trailing entries per spec.md §4.2.
func (s *Storage) PurgeLogsUpto(logID, term uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []StoredEntry
	for _, e := range s.log {
		if e.Index > logID {
			kept = append(kept, e)
		}
	}
	s.log = kept
	if logID > s.compactedUpto {
		s.compactedUpto = logID
		s.compactedTerm = term
	}
}

// CompactedUpto returns the highest index already folded into a snapshot;
// a follower whose nextIndex falls at or below this has no way to catch up
// via AppendEntries and must be sent a snapshot instead.
func (s *Storage) CompactedUpto() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compactedUpto
}

// TermAt returns the term of the entry at index, falling back to the
// compacted boundary's term when index matches it exactly (its own entry
// having already been purged from the tail).
func (s *Storage) TermAt(index uint64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.log {
		if e.Index == index {
			return e.Term
		}
	}
	if index == s.compactedUpto {
		return s.compactedTerm
	}
	return 0
}

// AllEntries returns every stored entry in index order. Snapshots do not use
// it: FSM.BuildSnapshot serializes the FSM's own event vector.
func (s *Storage) AllEntries() []StoredEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StoredEntry, len(s.log))
	copy(out, s.log)
	return out
}

// ReplaceLog discards the current tail and installs a new one, used when a
// snapshot is installed from a peer.
func (s *Storage) ReplaceLog(entries []StoredEntry, lastIncludedIndex, lastIncludedTerm uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = entries
	s.compactedUpto = lastIncludedIndex
	s.compactedTerm = lastIncludedTerm
}

func (e StoredEntry) String() string {
	return fmt.Sprintf("entry{idx=%d term=%d leader=%s}", e.Index, e.Term, e.LeaderID)
}
