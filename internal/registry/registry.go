// Package registry maps tile node IDs and grid coordinates to network
// addresses, giving the Raft transport and the dataplane a single place to
// resolve "who do I talk to" without redialing the orchestrator on every
// RPC. Addresses are registered once (at join time, or from an orchestrator
// peer list) and looked up many times; entries are cached for reuse the way
// the teacher's connection pool caches live connections, generalized here
// to address resolution since the wire transport itself dials per-call.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kartikbazzad/territory/internal/grid"
)

// Entry is everything the registry knows about one tile.
type Entry struct {
	NodeID   string
	Coord    grid.Coord
	RaftAddr string // host:port for Raft RPC (wire protocol)
	DataAddr string // host:port for the UDP dataplane
	IsClient bool
}

// Registry is a concurrency-safe, lazily-populated address book.
type Registry struct {
	mu        sync.RWMutex
	byNodeID  map[string]Entry
	byCoord   map[grid.Coord]string // coord -> node ID
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byNodeID: make(map[string]Entry),
		byCoord:  make(map[grid.Coord]string),
	}
}

// Put registers or replaces a tile's address entry.
func (r *Registry) Put(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byNodeID[e.NodeID] = e
	r.byCoord[e.Coord] = e.NodeID
}

// Remove drops a tile's entry, used when the orchestrator reports a kill.
func (r *Registry) Remove(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byNodeID[nodeID]; ok {
		delete(r.byCoord, e.Coord)
		delete(r.byNodeID, nodeID)
	}
}

// Get looks up a tile by node ID.
func (r *Registry) Get(nodeID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byNodeID[nodeID]
	return e, ok
}

// GetByCoord looks up a tile by grid coordinate.
func (r *Registry) GetByCoord(c grid.Coord) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCoord[c]
	if !ok {
		return Entry{}, false
	}
	return r.byNodeID[id], true
}

// RaftPeers returns every known node's RaftAddr, in node-ID-sorted order,
// for feeding Config.Peers.
func (r *Registry) RaftPeers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byNodeID))
	for id := range r.byNodeID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byNodeID[id].RaftAddr)
	}
	return out
}

// All returns a snapshot of every registered entry.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.byNodeID))
	for _, e := range r.byNodeID {
		out = append(out, e)
	}
	return out
}

// RequireDataAddr returns e.DataAddr or an error naming the missing node,
// used by the dataplane sync loop which cannot attack an unresolved target.
func (r *Registry) RequireDataAddr(nodeID string) (string, error) {
	e, ok := r.Get(nodeID)
	if !ok {
		return "", fmt.Errorf("registry: no entry for node %q", nodeID)
	}
	return e.DataAddr, nil
}
