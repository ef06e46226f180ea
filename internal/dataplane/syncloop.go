package dataplane

import (
	"context"
	"log"
	"time"

	"github.com/kartikbazzad/territory/internal/grid"
	"github.com/kartikbazzad/territory/internal/model"
)

// AddrResolver maps a tile's node ID to the "host:8081" dataplane address
// to flood, satisfied by registry.Registry.
type AddrResolver interface {
	RequireDataAddr(nodeID string) (string, error)
}

// Proposer is the subset of *raft.Node the sync loop needs to submit
// NodeMetricsReport events.
type Proposer interface {
	Propose(payload []byte) (uint64, error)
}

// SyncLoop reconciles "who is attacking me" with the set of open reverse
// flooders once a second, and reports aggregate metrics every five,
// per spec.md §4.5.
type SyncLoop struct {
	myCoord  grid.Coord
	myNodeID func(grid.Coord) (string, bool) // coord -> owning tile's node ID, for address resolution

	state    func() *model.GameState
	resolver AddrResolver
	proposer Proposer
	resp     *Responder

	open map[grid.Coord]*Flooder

	lastMetricsAt time.Time
}

// NewSyncLoop builds a sync loop for the tile at myCoord.
func NewSyncLoop(myCoord grid.Coord, nodeIDFor func(grid.Coord) (string, bool), state func() *model.GameState, resolver AddrResolver, proposer Proposer, resp *Responder) *SyncLoop {
	return &SyncLoop{
		myCoord:       myCoord,
		myNodeID:      nodeIDFor,
		state:         state,
		resolver:      resolver,
		proposer:      proposer,
		resp:          resp,
		open:          make(map[grid.Coord]*Flooder),
		lastMetricsAt: time.Now(),
	}
}

// Run ticks the 1Hz reconciliation and 5s metrics report until ctx is done.
func (s *SyncLoop) Run(ctx context.Context) {
	reconcile := time.NewTicker(time.Second)
	metrics := time.NewTicker(5 * time.Second)
	defer reconcile.Stop()
	defer metrics.Stop()
	defer s.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcile.C:
			s.reconcile(ctx)
		case <-metrics.C:
			s.reportMetrics()
		}
	}
}

// reconcile opens a reverse flooder toward every coord currently attacking
// myCoord, and closes flooders for attackers no longer present — the
// asymmetry in spec.md §4.5 where an attacked tile floods its attackers.
func (s *SyncLoop) reconcile(ctx context.Context) {
	state := s.state()
	attackers := make(map[grid.Coord]bool)
	for _, n := range state.Nodes {
		if n.Target != nil && n.Target.IsCoord() && n.Target.Coord == s.myCoord {
			attackers[n.Coord] = true
		}
	}

	for coord := range attackers {
		if _, exists := s.open[coord]; exists {
			continue
		}
		nodeID, ok := s.myNodeID(coord)
		if !ok {
			continue
		}
		addr, err := s.resolver.RequireDataAddr(nodeID)
		if err != nil {
			continue
		}
		f, err := NewFlooder(addr)
		if err != nil {
			log.Printf("dataplane: open reverse flood to %s: %v", coord, err)
			continue
		}
		f.Start(ctx)
		s.open[coord] = f
	}

	for coord, f := range s.open {
		if !attackers[coord] {
			f.Stop()
			delete(s.open, coord)
		}
	}
}

func (s *SyncLoop) closeAll() {
	for coord, f := range s.open {
		f.Stop()
		delete(s.open, coord)
	}
}

// reportMetrics proposes NodeMetricsReport for myCoord: bandwidth_in from
// the responder's receive counter, packet_loss as the worst loss among
// this tile's open reverse flooders (there is one per attacker; the
// tile's overall health is bounded by its weakest exchange).
func (s *SyncLoop) reportMetrics() {
	now := time.Now()
	elapsed := now.Sub(s.lastMetricsAt)
	s.lastMetricsAt = now

	bandwidthIn := s.resp.BandwidthInSince(elapsed)

	var worstLoss float32
	for _, f := range s.open {
		if loss := f.PacketLoss(); loss > worstLoss {
			worstLoss = loss
		}
	}

	ev := model.NewNodeMetricsReport(uint64(now.Unix()), model.NodeMetricsReport{
		Coord:       s.myCoord,
		BandwidthIn: bandwidthIn,
		PacketLoss:  worstLoss,
	})
	payload, err := model.Encode(ev)
	if err != nil {
		log.Printf("dataplane: encode metrics report: %v", err)
		return
	}
	if _, err := s.proposer.Propose(payload); err != nil {
		// Not leader, or proposal failed; next tick tries again with
		// fresher numbers, so dropping this one is harmless.
		log.Printf("dataplane: metrics report dropped: %v", err)
	}
}
