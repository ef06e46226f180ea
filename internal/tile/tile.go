// Package tile wires together a single tile process: the Raft node, its
// TCP peer RPC server, the dataplane responder and sync loop, the
// leader-only evaluator, and the HTTP/WebSocket surface. It generalizes
// the bundoc-server TCP server's WaitGroup-based lifecycle to the several
// independent background loops a tile runs, using errgroup so a hard
// failure in any one triggers orderly shutdown of the rest.
package tile

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/kartikbazzad/territory/internal/dataplane"
	"github.com/kartikbazzad/territory/internal/evaluator"
	"github.com/kartikbazzad/territory/internal/grid"
	"github.com/kartikbazzad/territory/internal/httpapi"
	"github.com/kartikbazzad/territory/internal/model"
	"github.com/kartikbazzad/territory/internal/orchestrator"
	"github.com/kartikbazzad/territory/internal/raft"
	"github.com/kartikbazzad/territory/internal/registry"
	"github.com/kartikbazzad/territory/pkg/eventbus"
	"github.com/kartikbazzad/territory/pkg/logger"
)

// Config carries everything needed to bring up one tile process.
type Config struct {
	NodeID      string
	GameID      string
	Coord       grid.Coord
	RaftAddr    string // this tile's own "host:port" for peer RPC
	DataAddr    string // this tile's own "host:8081"-style UDP dataplane addr
	HTTPAddr    string
	RaftPeers   []string
	Capacity    uint64 // responder backpressure budget, bytes/sec
	Orch        *orchestrator.Client
	FinalKillPort string
}

// Tile owns every long-running loop for one grid cell's process.
type Tile struct {
	cfg Config

	node     *raft.Node
	rpcSrv   *raft.Server
	reg      *registry.Registry
	resp     *dataplane.Responder
	sync     *dataplane.SyncLoop
	eval     *evaluator.Evaluator
	httpSrv  *httpapi.Server
	bus      *eventbus.Broker
}

// New constructs a Tile ready to Run.
func New(cfg Config) (*Tile, error) {
	storage := raft.NewStorage()
	fsm := raft.NewFSM()
	rpc := raft.NewTCPTransport()

	raftCfg := raft.DefaultConfig(cfg.NodeID, cfg.RaftPeers)
	node := raft.NewNode(raftCfg, storage, rpc, fsm)

	reg := registry.New()
	reg.Put(registry.Entry{
		NodeID:   cfg.NodeID,
		Coord:    cfg.Coord,
		RaftAddr: cfg.RaftAddr,
		DataAddr: cfg.DataAddr,
	})

	resp, err := dataplane.NewResponder(cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("tile: start responder: %w", err)
	}

	nodeIDFor := func(c grid.Coord) (string, bool) {
		e, ok := reg.GetByCoord(c)
		if !ok {
			return "", false
		}
		return e.NodeID, true
	}

	syncLoop := dataplane.NewSyncLoop(cfg.Coord, nodeIDFor, fsm.State, reg, node, resp)

	kill := dataplane.NewFinalKiller(cfg.FinalKillPort)
	eval := evaluator.New(cfg.NodeID, node, fsm.State, nil, kill, cfg.Orch)

	bus := eventbus.New()

	httpSrv := httpapi.NewServer(httpapi.Config{
		Node:     node,
		State:    fsm.State,
		Orch:     cfg.Orch,
		Bus:      bus,
		GameID:   cfg.GameID,
		Capacity: cfg.Capacity,
	})

	return &Tile{
		cfg:     cfg,
		node:    node,
		rpcSrv:  raft.NewServer(node),
		reg:     reg,
		resp:    resp,
		sync:    syncLoop,
		eval:    eval,
		httpSrv: httpSrv,
		bus:     bus,
	}, nil
}

// Run starts every background loop and blocks until ctx is cancelled or
// one of them fails, at which point the rest are torn down.
func (t *Tile) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	t.node.Start()
	g.Go(func() error {
		<-ctx.Done()
		t.node.Stop()
		return nil
	})

	ln, err := net.Listen("tcp", t.cfg.RaftAddr)
	if err != nil {
		return fmt.Errorf("tile: listen raft addr %s: %w", t.cfg.RaftAddr, err)
	}
	g.Go(func() error {
		go func() {
			<-ctx.Done()
			ln.Close()
		}()
		err := t.rpcSrv.Serve(ln)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("tile: raft rpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		t.resp.Run(ctx)
		return nil
	})

	g.Go(func() error {
		t.sync.Run(ctx)
		return nil
	})

	g.Go(func() error {
		t.eval.Run(ctx)
		return nil
	})

	g.Go(func() error {
		if err := t.httpSrv.Run(ctx, t.cfg.HTTPAddr); err != nil {
			return fmt.Errorf("tile: http server: %w", err)
		}
		return nil
	})

	logger.Get().Info("tile started",
		"node_id", t.cfg.NodeID,
		"coord", t.cfg.Coord,
		"raft_addr", t.cfg.RaftAddr,
		"http_addr", t.cfg.HTTPAddr,
	)

	return g.Wait()
}

// State exposes the live FSM-derived GameState.
func (t *Tile) State() *model.GameState { return t.node.FSM().State() }
