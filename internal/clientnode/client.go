// Package clientnode wires up the client role: a degenerate tile that
// votes in the Raft group and is the target of "final kill" floods, but
// never drives an attack and is never captured by the evaluator
// (spec.md §2). It runs the same Raft/RPC/HTTP stack as a full tile,
// minus the evaluator and sync loop that only a grid tile needs.
package clientnode

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/kartikbazzad/territory/internal/dataplane"
	"github.com/kartikbazzad/territory/internal/grid"
	"github.com/kartikbazzad/territory/internal/httpapi"
	"github.com/kartikbazzad/territory/internal/orchestrator"
	"github.com/kartikbazzad/territory/internal/raft"
	"github.com/kartikbazzad/territory/pkg/logger"
	"github.com/kartikbazzad/territory/pkg/eventbus"
)

// Config carries everything needed to bring up one client process.
type Config struct {
	NodeID    string
	GameID    string
	Coord     grid.Coord
	RaftAddr  string
	HTTPAddr  string
	RaftPeers []string
	Orch      *orchestrator.Client
}

// Client owns the Raft node, peer RPC server, HTTP surface, and a
// dataplane Responder that absorbs whatever final-kill flood lands on it.
type Client struct {
	cfg     Config
	node    *raft.Node
	rpcSrv  *raft.Server
	resp    *dataplane.Responder
	httpSrv *httpapi.Server
}

// New constructs a Client ready to Run.
func New(cfg Config) (*Client, error) {
	storage := raft.NewStorage()
	fsm := raft.NewFSM()
	rpc := raft.NewTCPTransport()

	raftCfg := raft.DefaultConfig(cfg.NodeID, cfg.RaftPeers)
	node := raft.NewNode(raftCfg, storage, rpc, fsm)

	resp, err := dataplane.NewResponder(0)
	if err != nil {
		return nil, fmt.Errorf("clientnode: start responder: %w", err)
	}

	bus := eventbus.New()
	httpSrv := httpapi.NewServer(httpapi.Config{
		Node:   node,
		State:  fsm.State,
		Orch:   cfg.Orch,
		Bus:    bus,
		GameID: cfg.GameID,
	})

	return &Client{
		cfg:     cfg,
		node:    node,
		rpcSrv:  raft.NewServer(node),
		resp:    resp,
		httpSrv: httpSrv,
	}, nil
}

// Run starts the Raft node, RPC server, dataplane responder, and HTTP
// surface, blocking until ctx is cancelled or one fails.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	c.node.Start()
	g.Go(func() error {
		<-ctx.Done()
		c.node.Stop()
		return nil
	})

	ln, err := net.Listen("tcp", c.cfg.RaftAddr)
	if err != nil {
		return fmt.Errorf("clientnode: listen raft addr %s: %w", c.cfg.RaftAddr, err)
	}
	g.Go(func() error {
		go func() {
			<-ctx.Done()
			ln.Close()
		}()
		err := c.rpcSrv.Serve(ln)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("clientnode: raft rpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		c.resp.Run(ctx)
		return nil
	})

	g.Go(func() error {
		if err := c.httpSrv.Run(ctx, c.cfg.HTTPAddr); err != nil {
			return fmt.Errorf("clientnode: http server: %w", err)
		}
		return nil
	})

	logger.Get().Info("client node started",
		"node_id", c.cfg.NodeID,
		"coord", c.cfg.Coord,
		"raft_addr", c.cfg.RaftAddr,
		"http_addr", c.cfg.HTTPAddr,
	)

	return g.Wait()
}
