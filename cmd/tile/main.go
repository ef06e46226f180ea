// Command tile runs a single grid tile process: Raft voter, attack
// dataplane, leader evaluator, and the narrow HTTP surface, per spec.md §2.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/territory/internal/grid"
	"github.com/kartikbazzad/territory/internal/orchestrator"
	"github.com/kartikbazzad/territory/internal/tile"
	"github.com/kartikbazzad/territory/pkg/config"
	"github.com/kartikbazzad/territory/pkg/logger"
)

func main() {
	root := &cobra.Command{
		Use:   "tile",
		Short: "Run one territory-capture grid tile process",
		RunE:  run,
	}
	root.Flags().String("raft-addr", ":5000", "this tile's address for peer RPC")
	root.Flags().String("http-addr", ":8080", "this tile's narrow HTTP surface address")
	root.Flags().Uint64("capacity", 10*1024*1024, "node_capacity in bytes/sec, bounds responder backpressure")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	rt := config.LoadRuntime()
	logger.Init(logger.Config{Level: rt.LogLevel, Format: rt.LogFormat})

	env, err := config.LoadTileEnv()
	if err != nil {
		return fmt.Errorf("tile: %w", err)
	}

	raftAddr, _ := cmd.Flags().GetString("raft-addr")
	httpAddr, _ := cmd.Flags().GetString("http-addr")
	capacity, _ := cmd.Flags().GetUint64("capacity")

	nodeID := env.NodeIP
	if nodeID == "" {
		nodeID = raftAddr
	}

	orch := orchestrator.NewClient(env.MasterURL, env.GameID, nodeID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	peers, err := orch.GetPeers(ctx, env.GameID)
	if err != nil {
		logger.Get().Warn("could not fetch initial peer list, bootstrapping alone", "err", err)
	}
	var raftPeers []string
	for _, p := range peers {
		if p.RaftAddr != "" && p.RaftAddr != raftAddr {
			raftPeers = append(raftPeers, p.RaftAddr)
		}
	}

	coord := grid.Coord{}
	if env.CoordQHint != nil {
		coord.Q = *env.CoordQHint
	}
	if env.CoordRHint != nil {
		coord.R = *env.CoordRHint
	}

	t, err := tile.New(tile.Config{
		NodeID:        nodeID,
		GameID:        env.GameID,
		Coord:         coord,
		RaftAddr:      raftAddr,
		DataAddr:      fmt.Sprintf("%s:8081", env.NodeIP),
		HTTPAddr:      httpAddr,
		RaftPeers:     raftPeers,
		Capacity:      capacity,
		Orch:          orch,
		FinalKillPort: "8081",
	})
	if err != nil {
		return fmt.Errorf("tile: %w", err)
	}

	if err := orch.RegisterWorker(ctx, orchestrator.RegisterWorkerRequest{
		GameID:   env.GameID,
		NodeID:   nodeID,
		Coord:    coord,
		RaftAddr: raftAddr,
		DataAddr: fmt.Sprintf("%s:8081", env.NodeIP),
	}); err != nil {
		logger.Get().Warn("register_worker failed", "err", err)
	}

	return t.Run(ctx)
}
