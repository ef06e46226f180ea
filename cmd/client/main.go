// Command client runs the degenerate "client" role: a Raft voter that
// never attacks and never captures, representing one human player's
// connection point and final-kill target, per spec.md §2.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/territory/internal/clientnode"
	"github.com/kartikbazzad/territory/internal/grid"
	"github.com/kartikbazzad/territory/internal/orchestrator"
	"github.com/kartikbazzad/territory/pkg/config"
	"github.com/kartikbazzad/territory/pkg/logger"
)

func main() {
	root := &cobra.Command{
		Use:   "client",
		Short: "Run one territory-capture client (human player) process",
		RunE:  run,
	}
	root.Flags().String("raft-addr", ":5000", "this client's address for peer RPC")
	root.Flags().String("http-addr", ":8080", "this client's narrow HTTP surface address")
	root.Flags().String("game-id", "", "game to join (also read from GAME_ID)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	rt := config.LoadRuntime()
	logger.Init(logger.Config{Level: rt.LogLevel, Format: rt.LogFormat})

	env, err := config.LoadClientEnv()
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}

	raftAddr, _ := cmd.Flags().GetString("raft-addr")
	httpAddr, _ := cmd.Flags().GetString("http-addr")
	gameID, _ := cmd.Flags().GetString("game-id")
	if gameID == "" {
		gameID = os.Getenv("GAME_ID")
	}

	nodeID := raftAddr
	orch := orchestrator.NewClient(env.MasterURL, gameID, nodeID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	peers, err := orch.GetPeers(ctx, gameID)
	if err != nil {
		logger.Get().Warn("could not fetch initial peer list, bootstrapping alone", "err", err)
	}
	var raftPeers []string
	for _, p := range peers {
		if p.RaftAddr != "" && p.RaftAddr != raftAddr {
			raftPeers = append(raftPeers, p.RaftAddr)
		}
	}

	c, err := clientnode.New(clientnode.Config{
		NodeID:    nodeID,
		GameID:    gameID,
		Coord:     grid.Coord{},
		RaftAddr:  raftAddr,
		HTTPAddr:  httpAddr,
		RaftPeers: raftPeers,
		Orch:      orch,
	})
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}

	if err := orch.RegisterWorker(ctx, orchestrator.RegisterWorkerRequest{
		GameID:   gameID,
		NodeID:   nodeID,
		RaftAddr: raftAddr,
		IsClient: true,
	}); err != nil {
		logger.Get().Warn("register_worker failed", "err", err)
	}

	return c.Run(ctx)
}
