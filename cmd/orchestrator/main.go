// Command orchestrator runs the reference orchestrator HTTP service: the
// per-game peer directory and the five-endpoint spawn/kill contract
// (stubbed — it never shells out to a real scheduler), per spec.md §2.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/territory/internal/orchestrator"
	"github.com/kartikbazzad/territory/pkg/config"
	"github.com/kartikbazzad/territory/pkg/logger"
)

func main() {
	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "Run the reference territory-capture orchestrator",
		RunE:  run,
	}
	root.Flags().String("addr", ":9000", "address to listen on")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	rt := config.LoadRuntime()
	logger.Init(logger.Config{Level: rt.LogLevel, Format: rt.LogFormat})
	_ = config.LoadOrchestratorEnv() // SUBNET_ID/SECURITY_GROUP_ID/CLUSTER_NAME only matter once real spawning is wired in

	addr, _ := cmd.Flags().GetString("addr")

	srv := orchestrator.NewServer()
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	logger.Get().Info("orchestrator listening", "addr", addr)

	select {
	case <-ctx.Done():
		return httpSrv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("orchestrator: serve: %w", err)
	}
}
