package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	pollInterval time.Duration
	batchSize    int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Qualify queued candidates continuously and expose health endpoints",
	Run:   runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&pollInterval, "interval", 30*time.Second, "delay between queue polls")
	serveCmd.Flags().IntVar(&batchSize, "batch", 500, "max candidates per run")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("serve requires database.url")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := newApp(ctx, cfg)
	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start cascade", "error", err)
		os.Exit(1)
	}
	slog.Info("Cascade started", "config", cfgPath, "interval", pollInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down...", "signal", sig)
		cancel()
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		_, stats, err := app.QualifyPending(ctx, batchSize)
		switch {
		case errors.Is(err, context.Canceled):
		case err != nil:
			slog.Error("Run failed", "error", err)
		case stats.Total > 0:
			slog.Info("Batch done", "run_id", stats.RunID, "total", stats.Total, "qualified", stats.Qualified)
		}

		select {
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer shutdownCancel()
			if err := app.Stop(shutdownCtx); err != nil {
				slog.Error("Error during shutdown", "error", err)
				os.Exit(1)
			}
			return
		case <-ticker.C:
		}
	}
}
