package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [key...]",
	Short: "Add candidates to the pending queue",
	Run:   runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&candidatesPath, "candidates", "", "file with one candidate per line (- for stdin)")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("enqueue requires database.url")
		os.Exit(1)
	}

	keys, err := collectKeys(args, candidatesPath)
	if err != nil {
		slog.Error("Failed to read candidates", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	app := newApp(ctx, cfg)
	defer func() {
		_ = app.Stop(ctx)
	}()

	added, err := app.Enqueue(ctx, keys)
	if err != nil {
		slog.Error("Failed to enqueue candidates", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Enqueued %d of %d candidates\n", added, len(keys))
}
