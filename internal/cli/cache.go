package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	redisclient "github.com/vietddude/cascade/internal/infra/redis"
)

var cacheClearCmd = &cobra.Command{
	Use:   "cache-clear",
	Short: "Remove every shared signal from Redis",
	Run:   runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheClearCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Redis.URL == "" {
		slog.Error("cache-clear requires redis.url")
		os.Exit(1)
	}

	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	removed, err := redisclient.NewSignalStore(client).Clear(context.Background())
	if err != nil {
		slog.Error("Failed to clear signals", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %d cached signals\n", removed)
}
