package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/cascade/internal/core/domain"
	"github.com/vietddude/cascade/internal/qualify/cascade"
)

var (
	candidatesPath string
	fromDB         bool
	limit          int
	asJSON         bool
)

var qualifyCmd = &cobra.Command{
	Use:   "qualify [key...]",
	Short: "Run candidates through the cascade and print the results",
	Run:   runQualify,
}

func init() {
	qualifyCmd.Flags().StringVar(&candidatesPath, "candidates", "", "file with one candidate per line (- for stdin)")
	qualifyCmd.Flags().BoolVar(&fromDB, "from-db", false, "qualify pending candidates from the candidate queue")
	qualifyCmd.Flags().IntVar(&limit, "limit", 0, "max candidates taken from the queue (0 = all)")
	qualifyCmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(qualifyCmd)
}

func runQualify(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newApp(ctx, cfg)
	defer func() {
		_ = app.Stop(context.Background())
	}()

	var (
		results []domain.Result
		stats   cascade.RunStats
		err     error
	)
	if fromDB {
		if cfg.Database.URL == "" {
			slog.Error("--from-db requires database.url")
			os.Exit(1)
		}
		results, stats, err = app.QualifyPending(ctx, limit)
	} else {
		keys, kerr := collectKeys(args, candidatesPath)
		if kerr != nil {
			slog.Error("Failed to read candidates", "error", kerr)
			os.Exit(1)
		}
		if len(keys) == 0 {
			slog.Error("No candidates given")
			os.Exit(1)
		}
		results, stats, err = app.Qualify(ctx, keys)
	}

	switch {
	case errors.Is(err, context.Canceled):
		slog.Warn("Run cancelled, printing partial results", "aborted", stats.Aborted)
	case err != nil:
		slog.Error("Qualification failed", "error", err)
		os.Exit(1)
	}

	if asJSON {
		err = printJSON(os.Stdout, results, stats)
	} else {
		err = printTable(os.Stdout, results, stats)
	}
	if err != nil {
		slog.Error("Failed to write results", "error", err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, results []domain.Result, stats cascade.RunStats) error {
	if results == nil {
		results = []domain.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Results []domain.Result  `json:"results"`
		Stats   cascade.RunStats `json:"stats"`
	}{results, stats})
}

func printTable(w io.Writer, results []domain.Result, stats cascade.RunStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KEY\tSCORE\tTIER\tVALUE\tQUALIFIED\tSTAGE\tREASON")
	for _, r := range results {
		stage := "-"
		if r.EliminatedAt > 0 {
			stage = fmt.Sprintf("%d:%s", r.EliminatedAt, r.EliminatedStage)
		}
		reason := r.Reason
		if reason == "" {
			reason = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%.1f\t%s\t%.0f\t%t\t%s\t%s\n",
			r.Key, r.Score, r.Tier, r.Value, r.Qualified, stage, reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nrun %s: %d candidates, %d qualified, %d aborted, %d provider failures, cache hit rate %.0f%%, %s\n",
		stats.RunID, stats.Total, stats.Qualified, stats.Aborted, stats.ProviderFailures,
		stats.Cache.HitRate*100, stats.Duration.Round(time.Millisecond))
	return err
}
