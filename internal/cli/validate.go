package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/cascade/internal/providers"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and print the resolved stage plan",
	Run:   runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	registry := providers.Default()
	for _, s := range cfg.AllStages() {
		if _, err := registry.Build(providers.Spec{Stage: s.ID, Name: s.Provider, Options: s.Options}); err != nil {
			slog.Error("Invalid provider", "stage", s.ID, "error", err)
			os.Exit(1)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tSTAGE\tPROVIDER\tDEPENDENCY\tCATEGORY\tTHRESHOLD\tCPS\tCONCURRENCY\tRETRIES\tTIMEOUT")
	for i, s := range cfg.AllStages() {
		idx := fmt.Sprintf("%d", i+1)
		if i >= len(cfg.Stages) {
			idx += "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.0f\t%g\t%d\t%d\t%s\n",
			idx, s.ID, s.Provider, s.Dependency, s.Category, s.MinAdvanceThreshold,
			s.CallsPerSecond, s.Concurrency, s.RetryCount, s.Timeout)
	}
	_ = w.Flush()

	if e := cfg.Enhanced; e != nil {
		fmt.Printf("\n* enhanced branch after stage %d for partial score >= %.0f\n", e.AfterStage, e.Cutoff)
	}
	fmt.Printf("qualification threshold: %.0f\n", cfg.QualificationThreshold)
	fmt.Println("configuration OK")
}
