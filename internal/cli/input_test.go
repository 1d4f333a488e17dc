package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/cascade/internal/core/domain"
	"github.com/vietddude/cascade/internal/qualify/cascade"
)

func TestReadKeys(t *testing.T) {
	in := "acme.com\n\n# comment\n  https://shop.example.org/  \n"
	keys, err := readKeys(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "acme.com" || keys[1] != "https://shop.example.org/" {
		t.Errorf("unexpected keys %q", keys)
	}
}

func TestCollectKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.txt")
	if err := os.WriteFile(path, []byte("b.com\nc.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	keys, err := collectKeys([]string{"a.com"}, path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(keys, ",") != "a.com,b.com,c.com" {
		t.Errorf("unexpected keys %q", keys)
	}

	if _, err := collectKeys(nil, filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPrintTable(t *testing.T) {
	results := []domain.Result{
		{Key: "good.com", Score: 82, Tier: domain.TierHigh, Value: 1200, Qualified: true},
		{Key: "weak.com", Score: 12, Tier: domain.TierLow, EliminatedAt: 2, EliminatedStage: "financial", Reason: domain.ReasonBelowThreshold},
	}
	stats := cascade.RunStats{RunID: "r1", Total: 2, Qualified: 1, Duration: 1500 * time.Millisecond}

	var buf bytes.Buffer
	if err := printTable(&buf, results, stats); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"good.com", "HIGH", "2:financial", "run r1: 2 candidates, 1 qualified"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, nil, cascade.RunStats{RunID: "r2"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"results": []`) || !strings.Contains(buf.String(), `"run_id": "r2"`) {
		t.Errorf("unexpected JSON:\n%s", buf.String())
	}
}
