package cascade

import (
	"context"
	"testing"

	"github.com/vietddude/cascade/internal/core/domain"
	"github.com/vietddude/cascade/internal/qualify/scoring"
	"github.com/vietddude/cascade/internal/qualify/stage"
)

// stubRunner replays canned results per stage and optionally an error.
type stubRunner struct {
	results map[string]map[string]domain.StageResult
	errs    map[string]error
	seen    map[string][]string
}

func (s *stubRunner) Run(_ context.Context, st stage.Stage, candidates []*domain.Candidate) (map[string]domain.StageResult, error) {
	if s.seen == nil {
		s.seen = make(map[string][]string)
	}
	for _, c := range candidates {
		s.seen[st.ID] = append(s.seen[st.ID], c.Key)
	}
	return s.results[st.ID], s.errs[st.ID]
}

func newTestController(t *testing.T, runner StageRunner, thresholds ...float64) *Controller {
	t.Helper()
	cfg := testConfig(thresholds...)
	scorer, err := scoring.NewScorer(cfg.Scoring)
	if err != nil {
		t.Fatal(err)
	}
	gates := make([]Gate, len(cfg.Stages))
	for i, s := range cfg.Stages {
		gates[i] = Gate{Stage: stage.Stage{ID: s.ID, Index: i + 1}, Threshold: s.MinAdvanceThreshold}
	}
	return NewController(gates, nil, cfg.QualificationThreshold, scorer, runner, nil)
}

func advanced(st string, idx int, points float64) domain.StageResult {
	return domain.Advanced(st, idx, domain.Signal{Stage: st, Category: st, Points: points})
}

func TestExecute_States(t *testing.T) {
	runner := &stubRunner{
		results: map[string]map[string]domain.StageResult{
			"s1": {
				"a.com": advanced("s1", 1, 40),
				"b.com": domain.Eliminated("s1", 1, domain.ReasonProviderFailure, nil),
				"c.com": advanced("s1", 1, 40),
			},
			"s2": {
				"a.com": advanced("s2", 2, 30),
				"c.com": advanced("s2", 2, 0),
			},
		},
	}
	c := newTestController(t, runner, 10, 10)

	outcomes, err := c.Execute(context.Background(), []*domain.Candidate{
		domain.NewCandidate("a.com"), domain.NewCandidate("b.com"), domain.NewCandidate("c.com"),
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []State{StateQualified, StateEliminated, StateEliminated}
	for i, o := range outcomes {
		if o.State != want[i] {
			t.Errorf("%s: state = %s, want %s", o.Candidate.Key, o.State, want[i])
		}
	}
	if got := outcomes[2].Elimination.Reason; got != domain.ReasonBelowQualification {
		t.Errorf("c.com reason = %q, want below-qualification", got)
	}
	if got := runner.seen["s2"]; len(got) != 2 {
		t.Errorf("s2 should only see survivors, saw %v", got)
	}
}

func TestExecute_AbortedStaysNonTerminal(t *testing.T) {
	runner := &stubRunner{
		results: map[string]map[string]domain.StageResult{
			"s1": {"done.com": domain.Eliminated("s1", 1, domain.ReasonProviderFailure, nil)},
		},
		errs: map[string]error{"s1": context.Canceled},
	}
	c := newTestController(t, runner, 10, 10)

	outcomes, err := c.Execute(context.Background(), []*domain.Candidate{
		domain.NewCandidate("done.com"), domain.NewCandidate("pending.com"),
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !outcomes[0].State.Terminal() {
		t.Error("completed candidate should be terminal")
	}
	if outcomes[1].State != StateInStage {
		t.Errorf("aborted candidate state = %s, want in-stage", outcomes[1].State)
	}
	if len(runner.seen["s2"]) != 0 {
		t.Error("no stage may run after cancellation")
	}
}

func TestExecute_DuplicateSignalEliminates(t *testing.T) {
	// A runner that hands back a signal already attached for the stage.
	runner := &stubRunner{
		results: map[string]map[string]domain.StageResult{
			"s1": {"dup.com": advanced("s1", 1, 50)},
		},
	}
	c := newTestController(t, runner, 0)

	cand := domain.NewCandidate("dup.com")
	if err := cand.Attach(domain.Signal{Stage: "s1", Category: "s1", Points: 50}); err != nil {
		t.Fatal(err)
	}

	outcomes, err := c.Execute(context.Background(), []*domain.Candidate{cand})
	if err != nil {
		t.Fatal(err)
	}
	if got := outcomes[0].Elimination; got == nil || got.Reason != domain.ReasonDuplicateSignal {
		t.Errorf("expected duplicate-signal elimination, got %+v", got)
	}
}
