// Package cascade drives candidates through the configured stages,
// eliminating them as soon as they cannot reach the qualification bar.
package cascade

import (
	"context"
	"log/slog"

	"github.com/vietddude/cascade/internal/core/domain"
	"github.com/vietddude/cascade/internal/qualify/scoring"
	"github.com/vietddude/cascade/internal/qualify/stage"
)

// State is a candidate's position in the cascade.
type State int

const (
	StatePending State = iota
	StateInStage
	StateQualified
	StateEliminated
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInStage:
		return "in-stage"
	case StateQualified:
		return "qualified"
	case StateEliminated:
		return "eliminated"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateQualified || s == StateEliminated
}

// StageRunner executes one stage over a batch of candidates.
type StageRunner interface {
	Run(ctx context.Context, st stage.Stage, candidates []*domain.Candidate) (map[string]domain.StageResult, error)
}

// Gate is a stage plus the partial score needed to leave it.
type Gate struct {
	Stage     stage.Stage
	Threshold float64
}

// Branch is the optional high-value path taken after main stage AfterStage.
type Branch struct {
	AfterStage int
	Cutoff     float64
	Stages     []stage.Stage
}

// Outcome tracks one candidate through a run.
type Outcome struct {
	Candidate *domain.Candidate
	State     State
	// Stage is the index of the stage the candidate is in (or last completed).
	Stage int
	// Enhanced is set once the candidate entered the high-value branch.
	Enhanced    bool
	Elimination *domain.StageResult
}

func (o *Outcome) eliminate(res domain.StageResult) {
	if o.State.Terminal() {
		return
	}
	o.State = StateEliminated
	o.Stage = res.StageIndex
	o.Elimination = &res
}

// Controller is the cascade state machine. Stage order is fixed.
type Controller struct {
	gates        []Gate
	branch       *Branch
	qualifyScore float64
	scorer       *scoring.Scorer
	runner       StageRunner
	log          *slog.Logger
}

// NewController creates a controller. gates must be in cascade order with
// 1-based indices.
func NewController(gates []Gate, branch *Branch, qualificationThreshold float64, scorer *scoring.Scorer, runner StageRunner, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		gates:        gates,
		branch:       branch,
		qualifyScore: qualificationThreshold,
		scorer:       scorer,
		runner:       runner,
		log:          log,
	}
}

// Execute runs candidates through every stage and returns one Outcome per
// candidate in input order.
//
// On cancellation the error is returned together with the outcomes reached so
// far; candidates still in a non-terminal state were aborted.
func (c *Controller) Execute(ctx context.Context, candidates []*domain.Candidate) ([]*Outcome, error) {
	outcomes := make([]*Outcome, len(candidates))
	byKey := make(map[string]*Outcome, len(candidates))
	for i, cand := range candidates {
		o := &Outcome{Candidate: cand, State: StatePending}
		outcomes[i] = o
		byKey[cand.Key] = o
	}

	active := candidates
	for _, gate := range c.gates {
		if len(active) == 0 {
			break
		}

		var err error
		active, err = c.runGate(ctx, gate, active, byKey)
		if err != nil {
			return outcomes, err
		}

		if c.branch != nil && c.branch.AfterStage == gate.Stage.Index {
			if err := c.runBranch(ctx, active, byKey); err != nil {
				return outcomes, err
			}
		}
	}

	last := 0
	lastID := ""
	if n := len(c.gates); n > 0 {
		last, lastID = c.gates[n-1].Stage.Index, c.gates[n-1].Stage.ID
	}
	for _, cand := range active {
		o := byKey[cand.Key]
		score := c.scorer.Partial(cand.Signals())
		if score >= c.qualifyScore {
			o.State = StateQualified
			continue
		}
		o.eliminate(domain.Eliminated(lastID, last, domain.ReasonBelowQualification, nil))
		c.log.Debug("Candidate eliminated", "candidate", cand.Key, "stage", lastID, "reason", domain.ReasonBelowQualification, "score", score)
	}

	return outcomes, nil
}

// runGate runs one main stage and returns the candidates that advance.
func (c *Controller) runGate(ctx context.Context, gate Gate, active []*domain.Candidate, byKey map[string]*Outcome) ([]*domain.Candidate, error) {
	st := gate.Stage
	for _, cand := range active {
		o := byKey[cand.Key]
		o.State = StateInStage
		o.Stage = st.Index
	}

	results, runErr := c.runner.Run(ctx, st, active)

	next := make([]*domain.Candidate, 0, len(active))
	eliminated := 0
	for _, cand := range active {
		o := byKey[cand.Key]
		res, ok := results[cand.Key]
		if !ok {
			// Aborted: stays in-stage.
			continue
		}

		if !res.IsAdvanced() {
			o.eliminate(res)
			eliminated++
			continue
		}
		if err := cand.Attach(*res.Signal); err != nil {
			o.eliminate(domain.Eliminated(st.ID, st.Index, domain.ReasonDuplicateSignal, err))
			eliminated++
			continue
		}

		if score := c.scorer.Partial(cand.Signals()); score < gate.Threshold {
			o.eliminate(domain.Eliminated(st.ID, st.Index, domain.ReasonBelowThreshold, nil))
			eliminated++
			c.log.Debug("Candidate eliminated",
				"candidate", cand.Key,
				"stage", st.ID,
				"reason", domain.ReasonBelowThreshold,
				"score", score,
				"threshold", gate.Threshold,
			)
			continue
		}
		next = append(next, cand)
	}

	c.log.Info("Stage completed",
		"stage", st.ID,
		"index", st.Index,
		"entered", len(active),
		"advanced", len(next),
		"eliminated", eliminated,
	)

	return next, runErr
}

// runBranch runs the enhanced stages for candidates at or above the cutoff.
// Failures here never eliminate a candidate.
func (c *Controller) runBranch(ctx context.Context, active []*domain.Candidate, byKey map[string]*Outcome) error {
	var picked []*domain.Candidate
	for _, cand := range active {
		if c.scorer.Partial(cand.Signals()) >= c.branch.Cutoff {
			picked = append(picked, cand)
			byKey[cand.Key].Enhanced = true
		}
	}
	if len(picked) == 0 {
		return nil
	}

	c.log.Info("Enhanced analysis", "candidates", len(picked), "cutoff", c.branch.Cutoff)

	for _, st := range c.branch.Stages {
		results, err := c.runner.Run(ctx, st, picked)
		for _, cand := range picked {
			res, ok := results[cand.Key]
			if !ok || !res.IsAdvanced() {
				if ok {
					c.log.Debug("Enhanced stage skipped", "candidate", cand.Key, "stage", st.ID, "error", res.Err)
				}
				continue
			}
			if err := cand.Attach(*res.Signal); err != nil {
				c.log.Debug("Enhanced signal rejected", "candidate", cand.Key, "stage", st.ID, "error", err)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}
