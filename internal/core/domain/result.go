package domain

// StageOutcome is the per-candidate outcome of one stage.
type StageOutcome int

const (
	OutcomeAdvanced StageOutcome = iota
	OutcomeEliminated
)

func (o StageOutcome) String() string {
	switch o {
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeEliminated:
		return "eliminated"
	default:
		return "unknown"
	}
}

// Elimination reasons.
const (
	ReasonProviderFailure    = "provider-failure"
	ReasonBelowThreshold     = "below-threshold"
	ReasonBelowQualification = "below-qualification"
	ReasonInvalidCandidate   = "invalid-candidate"
	ReasonDuplicateSignal    = "duplicate-signal"
)

// StageResult records what happened to a candidate in a stage: either it
// advanced with a signal or it was eliminated with a reason.
type StageResult struct {
	Outcome    StageOutcome
	Stage      string
	StageIndex int
	Signal     *Signal
	Reason     string
	Err        error
}

// Advanced builds an advancing stage result.
func Advanced(stage string, index int, sig Signal) StageResult {
	s := sig.clone()
	return StageResult{
		Outcome:    OutcomeAdvanced,
		Stage:      stage,
		StageIndex: index,
		Signal:     &s,
	}
}

// Eliminated builds an eliminating stage result.
func Eliminated(stage string, index int, reason string, err error) StageResult {
	return StageResult{
		Outcome:    OutcomeEliminated,
		Stage:      stage,
		StageIndex: index,
		Reason:     reason,
		Err:        err,
	}
}

// IsAdvanced reports whether the candidate advanced.
func (r StageResult) IsAdvanced() bool {
	return r.Outcome == OutcomeAdvanced && r.Signal != nil
}

// Tier is the priority classification of a scored candidate.
type Tier string

const (
	TierImmediate Tier = "IMMEDIATE"
	TierHigh      Tier = "HIGH"
	TierMedium    Tier = "MEDIUM"
	TierLow       Tier = "LOW"
)

// Result is the final, immutable record produced for a candidate at the end
// of a run.
type Result struct {
	Key       string   `json:"key"`
	Score     float64  `json:"score"`
	Tier      Tier     `json:"tier"`
	Value     float64  `json:"value"`
	Qualified bool     `json:"qualified"`
	Signals   []Signal `json:"signals"`
	// EliminatedAt is the 1-based index of the stage that eliminated the
	// candidate, 0 when qualified.
	EliminatedAt    int    `json:"eliminated_at,omitempty"`
	EliminatedStage string `json:"eliminated_stage,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Enhanced        bool   `json:"enhanced,omitempty"`
}
