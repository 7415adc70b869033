// Package decide turns accumulated pending work into a run/no-run review
// decision. Plan documents and risk files are hard triggers; otherwise a
// bucketed score over event, file, module, and line counts must reach
// Threshold. Decide is pure and never fails.
package decide

import "codexreview/cli/internal/state"

// Threshold is the minimum gray-zone score that runs a review.
const Threshold = 4

// MaxScore is the largest possible score (2+2+1+2).
const MaxScore = 7

// Reason explains a Decision.
type Reason string

const (
	ReasonPlanDocs       Reason = "plan_docs"
	ReasonRiskFiles      Reason = "risk_files"
	ReasonScoreThreshold Reason = "score_threshold_met"
	ReasonScoreTooLow    Reason = "score_too_low"
)

// Metrics are the raw counts the score was computed from.
type Metrics struct {
	Events          int `json:"events"`
	Files           int `json:"files"`
	Modules         int `json:"modules"`
	LinesTouchedEst int `json:"lines_touched_est"`
}

// Decision is the outcome of Decide. Score is always computed, including on
// hard triggers, so callers can report it.
type Decision struct {
	Run     bool    `json:"run"`
	Reason  Reason  `json:"reason"`
	Score   int     `json:"score"`
	Metrics Metrics `json:"metrics"`
}

// Breakdown holds the per-signal bucket scores.
type Breakdown struct {
	Events  int `json:"events"`
	Files   int `json:"files"`
	Modules int `json:"modules"`
	Lines   int `json:"lines"`
}

// Total sums the buckets.
func (b Breakdown) Total() int {
	return b.Events + b.Files + b.Modules + b.Lines
}

// Decide evaluates p. plan_docs wins over risk_files, and either wins over
// the score regardless of its value.
func Decide(p state.PendingWork) Decision {
	d := Decision{
		Score: Score(p).Total(),
		Metrics: Metrics{
			Events:          p.Events,
			Files:           len(p.Files),
			Modules:         len(p.Modules),
			LinesTouchedEst: p.LinesTouchedEst,
		},
	}
	switch {
	case p.Flags.PlanDocs():
		d.Run, d.Reason = true, ReasonPlanDocs
	case p.Flags.RiskFiles():
		d.Run, d.Reason = true, ReasonRiskFiles
	case d.Score >= Threshold:
		d.Run, d.Reason = true, ReasonScoreThreshold
	default:
		d.Run, d.Reason = false, ReasonScoreTooLow
	}
	return d
}

// Score buckets each signal. Lines uses the git line delta when present,
// otherwise the estimate.
func Score(p state.PendingWork) Breakdown {
	return Breakdown{
		Events:  EventsBucket(p.Events),
		Files:   FilesBucket(len(p.Files)),
		Modules: ModulesBucket(len(p.Modules)),
		Lines:   LinesBucket(p.Lines()),
	}
}

// EventsBucket: 0-3 -> 0, 4-7 -> 1, 8+ -> 2.
func EventsBucket(n int) int {
	switch {
	case n >= 8:
		return 2
	case n >= 4:
		return 1
	default:
		return 0
	}
}

// FilesBucket: 0-1 -> 0, 2-3 -> 1, 4+ -> 2.
func FilesBucket(n int) int {
	switch {
	case n >= 4:
		return 2
	case n >= 2:
		return 1
	default:
		return 0
	}
}

// ModulesBucket: 0-1 -> 0, 2+ -> 1.
func ModulesBucket(n int) int {
	if n >= 2 {
		return 1
	}
	return 0
}

// LinesBucket: <30 -> 0, 30-99 -> 1, 100+ -> 2.
func LinesBucket(n int) int {
	switch {
	case n >= 100:
		return 2
	case n >= 30:
		return 1
	default:
		return 0
	}
}
