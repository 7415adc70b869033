// Package history keeps stateDir/history.jsonl, a log of review attempts.
// Each line is a single JSON object (Record). The active file is bounded;
// older lines are moved into gzip archives (history.jsonl.N.gz).
package history

import (
	"time"

	"codexreview/cli/internal/decide"
)

// Trigger values name what started a review attempt.
const (
	TriggerStop   = "stop"   // stop hook
	TriggerReview = "review" // explicit "codexreview review"
)

// Record is one line in history.jsonl.
type Record struct {
	At         time.Time      `json:"at"`
	Trigger    string         `json:"trigger"`
	Reason     decide.Reason  `json:"reason"`
	Score      int            `json:"score"`
	Metrics    decide.Metrics `json:"metrics"`
	Forced     bool           `json:"forced,omitempty"`
	Agent      []string       `json:"agent,omitempty"`
	ExitCode   int            `json:"exit_code"`
	Success    bool           `json:"success"`
	TimedOut   bool           `json:"timed_out,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"` // start or state failure; empty when the agent ran
}

// Summary aggregates records for status output.
type Summary struct {
	Attempts  int
	Successes int
	Failures  int
	Last      *Record
}

// Summarize counts attempts and outcomes. Records are expected oldest first,
// as returned by ReadRecords.
func Summarize(records []Record) Summary {
	var s Summary
	for i := range records {
		s.Attempts++
		if records[i].Success {
			s.Successes++
		} else {
			s.Failures++
		}
	}
	if len(records) > 0 {
		last := records[len(records)-1]
		s.Last = &last
	}
	return s
}
