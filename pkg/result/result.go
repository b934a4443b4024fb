// Package result defines the record a child process delivers for one run
// attempt and the fallback record the parent synthesizes when none arrives.
package result

import (
	"math"
	"time"
)

// Outcome is the canonical end state of a run attempt.
type Outcome string

const (
	// OutcomeCompleted means the child delivered its own result.
	OutcomeCompleted Outcome = "completed"
	// OutcomeCrashed means the child exited without delivering a result.
	OutcomeCrashed Outcome = "crashed"
	// OutcomeTimedOut means the watchdog killed the child.
	OutcomeTimedOut Outcome = "timed_out"
)

// Elapsed is a run duration as (hours, minutes, seconds).
type Elapsed [3]float64

// NewElapsed splits d into hours, minutes and seconds.
func NewElapsed(d time.Duration) Elapsed {
	total := d.Seconds()
	minutes, seconds := math.Floor(total/60), math.Mod(total, 60)
	hours, minutes := math.Floor(minutes/60), math.Mod(minutes, 60)

	return Elapsed{hours, minutes, seconds}
}

// ChildResult is the outcome of exactly one run attempt.
//
// Crash and Timeout are independent: Crash means no result was delivered,
// Timeout means the watchdog fired. A killed child that never reported has
// both set; Outcome is then OutcomeTimedOut.
type ChildResult struct {
	Pass            int                        `json:"pass"`
	Fail            int                        `json:"fail"`
	Untested        int                        `json:"untested"`
	Crash           bool                       `json:"crash"`
	Timeout         bool                       `json:"timeout"`
	Outcome         Outcome                    `json:"outcome"`
	ReturnCode      int                        `json:"return_code"`
	Log             string                     `json:"log,omitempty"`
	Summary         string                     `json:"summary"`
	RetainedSamples []string                   `json:"retained_samples"`
	SVNRev          int                        `json:"svn_rev,omitempty"`
	Shutdown        bool                       `json:"shutdown"`
	AttemptID       string                     `json:"attempt_id,omitempty"`
	Asserts         int                        `json:"assert"`
	UniqueAsserts   map[string]AssertionRecord `json:"unique_asserts"`
	Time            Elapsed                    `json:"time"`
}

// Synthesize returns the placeholder result for an attempt whose child
// delivered nothing. timedOut records whether the watchdog fired.
func Synthesize(attemptID string, timedOut bool) *ChildResult {
	r := &ChildResult{
		Crash:           true,
		Timeout:         timedOut,
		Outcome:         OutcomeCrashed,
		ReturnCode:      -1,
		RetainedSamples: []string{},
		AttemptID:       attemptID,
		UniqueAsserts:   map[string]AssertionRecord{},
	}

	if timedOut {
		r.Outcome = OutcomeTimedOut
	}

	return r
}

// Normalize fills the fields a child may leave empty.
func (r *ChildResult) Normalize() {
	if r.Outcome == "" {
		r.Outcome = OutcomeCompleted
	}

	if r.RetainedSamples == nil {
		r.RetainedSamples = []string{}
	}

	if r.UniqueAsserts == nil {
		r.UniqueAsserts = map[string]AssertionRecord{}
	}
}

// MarkTimedOut records that the watchdog fired for an attempt that still
// delivered a result.
func (r *ChildResult) MarkTimedOut() {
	r.Timeout = true
	r.Outcome = OutcomeTimedOut
}

// ApplyLog parses assertion failures from the captured console output and
// stores them on the result.
func (r *ChildResult) ApplyLog(data string) {
	r.Asserts, r.UniqueAsserts = ParseAsserts(data)
}
