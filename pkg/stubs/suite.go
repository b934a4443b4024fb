package stubs

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const summaryTimeFormat = "01-02-2006, 15:04:05"

// Case is one deferred stub invocation.
type Case struct {
	ID     string
	Source string

	stub     Stub
	params   any
	bracket  bool
	registry *Registry
}

// CaseResult records how a case ended.
type CaseResult struct {
	ID       string
	Source   string
	Ran      bool
	Passed   bool
	Duration time.Duration
	Err      error
}

// Outcome summarizes a suite run.
type Outcome struct {
	Passed      int
	Failed      int
	Skipped     int
	SummaryPath string
	Results     []CaseResult
}

// Suite is an ordered collection of cases.
type Suite struct {
	Name   string
	Source string
	// FailFast skips every case after the first failure. The closing
	// Release still runs.
	FailFast bool
	// SummaryDir is where the summary file is written. Empty means the
	// system temp dir.
	SummaryDir string

	cases []Case
}

// NewSuite creates an empty suite.
func NewSuite(name, source string) *Suite {
	return &Suite{Name: name, Source: source}
}

// Add appends a case.
func (su *Suite) Add(c Case) {
	su.cases = append(su.cases, c)
}

// Cases returns the cases in order.
func (su *Suite) Cases() []Case {
	return append([]Case(nil), su.cases...)
}

// bracketed returns the cases with Init prepended and Release appended
// unless they are already there.
func (su *Suite) bracketed(reg *Registry) []Case {
	cases := su.Cases()

	selfBracketed := len(cases) > 0
	for _, c := range cases {
		selfBracketed = selfBracketed && c.bracket
	}

	if selfBracketed {
		return cases
	}

	if len(cases) == 0 || cases[0].ID != "Init" {
		if st, ok := reg.Lookup("Init"); ok {
			params, _ := st.Params(nil)
			cases = append([]Case{{ID: st.Name, Source: st.Namespace, stub: st, params: params}}, cases...)
		}
	}

	if len(cases) == 0 || cases[len(cases)-1].ID != "Release" {
		if st, ok := reg.Lookup("Release"); ok {
			params, _ := st.Params(nil)
			cases = append(cases, Case{ID: st.Name, Source: st.Namespace, stub: st, params: params})
		}
	}

	return cases
}

// Run executes the cases in order, then writes the summary file.
func (su *Suite) Run(ctx context.Context, s *Session) (*Outcome, error) {
	log := s.Log.WithField("suite", su.Name)
	start := s.now()

	cases := su.bracketed(s.Registry)
	results := make([]CaseResult, 0, len(cases))
	abort := false

	for i, c := range cases {
		res := CaseResult{ID: c.ID, Source: c.Source}
		teardown := i == len(cases)-1 && c.ID == "Release"

		if (abort || ctx.Err() != nil) && !teardown {
			results = append(results, res)

			continue
		}

		caseStart := time.Now()
		err := su.runCase(ctx, s, c)
		res.Ran = true
		res.Duration = time.Since(caseStart)
		res.Passed = err == nil
		res.Err = err

		log.WithFields(logrus.Fields{
			"case":     c.ID,
			"passed":   res.Passed,
			"duration": res.Duration.Round(time.Millisecond),
		}).Info("Case finished")

		if err != nil && su.FailFast {
			abort = true
		}

		results = append(results, res)
	}

	out := &Outcome{Results: results}

	for _, r := range results {
		switch {
		case !r.Ran:
			out.Skipped++
		case r.Passed:
			out.Passed++
		default:
			out.Failed++
		}
	}

	path, err := su.writeSummary(start, out)
	if err != nil {
		return out, err
	}

	out.SummaryPath = path

	return out, nil
}

func (su *Suite) runCase(ctx context.Context, s *Session, c Case) error {
	if !c.bracket {
		return s.call(ctx, c.stub, c.params)
	}

	for _, name := range []string{"Init", "", "Release"} {
		st, params := c.stub, c.params

		if name != "" {
			var ok bool
			if st, ok = c.registry.Lookup(name); !ok {
				continue
			}

			params, _ = st.Params(nil)
		}

		if err := s.call(ctx, st, params); err != nil {
			if name == "" {
				if rel, ok := c.registry.Lookup("Release"); ok {
					relParams, _ := rel.Params(nil)
					_ = s.call(ctx, rel, relParams)
				}
			}

			return err
		}
	}

	return nil
}

// writeSummary writes the header counts followed by id, source, 1/0 and
// milliseconds for every case.
func (su *Suite) writeSummary(start time.Time, out *Outcome) (string, error) {
	f, err := os.CreateTemp(su.SummaryDir, "mufat-summary-*.txt")
	if err != nil {
		return "", fmt.Errorf("creating summary file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	fmt.Fprintf(w, "time: %s\n", start.Format(summaryTimeFormat))
	fmt.Fprintf(w, "passes: %d\n", out.Passed)
	fmt.Fprintf(w, "failures: %d\n", out.Failed)
	fmt.Fprintf(w, "untested: %d\n\n", out.Skipped)

	for _, r := range out.Results {
		passed := "0"
		if r.Passed {
			passed = "1"
		}

		ms := strconv.FormatFloat(float64(r.Duration.Microseconds())/1000, 'f', -1, 64)

		fmt.Fprintf(w, "%s\n%s\n%s\n%s\n\n", r.ID, r.Source, passed, ms)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("writing summary file: %w", err)
	}

	return f.Name(), nil
}
