package stubs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Script is a run script. It either lists steps, which run as one suite
// bracketed by a single Init and Release,
//
//	name: add_image_and_save
//	fail_fast: true
//	steps:
//	  - stub: AddSourceImage
//	    args: {path: 'C:\mufat_repo\media\photo.jpg'}
//	  - stub: AnalyseTillDone
//
// or named test cases, each run as one case between its own Init and
// Release, in name order:
//
//	testcases:
//	  - name: image_make
//	    steps:
//	      - stub: AddSourceImage
//	        args: {path: 'C:\mufat_repo\media\photo.jpg'}
//	      - stub: MakeTillDone
type Script struct {
	Name      string       `yaml:"name"`
	FailFast  *bool        `yaml:"fail_fast,omitempty"`
	Steps     []Step       `yaml:"steps,omitempty"`
	TestCases []ScriptCase `yaml:"testcases,omitempty"`

	Path string `yaml:"-"`
}

// Step is one stub invocation.
type Step struct {
	Stub string `yaml:"stub"`
	Args Args   `yaml:"args,omitempty"`
}

// ScriptCase is a named, self-contained list of steps.
type ScriptCase struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// LoadScript reads a run script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}

	var sc Script
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing script %s: %w", path, err)
	}

	switch {
	case len(sc.Steps) == 0 && len(sc.TestCases) == 0:
		return nil, fmt.Errorf("script %s has no steps", path)
	case len(sc.Steps) > 0 && len(sc.TestCases) > 0:
		return nil, fmt.Errorf("script %s mixes steps and testcases", path)
	}

	for i, tc := range sc.TestCases {
		if tc.Name == "" || len(tc.Steps) == 0 {
			return nil, fmt.Errorf("script %s: test case %d needs a name and steps", path, i+1)
		}
	}

	sc.Path = path

	if sc.Name == "" {
		base := filepath.Base(path)
		sc.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return &sc, nil
}

// Execute collects the script into a suite and runs it. failFast is used
// when the script does not set fail_fast itself.
func (sc *Script) Execute(ctx context.Context, s *Session, failFast bool, summaryDir string) (*Outcome, error) {
	suite := NewSuite(sc.Name, sc.Path)
	suite.FailFast = failFast
	suite.SummaryDir = summaryDir

	if sc.FailFast != nil {
		suite.FailFast = *sc.FailFast
	}

	if len(sc.TestCases) > 0 {
		reg, err := sc.register(s)
		if err != nil {
			return nil, err
		}

		for _, c := range reg.Discover(sc.Name) {
			suite.Add(c)
		}
	} else {
		s.Begin(suite)

		for i, step := range sc.Steps {
			if err := s.Invoke(ctx, step.Stub, step.Args); err != nil {
				s.End()

				return nil, fmt.Errorf("step %d of %s: %w", i+1, sc.Name, err)
			}
		}

		s.End()
	}

	s.Log.WithFields(logrus.Fields{
		"script": sc.Name,
		"cases":  len(suite.Cases()),
	}).Info("Running script")

	return suite.Run(ctx, s)
}

// register adds every test case to a copy of the session registry as a
// test case stub in the script's namespace.
func (sc *Script) register(s *Session) (*Registry, error) {
	reg := s.Registry.Clone()

	for _, tc := range sc.TestCases {
		st, err := sequence(s, sc.Name, tc)
		if err != nil {
			return nil, err
		}

		if err := reg.Register(st); err != nil {
			return nil, fmt.Errorf("test case %s of %s: %w", tc.Name, sc.Name, err)
		}
	}

	return reg, nil
}

// sequence builds a stub running the steps of tc in order until one fails.
func sequence(s *Session, namespace string, tc ScriptCase) (Stub, error) {
	type call struct {
		stub   Stub
		params any
	}

	calls := make([]call, 0, len(tc.Steps))

	for i, step := range tc.Steps {
		st, ok := s.Registry.Lookup(step.Stub)
		if !ok {
			return Stub{}, fmt.Errorf("test case %s step %d: unknown stub %q", tc.Name, i+1, step.Stub)
		}

		params, err := st.Params(step.Args)
		if err != nil {
			return Stub{}, fmt.Errorf("test case %s step %d: %w", tc.Name, i+1, err)
		}

		if s.Prefetcher != nil {
			s.Prefetcher.Prefetch(s.normalizeAll(mediaArgs(step.Args))...)
		}

		calls = append(calls, call{stub: st, params: params})
	}

	return Stub{
		Name:      tc.Name,
		Namespace: namespace,
		TestCase:  true,
		newParams: func() any { return &none{} },
		run: func(ctx context.Context, s *Session, _ any) error {
			for _, c := range calls {
				if err := c.stub.Call(ctx, s, c.params); err != nil {
					return err
				}
			}

			return nil
		},
	}, nil
}
