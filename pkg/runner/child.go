package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mufat/mufat/pkg/config"
	"github.com/mufat/mufat/pkg/native"
	"github.com/mufat/mufat/pkg/result"
	"github.com/mufat/mufat/pkg/stubs"
	"github.com/mufat/mufat/pkg/suite"
	"github.com/sirupsen/logrus"
)

// ResultSink receives the result record of a run.
type ResultSink interface {
	Put(ctx context.Context, v any) error
}

// ChildOptions configure the execution of one run inside a child process.
type ChildOptions struct {
	Log     logrus.FieldLogger
	Config  *config.Config
	Results ResultSink

	// Run is the script name relative to the script root.
	Run       string
	Batch     string
	AttemptID string

	// Output receives assertion failure lines. Defaults to os.Stdout, which
	// the parent captures.
	Output   io.Writer
	Registry *stubs.Registry
}

// RunChild executes one run script and queues its result. Any error means
// no result was queued; the parent then records the attempt as crashed.
func RunChild(ctx context.Context, opts ChildOptions) error {
	if opts.Config == nil || opts.Results == nil {
		return errors.New("child runner needs a config and a result sink")
	}

	cfg := opts.Config
	run := suite.Run{Name: opts.Run, Path: filepath.Join(cfg.Runner.ScriptRoot, filepath.FromSlash(opts.Run))}

	log := opts.Log.WithFields(logrus.Fields{
		"component": "child",
		"run":       run.Name,
		"attempt":   opts.AttemptID,
	})

	if dir := cfg.Runner.UserDataDir; dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing user data dir: %w", err)
		}
	}

	core, display, err := native.Open(cfg.Runner.Runtime, native.Options{
		UserDataDir: cfg.Runner.UserDataDir,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("opening runtime: %w", err)
	}

	defer func() {
		if err := core.Close(); err != nil {
			log.WithError(err).Warn("Failed to close runtime")
		}
	}()

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	sessionOpts := []stubs.SessionOption{
		stubs.WithRunName(run.ShortName()),
		stubs.WithOutput(output),
		stubs.WithNormalizer(stubs.NewNormalizer(mappings(cfg.Runner.PathMappings))),
	}

	if opts.Registry != nil {
		sessionOpts = append(sessionOpts, stubs.WithRegistry(opts.Registry))
	}

	if media := cfg.Runner.Media; media.LocalRoot != "" && media.RemoteRoot != "" {
		sessionOpts = append(sessionOpts,
			stubs.WithPrefetcher(stubs.NewPrefetcher(log, media.LocalRoot, media.RemoteRoot)))
	}

	session := stubs.NewSession(log, core, display, sessionOpts...)

	script, err := stubs.LoadScript(run.Path)
	if err != nil {
		return err
	}

	outcome, err := script.Execute(ctx, session, cfg.Runner.FailFast, cfg.Global.DebugDir)
	if err != nil {
		return fmt.Errorf("executing %s: %w", run.Name, err)
	}

	res := &result.ChildResult{
		Pass:       outcome.Passed,
		Fail:       outcome.Failed,
		Untested:   outcome.Skipped,
		Outcome:    result.OutcomeCompleted,
		ReturnCode: 0,
		Summary:    outcome.SummaryPath,
		SVNRev:     core.RuntimeBuild(),
		Shutdown:   true,
		AttemptID:  opts.AttemptID,
	}
	res.Normalize()

	if err := opts.Results.Put(ctx, res); err != nil {
		return fmt.Errorf("queueing result: %w", err)
	}

	log.WithFields(logrus.Fields{
		"pass":     res.Pass,
		"fail":     res.Fail,
		"untested": res.Untested,
	}).Info("Run finished")

	return nil
}

func mappings(in []config.PathMapping) []stubs.Mapping {
	out := make([]stubs.Mapping, 0, len(in))
	for _, m := range in {
		out = append(out, stubs.Mapping{From: m.From, To: m.To})
	}

	return out
}
