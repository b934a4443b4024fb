package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mufat/mufat/pkg/config"
	"github.com/mufat/mufat/pkg/fsutil"
	"github.com/mufat/mufat/pkg/queue"
	"github.com/mufat/mufat/pkg/result"
	"github.com/mufat/mufat/pkg/suite"
	"github.com/mufat/mufat/pkg/upload"
	"github.com/mufat/mufat/pkg/watchdog"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const logTimeFormat = "20060102150405"

// ResultSource yields the result records of a batch.
type ResultSource interface {
	Get(ctx context.Context, out any, wait time.Duration) error
	Len(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

// Reporter posts a run result to the report endpoint.
type Reporter interface {
	Submit(ctx context.Context, db, batch, host, suite, run string, res *result.ChildResult) error
}

// CommandFunc builds the child process command of one run attempt.
type CommandFunc func(run suite.Run, batch, attempt string) (*exec.Cmd, error)

// SelfCommand re-executes the current binary in child mode, passing on the
// given config files.
func SelfCommand(configPaths []string) CommandFunc {
	return func(run suite.Run, batch, attempt string) (*exec.Cmd, error) {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating executable: %w", err)
		}

		args := []string{"run", run.Name, "--child", "--key", batch, "--attempt", attempt}
		for _, path := range configPaths {
			args = append(args, "--config", path)
		}

		return exec.Command(exe, args...), nil
	}
}

// Deps are the collaborators of an Orchestrator. Uploader and Reporter are
// optional.
type Deps struct {
	// Results opens the result channel of a batch.
	Results  func(batch string) ResultSource
	Command  CommandFunc
	Uploader upload.Uploader
	Reporter Reporter
	// Echo receives the prefixed child output when echoing is enabled.
	// Defaults to os.Stdout.
	Echo io.Writer
	// Progress, if set, is called on every state change of a run.
	Progress func(RunSummary)
}

// BatchArgs select what a batch runs.
type BatchArgs struct {
	// Targets are suite names or literal run scripts.
	Targets []string
	// Key overrides the generated batch key.
	Key string
	// Debug keeps logs local and skips reporting.
	Debug bool
}

// RunSummary is the end state of one run of a batch.
type RunSummary struct {
	Suite  string
	Run    string
	State  State
	Result *result.ChildResult
}

// BatchSummary is the end state of a batch.
type BatchSummary struct {
	Key string
	// SVNRev is the latest runtime revision any run reported.
	SVNRev int
	Runs   []RunSummary
}

// Counts totals the results of every run.
func (b *BatchSummary) Counts() (pass, fail, untested, crashed int) {
	for _, r := range b.Runs {
		pass += r.Result.Pass
		fail += r.Result.Fail
		untested += r.Result.Untested

		if r.Result.Crash {
			crashed++
		}
	}

	return pass, fail, untested, crashed
}

// Orchestrator runs every run of a batch in its own child process, one at a
// time, and collects, publishes and reports the results.
type Orchestrator struct {
	log  logrus.FieldLogger
	cfg  *config.Config
	deps Deps
	now  func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(log logrus.FieldLogger, cfg *config.Config, deps Deps) *Orchestrator {
	if deps.Echo == nil {
		deps.Echo = os.Stdout
	}

	return &Orchestrator{
		log:  log.WithField("component", "orchestrator"),
		cfg:  cfg,
		deps: deps,
		now:  time.Now,
	}
}

// RunBatch runs every run the targets expand to. A crashed or timed out run
// does not stop the batch. Upload and report failures are collected and
// returned together once every run has finished.
func (o *Orchestrator) RunBatch(ctx context.Context, args BatchArgs) (*BatchSummary, error) {
	if o.deps.Results == nil || o.deps.Command == nil {
		return nil, errors.New("orchestrator needs a result source and a command builder")
	}

	groups, err := o.expand(args.Targets)
	if err != nil {
		return nil, err
	}

	batch := args.Key
	if batch == "" {
		batch = o.now().Format(upload.BatchKeyFormat)
	}

	sub, err := upload.SubKey(batch)
	if err != nil {
		return nil, err
	}

	owner, err := fsutil.ParseOwner(o.cfg.Global.ResultsOwner)
	if err != nil {
		return nil, fmt.Errorf("parsing results owner: %w", err)
	}

	if err := o.resetDirs(owner); err != nil {
		return nil, err
	}

	publish := !args.Debug && o.deps.Uploader != nil
	if publish {
		if err := o.deps.Uploader.Preflight(ctx); err != nil {
			return nil, fmt.Errorf("upload preflight: %w", err)
		}
	}

	o.log.WithFields(logrus.Fields{
		"batch":  batch,
		"suites": len(groups),
		"debug":  args.Debug,
	}).Info("Starting batch")

	b := &batchRun{
		Orchestrator: o,
		batch:        batch,
		sub:          sub,
		debug:        args.Debug,
		publish:      publish,
		owner:        owner,
		results:      o.deps.Results(batch),
	}

	if err := b.drain(ctx); err != nil {
		return nil, err
	}

	summary := &BatchSummary{Key: batch}

	var errs []error

	for _, g := range groups {
		for _, run := range g.Runs {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)

				return summary, errors.Join(errs...)
			}

			rs, err := b.run(ctx, run)
			summary.Runs = append(summary.Runs, rs)

			if rs.Result.SVNRev != 0 {
				summary.SVNRev = rs.Result.SVNRev
			}

			if err != nil {
				o.log.WithError(err).WithField("run", run.Name).Error("Run finished with errors")
				errs = append(errs, fmt.Errorf("%s: %w", run.Name, err))
			}
		}
	}

	return summary, errors.Join(errs...)
}

func (o *Orchestrator) expand(targets []string) ([]suite.Group, error) {
	if len(targets) == 0 {
		return nil, errors.New("no suites or runs given")
	}

	scan := suite.Scan{
		Root:    o.cfg.Runner.ScriptRoot,
		Ext:     o.cfg.Runner.ScriptExt,
		Ignored: o.cfg.Runner.IgnoredNames,
	}

	path := o.cfg.Runner.SuiteFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(scan.Root, path)
	}

	scan.SuiteFile = path

	file, err := suite.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return suite.Expand(file, targets, scan)
}

// drain drops records left on the result channel by an earlier batch that
// reused the key.
func (b *batchRun) drain(ctx context.Context) error {
	n, err := b.results.Len(ctx)
	if err != nil {
		return fmt.Errorf("inspecting result channel: %w", err)
	}

	if n == 0 {
		return nil
	}

	b.log.WithFields(logrus.Fields{"batch": b.batch, "records": n}).Warn("Dropping leftover results")

	if err := b.results.Clear(ctx); err != nil {
		return fmt.Errorf("clearing result channel: %w", err)
	}

	return nil
}

// transition moves rs to s and notifies the progress observer.
func (b *batchRun) transition(log logrus.FieldLogger, rs *RunSummary, s State) {
	rs.State = s

	if s.Terminal() {
		log.WithField("state", s).Debug("Run settled")
	} else {
		log.WithField("state", s).Debug("Run state changed")
	}

	if b.deps.Progress != nil {
		b.deps.Progress(*rs)
	}
}

// resetDirs creates the debug dir and clears the runtime cache dir.
func (o *Orchestrator) resetDirs(owner *fsutil.OwnerConfig) error {
	if err := fsutil.MkdirAll(o.cfg.Global.DebugDir, 0o755, owner); err != nil {
		return fmt.Errorf("creating debug dir: %w", err)
	}

	if dir := o.cfg.Global.CacheDir; dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clearing cache dir: %w", err)
		}
	}

	return nil
}

// batchRun carries the per-batch state of RunBatch.
type batchRun struct {
	*Orchestrator

	batch   string
	sub     string
	debug   bool
	publish bool
	owner   *fsutil.OwnerConfig
	results ResultSource
}

func (b *batchRun) run(ctx context.Context, run suite.Run) (RunSummary, error) {
	attempt := uuid.NewString()
	short := run.ShortName()
	start := b.now()

	log := b.log.WithFields(logrus.Fields{
		"suite":   run.Suite,
		"run":     run.Name,
		"attempt": attempt,
	})

	rs := RunSummary{Suite: run.Suite, Run: run.Name}
	logPath := filepath.Join(b.cfg.Global.DebugDir, fmt.Sprintf("(%s)%s_Log.txt", start.Format(logTimeFormat), short))

	log.Info("Starting child process")
	b.transition(log, &rs, StateSpawned)

	timedOut, exitCode, err := b.supervise(run, attempt, short, logPath, func() {
		b.transition(log, &rs, StateRunning)
	})
	if err != nil {
		log.WithError(err).Error("Child process failed to run")
	}

	res := b.collect(ctx, log, attempt, timedOut, exitCode)

	if data, rerr := os.ReadFile(logPath); rerr == nil {
		res.ApplyLog(string(data))
	}

	res.Time = result.NewElapsed(b.now().Sub(start))

	rs.Result = res
	b.transition(log, &rs, finalState(res))

	log.WithFields(logrus.Fields{
		"state":     rs.State,
		"exit_code": exitCode,
		"pass":      res.Pass,
		"fail":      res.Fail,
		"untested":  res.Untested,
		"asserts":   res.Asserts,
	}).Info("Run finished")

	if b.debug {
		res.Log = logPath

		return rs, err
	}

	var errs []error
	if err != nil {
		errs = append(errs, err)
	}

	if perr := b.publishArtifacts(ctx, res, logPath, short, start); perr != nil {
		errs = append(errs, perr)
	}

	if b.deps.Reporter != nil {
		if rerr := b.deps.Reporter.Submit(ctx, b.cfg.Report.DB, b.batch, b.cfg.Global.Host,
			run.Suite, run.Name, res); rerr != nil {
			errs = append(errs, fmt.Errorf("reporting: %w", rerr))
		}
	}

	return rs, errors.Join(errs...)
}

// supervise spawns the child, streams its output to logPath and waits for
// it under the watchdog. started is called once the child is running.
func (b *batchRun) supervise(run suite.Run, attempt, short, logPath string, started func()) (bool, int, error) {
	cmd, err := b.deps.Command(run, b.batch, attempt)
	if err != nil {
		return false, -1, err
	}

	logFile, err := fsutil.Create(logPath, b.owner)
	if err != nil {
		return false, -1, fmt.Errorf("creating log file: %w", err)
	}
	defer logFile.Close()

	var out io.Writer = logFile

	var echo *prefixedWriter
	if b.cfg.Runner.EchoOutput {
		echo = &prefixedWriter{prefix: fmt.Sprintf("[%s] ", short), writer: b.deps.Echo}
		out = io.MultiWriter(logFile, echo)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return false, -1, fmt.Errorf("creating output pipe: %w", err)
	}

	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()

		return false, -1, fmt.Errorf("starting child: %w", err)
	}

	// The child holds its own copy of the write end.
	_ = pw.Close()

	started()

	wd := watchdog.New(b.log, watchdog.ProcessTree(cmd.Process), b.cfg.Runner.ChildTimeout)
	wd.Start()

	streamErr := copyLines(out, pr)
	_ = pr.Close()

	waitErr := cmd.Wait()
	wd.Disarm()

	if echo != nil {
		_ = echo.Flush()
	}

	if streamErr != nil {
		return wd.Fired(), cmd.ProcessState.ExitCode(), fmt.Errorf("streaming child output: %w", streamErr)
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return wd.Fired(), -1, fmt.Errorf("waiting for child: %w", waitErr)
	}

	return wd.Fired(), cmd.ProcessState.ExitCode(), nil
}

// collect takes the attempt's record from the result channel, discarding
// records of earlier attempts. Without one it synthesizes a crash result
// carrying the child's exit code.
func (b *batchRun) collect(ctx context.Context, log logrus.FieldLogger, attempt string, timedOut bool, exitCode int) *result.ChildResult {
	deadline := time.Now().Add(b.cfg.Runner.QueueWait)

	for {
		var res result.ChildResult

		err := b.results.Get(ctx, &res, max(time.Until(deadline), 0))
		if err != nil {
			if !errors.Is(err, queue.ErrEmpty) {
				log.WithError(err).Warn("Failed to read result")
			} else {
				log.Warn("Child delivered no result")
			}

			res := result.Synthesize(attempt, timedOut)
			res.ReturnCode = exitCode

			return res
		}

		if res.AttemptID != "" && res.AttemptID != attempt {
			log.WithField("stale_attempt", res.AttemptID).Warn("Discarding stale result")

			continue
		}

		res.AttemptID = attempt
		res.Normalize()

		if timedOut {
			res.MarkTimedOut()
		}

		return &res
	}
}

// publishArtifacts uploads the log and summary concurrently, replaces their
// paths with public URLs and removes the local copies.
func (b *batchRun) publishArtifacts(ctx context.Context, res *result.ChildResult, logPath, short string, start time.Time) error {
	if !b.publish {
		res.Log = logPath

		return nil
	}

	var logURL, summaryURL string

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		url, err := b.deps.Uploader.UploadFile(gctx, logPath, upload.LogKey(b.cfg.Global.Host, b.sub, start, short))
		if err != nil {
			return fmt.Errorf("uploading log: %w", err)
		}

		logURL = url

		return nil
	})

	summary := res.Summary
	if summary != "" {
		g.Go(func() error {
			url, err := b.deps.Uploader.UploadFile(gctx, summary, upload.SummaryKey(b.cfg.Global.Host, b.sub, short))
			if err != nil {
				return fmt.Errorf("uploading summary: %w", err)
			}

			summaryURL = url

			return nil
		})
	}

	err := g.Wait()

	res.Log = logURL
	res.Summary = summaryURL

	for _, path := range []string{logPath, summary} {
		if path == "" {
			continue
		}

		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			b.log.WithError(rerr).WithField("path", path).Warn("Failed to remove local artifact")
		}
	}

	return err
}
