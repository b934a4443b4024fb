package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mufat/mufat/pkg/config"
	_ "github.com/mufat/mufat/pkg/native/sim"
	"github.com/mufat/mufat/pkg/queue"
	"github.com/mufat/mufat/pkg/report"
	"github.com/mufat/mufat/pkg/runner"
	"github.com/mufat/mufat/pkg/upload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	childMode bool
	debugMode bool
	batchKey  string
	attemptID string
)

var runCmd = &cobra.Command{
	Use:   "run [suites-or-runs...]",
	Short: "Run suites or individual run scripts",
	Long: `Run every run of the given suites, and any run scripts given directly,
each in its own child process. With --child a single run is executed in
the current process and its result is queued for the parent.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTests,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVarP(&childMode, "child", "c", false,
		"Execute a single run in this process (used by the parent)")
	runCmd.Flags().BoolVarP(&debugMode, "debug", "d", false,
		"Keep logs local and do not report results")
	runCmd.Flags().StringVar(&batchKey, "key", "",
		"Batch key shared by every run of the batch (default: current time)")
	runCmd.Flags().StringVar(&attemptID, "attempt", "",
		"Attempt id of this run (set by the parent)")
}

func runTests(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	client, err := queue.NewClient(cfg.Queue.URL, cfg.Queue.Cluster)
	if err != nil {
		return fmt.Errorf("creating queue client: %w", err)
	}
	defer client.Close()

	if err := queue.Ping(ctx, client); err != nil {
		return err
	}

	if childMode {
		return runChild(ctx, cfg, client, args)
	}

	return runParent(ctx, cfg, client, args)
}

func resultQueue(cfg *config.Config, client redis.UniversalClient, batch string) *queue.Queue {
	return queue.New(client, queue.Key(cfg.Queue.KeyPrefix, batch, cfg.Global.Host),
		queue.WithTTL(cfg.Queue.TTL),
		queue.WithLogger(log),
	)
}

func runChild(ctx context.Context, cfg *config.Config, client redis.UniversalClient, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("child mode runs exactly one run, got %d", len(args))
	}

	if batchKey == "" {
		return errors.New("child mode requires --key")
	}

	return runner.RunChild(ctx, runner.ChildOptions{
		Log:       log,
		Config:    cfg,
		Results:   resultQueue(cfg, client, batchKey),
		Run:       args[0],
		Batch:     batchKey,
		AttemptID: attemptID,
	})
}

func runParent(ctx context.Context, cfg *config.Config, client redis.UniversalClient, args []string) error {
	deps := runner.Deps{
		Results: func(batch string) runner.ResultSource {
			return resultQueue(cfg, client, batch)
		},
		Command: runner.SelfCommand(cfgFiles),
	}

	if cfg.Upload.S3 != nil && cfg.Upload.S3.Enabled {
		uploader, err := upload.NewS3Uploader(log, cfg.Upload.S3)
		if err != nil {
			return fmt.Errorf("creating uploader: %w", err)
		}

		deps.Uploader = uploader
	}

	if cfg.Report.Enabled {
		deps.Reporter = report.NewClient(log, cfg.Report.ServerURL, cfg.Report.Timeout)
	}

	orch := runner.NewOrchestrator(log, cfg, deps)

	summary, err := orch.RunBatch(ctx, runner.BatchArgs{
		Targets: args,
		Key:     batchKey,
		Debug:   debugMode,
	})
	if summary != nil {
		pass, fail, untested, crashed := summary.Counts()

		log.WithFields(logrus.Fields{
			"batch":    summary.Key,
			"runs":     len(summary.Runs),
			"pass":     pass,
			"fail":     fail,
			"untested": untested,
			"crashed":  crashed,
			"svn_rev":  summary.SVNRev,
		}).Info("Batch finished")
	}

	return err
}
