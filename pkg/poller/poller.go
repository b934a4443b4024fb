// Package poller drives long-running native operations to completion by
// polling their progress counter.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mufat/mufat/pkg/failure"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultInterval is the delay between two progress fetches.
	DefaultInterval = time.Second

	// DefaultMaxIterations bounds the number of fetches.
	DefaultMaxIterations = 3600

	// DefaultMinDelta is the minimum progress growth that resets the
	// stall window.
	DefaultMinDelta = 0.01
)

// FetchFunc returns the progress of an operation in [0, 1]. A negative value
// signals a native-layer error.
type FetchFunc func() (float64, error)

// Options configures a poll loop.
type Options struct {
	// Op names the operation in errors and logs.
	Op            string
	Interval      time.Duration
	MaxIterations int
	// StallWindow fails the loop when progress has not grown by MinDelta
	// within the window. Zero disables stall detection.
	StallWindow time.Duration
	MinDelta    float64
	// Stop requests a cooperative exit.
	Stop *Flag
	// OnStop is invoked at most once when the loop ends without
	// completing, e.g. to stop the native operation.
	OnStop func()
	Logger logrus.FieldLogger
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}

	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}

	if o.MinDelta <= 0 {
		o.MinDelta = DefaultMinDelta
	}

	if o.Op == "" {
		o.Op = "poll"
	}

	if o.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.Logger = l
	}
}

// Poll calls fetch until it reports completion. It returns nil on completion
// or after a cooperative stop, and a *failure.Error of kind Native, Timeout,
// Stall or Cancelled otherwise. OnStop runs on every path except completion.
func Poll(ctx context.Context, fetch FetchFunc, opts Options) error {
	opts.applyDefaults()

	log := opts.Logger.WithField("op", opts.Op)

	var stopOnce sync.Once

	cleanup := func() {
		if opts.OnStop == nil {
			return
		}

		stopOnce.Do(opts.OnStop)
	}

	var stopCh <-chan struct{}
	if opts.Stop != nil {
		stopCh = opts.Stop.Done()
	}

	var (
		base        = -1.0
		lastAdvance = time.Now()
	)

	for i := 0; i < opts.MaxIterations; i++ {
		if opts.Stop != nil && opts.Stop.IsSet() {
			log.Debug("Stop requested, leaving poll loop")
			cleanup()

			return nil
		}

		if err := ctx.Err(); err != nil {
			cleanup()

			return failure.Wrap(failure.KindCancelled, opts.Op, err)
		}

		progress, err := fetch()
		if (err != nil || progress < 0) && opts.Stop != nil && opts.Stop.IsSet() {
			// The operation was stopped under us.
			log.Debug("Stop requested during fetch, leaving poll loop")
			cleanup()

			return nil
		}

		if err != nil {
			cleanup()

			return failure.Wrap(failure.KindNative, opts.Op, err)
		}

		if progress < 0 {
			cleanup()

			return failure.New(failure.KindNative, opts.Op,
				fmt.Sprintf("progress returned %v", progress))
		}

		if progress >= 1.0 {
			log.WithField("iterations", i+1).Debug("Operation completed")

			return nil
		}

		now := time.Now()

		switch {
		case base < 0 || progress-base >= opts.MinDelta:
			base = progress
			lastAdvance = now
		case opts.StallWindow > 0 && now.Sub(lastAdvance) >= opts.StallWindow:
			cleanup()

			return failure.New(failure.KindStall, opts.Op,
				fmt.Sprintf("progress stuck at %.2f for %s", progress, now.Sub(lastAdvance).Round(time.Millisecond)))
		}

		log.WithField("progress", progress).Trace("Polled progress")

		if i == opts.MaxIterations-1 {
			break
		}

		timer := time.NewTimer(opts.Interval)
		select {
		case <-timer.C:
		case <-stopCh:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
		}
	}

	cleanup()

	return failure.New(failure.KindTimeout, opts.Op,
		fmt.Sprintf("not complete after %d polls", opts.MaxIterations))
}

// Start runs Poll on a new goroutine. The returned channel receives the
// result and is then closed.
func Start(ctx context.Context, fetch FetchFunc, opts Options) <-chan error {
	done := make(chan error, 1)

	go func() {
		defer close(done)

		done <- Poll(ctx, fetch, opts)
	}()

	return done
}
