package stubs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mufat/mufat/pkg/failure"
	"github.com/mufat/mufat/pkg/native"
	"github.com/mufat/mufat/pkg/poller"
)

const (
	defaultResolution = 1000
	defaultPolls      = 1800
	threadedMakePolls = 600
	defaultWidth      = 320
	defaultHeight     = 240
)

type analyseParams struct {
	// Resolution is the poll interval in milliseconds.
	Resolution int `mapstructure:"resolution"`
	// Timeout is the number of polls before giving up.
	Timeout int `mapstructure:"timeout"`
}

type makeParams struct {
	Mode     native.MakeFlags `mapstructure:"mode"`
	Duration float64          `mapstructure:"duration"`
}

type saveParams struct {
	Filename   string `mapstructure:"filename"`
	Resolution int    `mapstructure:"resolution"`
	Timeout    int    `mapstructure:"timeout"`
	Width      int    `mapstructure:"width"`
	Height     int    `mapstructure:"height"`
}

type previewParams struct {
	Timeline native.TimelineType `mapstructure:"timeline"`
	Width    int                 `mapstructure:"width"`
	Height   int                 `mapstructure:"height"`
}

type sourcePreviewParams struct {
	Path   string `mapstructure:"path"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

// pollOptions builds the poll options of op. resolution is in milliseconds;
// zero uses the session interval.
func (s *Session) pollOptions(op string, resolution, polls int) poller.Options {
	interval := s.Interval
	if resolution > 0 {
		interval = time.Duration(resolution) * time.Millisecond
	}

	return poller.Options{
		Op:            op,
		Interval:      interval,
		MaxIterations: polls,
		StallWindow:   s.StallWindow,
		Logger:        s.Log,
	}
}

// progress wraps a native progress getter so a negative value or an error
// carries the runtime's last error.
func (s *Session) progress(op string, fn func() (float64, error)) poller.FetchFunc {
	return func() (float64, error) {
		v, err := fn()
		if err != nil {
			return v, fmt.Errorf("%s: %w: %s", op, err, s.Core.LastError())
		}

		if v < 0 {
			return v, fmt.Errorf("%s failed: %s", op, s.Core.LastError())
		}

		return v, nil
	}
}

func (s *Session) logStopErr(op string, err error) {
	if err != nil {
		s.Log.WithError(err).WithField("op", op).Warn("Stopping native operation failed")
	}
}

func analyseTillDone(ctx context.Context, s *Session, p *analyseParams) error {
	const op = "AnalyseTillDone"

	ret, err := s.Core.StartAnalysis()
	if err := s.check(op+": StartAnalysis", ret, err); err != nil {
		return err
	}

	opts := s.pollOptions(op, p.Resolution, p.Timeout)
	opts.OnStop = func() { s.logStopErr("StopAnalysis", s.Core.StopAnalysis()) }

	return poller.Poll(ctx, s.progress("AnalysisProgress", s.Core.AnalysisProgress), opts)
}

func makeTillDone(_ context.Context, s *Session, p *makeParams) error {
	ret, err := s.Core.MakeTimeline(p.Mode, p.Duration)

	return s.check("MakeTillDone: MakeTimeline", ret, err)
}

func threadedMake(ctx context.Context, s *Session, op string, mode native.MakeFlags, duration float64) error {
	mode |= native.MakeThreaded

	ret, err := s.Core.MakeTimeline(mode, duration)
	if err := s.check(op+": MakeTimeline", ret, err); err != nil {
		return err
	}

	opts := s.pollOptions(op, 0, threadedMakePolls)
	opts.OnStop = func() { s.logStopErr("CancelMake", s.Core.CancelMake()) }

	return <-poller.Start(ctx, s.progress("MakeProgress", s.Core.MakeProgress), opts)
}

func threadedMakeTillDone(ctx context.Context, s *Session, p *makeParams) error {
	return threadedMake(ctx, s, "ThreadedMakeTillDone", p.Mode, p.Duration)
}

func threadedMakeForSaveTillDone(ctx context.Context, s *Session, p *makeParams) error {
	return threadedMake(ctx, s, "ThreadedMakeForSaveTillDone", p.Mode|native.MakeForSaving, p.Duration)
}

// outputPath expands the [CurrentStyle] and [ConfigName] placeholders of
// filename and normalizes the result.
func (s *Session) outputPath(op, filename string) (string, error) {
	if strings.Contains(filename, "[CurrentStyle]") {
		style, err := s.Core.ActiveStyle()
		if err := s.check(op+": ActiveStyle", nil, err); err != nil {
			return "", err
		}

		filename = strings.ReplaceAll(filename, "[CurrentStyle]", style)
	}

	filename = strings.ReplaceAll(filename, "[ConfigName]", s.RunName)

	return s.Path(filename), nil
}

func saveTillDone(ctx context.Context, s *Session, p *saveParams) error {
	const op = "SaveTillDone"

	path, err := s.outputPath(op, p.Filename)
	if err != nil {
		return err
	}

	ret, err := s.Core.StartRenderToFile(path, nil, 0, 0)
	if err := s.check(op+": StartRenderToFile", ret, err); err != nil {
		return err
	}

	opts := s.pollOptions(op, p.Resolution, p.Timeout)
	opts.OnStop = func() { s.logStopErr("StopRenderToFile", s.Core.StopRenderToFile()) }

	return poller.Poll(ctx, s.progress("RenderToFileProgress", s.Core.RenderToFileProgress), opts)
}

func saveTillDoneWithPreview(ctx context.Context, s *Session, p *saveParams) error {
	const op = "SaveTillDoneWithPreview"

	path, err := s.outputPath(op, p.Filename)
	if err != nil {
		return err
	}

	return s.runInWindow(ctx, op, p.Width, p.Height, s.pollOptions(op, p.Resolution, p.Timeout), windowRender{
		setup: func(win native.Window) (int, error) {
			return s.Core.StartRenderToFile(path, win, p.Width, p.Height)
		},
		progress: s.progress("RenderToFileProgress", s.Core.RenderToFileProgress),
		stop: func() {
			s.logStopErr("StopRenderToFile", s.Core.StopRenderToFile())
		},
	})
}

func previewTillDone(ctx context.Context, s *Session, p *previewParams) error {
	const op = "PreviewTillDone"

	tl := p.Timeline

	return s.runInWindow(ctx, op, p.Width, p.Height, s.pollOptions(op, 0, poller.DefaultMaxIterations), windowRender{
		setup: func(win native.Window) (int, error) {
			return s.Core.SetupRenderToWindow(tl, win, p.Width, p.Height)
		},
		start: func() error { return s.Core.StartRenderToWindow(tl) },
		progress: s.progress("RenderToWindowProgress", func() (float64, error) {
			return s.Core.RenderToWindowProgress(tl)
		}),
		stop: func() {
			s.logStopErr("StopRenderToWindow", s.Core.StopRenderToWindow(tl))
			s.logStopErr("ShutdownRenderToWindow", s.Core.ShutdownRenderToWindow(tl))
		},
	})
}

func addSourceVideoWithPreviewTillDone(ctx context.Context, s *Session, p *sourcePreviewParams) error {
	const op = "AddSourceVideoWithPreviewTillDone"

	src, err := s.createSource(op, p.Path, native.SourceVideo, native.LoadVerifySupport)
	if err != nil {
		return err
	}

	if err := s.addSource(op, src, native.SourceVideo, native.LoadVerifySupport); err != nil {
		return err
	}

	preview, ok := src.(native.Previewable)
	if err := assertf(ok, op, "source does not support preview"); err != nil {
		return err
	}

	return s.runInWindow(ctx, op, p.Width, p.Height, s.pollOptions(op, 0, poller.DefaultMaxIterations), windowRender{
		setup: func(win native.Window) (int, error) {
			return preview.SetupRender(win, p.Width, p.Height)
		},
		start:    preview.StartRender,
		progress: s.progress("RenderProgress", preview.RenderProgress),
		stop: func() {
			s.logStopErr("StopRender", preview.StopRender())
			s.logStopErr("ShutdownRender", preview.ShutdownRender())
		},
	})
}

// windowRender is a render into a window: setup binds it to the window,
// start (optional) kicks it off, and stop ends it.
type windowRender struct {
	setup    func(win native.Window) (int, error)
	start    func() error
	progress poller.FetchFunc
	stop     func()
}

// runInWindow opens a window, starts r and polls it on a goroutine while the
// window's event loop runs in the foreground. The poll closes the window
// when it ends; closing the window stops the poll and the render.
func (s *Session) runInWindow(ctx context.Context, op string, width, height int, opts poller.Options, r windowRender) error {
	if err := assertf(width > 0 && height > 0, op, "invalid window size %dx%d", width, height); err != nil {
		return err
	}

	win, err := s.Display.NewWindow(op, width, height)
	if err != nil {
		return failure.Wrap(failure.KindNative, op, err)
	}

	ret, err := r.setup(win)
	if err := s.check(op+": setup", ret, err); err != nil {
		win.Close()

		return err
	}

	if r.start != nil {
		if err := r.start(); err != nil {
			win.Close()

			return s.check(op+": start", nil, err)
		}
	}

	flag := poller.NewFlag()

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			flag.Set()
			r.stop()
		})
	}

	win.OnClose(stop)

	opts.Stop = flag
	opts.OnStop = win.Close

	polled := poller.Start(ctx, r.progress, opts)
	result := make(chan error, 1)

	go func() {
		err := <-polled
		win.Close()
		result <- err
	}()

	runErr := win.Run()

	stop()

	pollErr := <-result
	if pollErr != nil {
		return pollErr
	}

	if runErr != nil {
		return failure.Wrap(failure.KindNative, op, runErr)
	}

	return nil
}
