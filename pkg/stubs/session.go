package stubs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mufat/mufat/pkg/failure"
	"github.com/mufat/mufat/pkg/native"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultStallWindow fails a long operation whose progress has not
	// moved for this long.
	DefaultStallWindow = 300 * time.Second

	assertTimeFormat = "2006-01-02 15:04:05.000"
)

// Session is the context every stub runs in: the runtime, the window
// display, media handling and the optional collecting suite.
type Session struct {
	Core       native.Core
	Display    native.Display
	Registry   *Registry
	Prefetcher *Prefetcher
	Normalizer *Normalizer
	// RunName replaces [ConfigName] in output paths.
	RunName string
	// Interval is the poll interval of operations without a resolution
	// argument.
	Interval    time.Duration
	StallWindow time.Duration
	// Output receives the assertion failure lines the parent parses.
	Output io.Writer
	Log    logrus.FieldLogger

	mu    sync.Mutex
	suite *Suite
	now   func() time.Time
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRegistry sets the stub registry. The default is Default().
func WithRegistry(r *Registry) SessionOption {
	return func(s *Session) { s.Registry = r }
}

// WithPrefetcher sets the media prefetcher.
func WithPrefetcher(p *Prefetcher) SessionOption {
	return func(s *Session) { s.Prefetcher = p }
}

// WithNormalizer sets the path normalizer.
func WithNormalizer(n *Normalizer) SessionOption {
	return func(s *Session) { s.Normalizer = n }
}

// WithRunName sets the run name.
func WithRunName(name string) SessionOption {
	return func(s *Session) { s.RunName = name }
}

// WithOutput sets where assertion failures are written.
func WithOutput(w io.Writer) SessionOption {
	return func(s *Session) { s.Output = w }
}

// WithPolling sets the default poll interval and the stall window.
func WithPolling(interval, stallWindow time.Duration) SessionOption {
	return func(s *Session) {
		s.Interval = interval
		s.StallWindow = stallWindow
	}
}

// NewSession creates a session over an opened runtime.
func NewSession(log logrus.FieldLogger, core native.Core, display native.Display, opts ...SessionOption) *Session {
	s := &Session{
		Core:        core,
		Display:     display,
		Interval:    time.Second,
		StallWindow: DefaultStallWindow,
		Output:      os.Stdout,
		Log:         log.WithField("component", "stubs"),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.Registry == nil {
		s.Registry = Default()
	}

	if s.Normalizer == nil {
		s.Normalizer = NewNormalizer(nil)
	}

	return s
}

// Begin makes suite the collecting suite: later invocations are deferred
// into it instead of running.
func (s *Session) Begin(suite *Suite) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.suite = suite
}

// End stops collecting and returns the suite that was active.
func (s *Session) End() *Suite {
	s.mu.Lock()
	defer s.mu.Unlock()

	suite := s.suite
	s.suite = nil

	return suite
}

func (s *Session) activeSuite() *Suite {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.suite
}

// Invoke calls the named stub. With no active suite the stub runs now;
// otherwise its media arguments are prefetched and a deferred case is
// appended to the suite.
func (s *Session) Invoke(ctx context.Context, name string, args Args) error {
	st, ok := s.Registry.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown stub %q", name)
	}

	params, err := st.Params(args)
	if err != nil {
		return err
	}

	suite := s.activeSuite()
	if suite == nil {
		return s.call(ctx, st, params)
	}

	if s.Prefetcher != nil {
		s.Prefetcher.Prefetch(s.normalizeAll(mediaArgs(args))...)
	}

	s.Log.WithField("stub", name).Debug("Deferring stub into suite")

	suite.Add(Case{
		ID:       st.Name,
		Source:   suite.Source,
		stub:     st,
		params:   params,
		registry: s.Registry,
	})

	return nil
}

func (s *Session) call(ctx context.Context, st Stub, params any) error {
	err := st.Call(ctx, s, params)
	if err != nil {
		s.reportFailure(st.Name, err)
	}

	return err
}

// reportFailure writes "<timestamp> <stub> ASSERT FAILED: <message>".
func (s *Session) reportFailure(stub string, err error) {
	msg := strings.Join(strings.Fields(err.Error()), " ")

	if s.Output != nil {
		fmt.Fprintf(s.Output, "%s %s ASSERT FAILED: %s\n", s.now().Format(assertTimeFormat), stub, msg)
	}

	s.Log.WithFields(logrus.Fields{
		"stub": stub,
		"kind": failure.KindOf(err).String(),
	}).WithError(err).Debug("Stub failed")
}

// Path normalizes a script path for the local machine.
func (s *Session) Path(p string) string {
	return s.Normalizer.Normalize(p)
}

func (s *Session) normalizeAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, s.Path(p))
	}

	return out
}

// check turns a native return value into an error. ret is judged by
// Succeeded; the runtime's last error is appended to the message.
func (s *Session) check(op string, ret any, err error) error {
	if err != nil {
		return failure.Wrap(failure.KindNative, op, fmt.Errorf("%w: %s", err, s.Core.LastError()))
	}

	if !Succeeded(ret) {
		return failure.New(failure.KindNative, op, "failed: "+s.Core.LastError())
	}

	return nil
}

// assertf fails with an assertion error unless cond holds.
func assertf(cond bool, op, format string, args ...any) error {
	if cond {
		return nil
	}

	return failure.New(failure.KindAssertion, op, fmt.Sprintf(format, args...))
}

// mediaArgs collects every string found in args, including nested lists.
func mediaArgs(args Args) []string {
	var out []string

	var walk func(v any)
	walk = func(v any) {
		switch x := v.(type) {
		case string:
			out = append(out, x)
		case []any:
			for _, e := range x {
				walk(e)
			}
		case []string:
			out = append(out, x...)
		case map[string]any:
			for _, e := range x {
				walk(e)
			}
		}
	}

	for _, v := range args {
		walk(v)
	}

	return out
}
