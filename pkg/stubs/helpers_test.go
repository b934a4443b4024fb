package stubs

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mufat/mufat/pkg/native/sim"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

type harness struct {
	session *Session
	core    *sim.Core
	display *sim.Display
	out     *bytes.Buffer
}

func newHarness(t *testing.T, cfg sim.Config, opts ...SessionOption) *harness {
	t.Helper()

	dir := t.TempDir()
	cfg.UserDataDir = filepath.Join(dir, "userdata")
	cfg.CommonDataDir = filepath.Join(dir, "common")

	core := sim.New(cfg)
	display := sim.NewDisplay()
	out := &bytes.Buffer{}

	base := []SessionOption{
		WithOutput(out),
		WithPolling(time.Millisecond, time.Second),
		WithRunName("smoke_run"),
	}

	s := NewSession(testLogger(), core, display, append(base, opts...)...)
	s.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC) }

	return &harness{session: s, core: core, display: display, out: out}
}

func mediaFile(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))

	return path
}

func countCalls(calls []string, name string) int {
	n := 0

	for _, c := range calls {
		if c == name {
			n++
		}
	}

	return n
}
