package watchdog

import (
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	kills atomic.Int32
}

func (f *fakeProcess) Pid() int { return 4242 }

func (f *fakeProcess) Kill() error {
	f.kills.Add(1)

	return nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestWatchdog_ProcessExitsBeforeTimeout(t *testing.T) {
	proc := &fakeProcess{}
	w := New(testLogger(), proc, 50*time.Millisecond)

	w.Start()
	time.Sleep(5 * time.Millisecond)
	w.Disarm()

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(0), proc.kills.Load())
	assert.False(t, w.Fired())
}

func TestWatchdog_ProcessOutlivesTimeout(t *testing.T) {
	proc := &fakeProcess{}
	w := New(testLogger(), proc, 10*time.Millisecond)

	w.Start()
	w.Start()

	require.Eventually(t, w.Fired, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	w.Disarm()

	assert.Equal(t, int32(1), proc.kills.Load())
}

func TestWatchdog_DisarmBeforeStart(t *testing.T) {
	proc := &fakeProcess{}
	w := New(testLogger(), proc, time.Millisecond)

	w.Disarm()
	w.Start()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(0), proc.kills.Load())
}

func TestProcessTree_KillsRealProcess(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep binary not available")
	}

	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())

	tree := ProcessTree(cmd.Process)
	assert.Equal(t, cmd.Process.Pid, tree.Pid())

	w := New(testLogger(), tree, 10*time.Millisecond)
	w.Start()

	err := cmd.Wait()
	w.Disarm()

	require.Error(t, err)
	assert.True(t, w.Fired())

	// Killing an exited process is a no-op.
	assert.NoError(t, tree.Kill())
}
