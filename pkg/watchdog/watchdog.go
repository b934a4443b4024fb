// Package watchdog bounds the lifetime of a child process.
package watchdog

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Process is the handle a watchdog kills.
type Process interface {
	Pid() int
	Kill() error
}

// Watchdog kills its target if it is still armed when the timeout elapses.
// It never reports a result itself; the owner inspects Fired after the
// process has exited.
type Watchdog struct {
	log     logrus.FieldLogger
	target  Process
	timeout time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	disarmed bool

	fired    atomic.Bool
	killOnce sync.Once
}

// New creates a watchdog for target. It does nothing until Start is called.
func New(log logrus.FieldLogger, target Process, timeout time.Duration) *Watchdog {
	return &Watchdog{
		log:     log.WithField("component", "watchdog"),
		target:  target,
		timeout: timeout,
	}
}

// Start arms the timer. Calling Start more than once has no effect.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil || w.disarmed {
		return
	}

	w.timer = time.AfterFunc(w.timeout, w.fire)
}

// Disarm stops the timer. The owner calls it once the process has exited.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.disarmed = true

	if w.timer != nil {
		w.timer.Stop()
	}
}

// Fired reports whether the deadline elapsed and the target was killed.
func (w *Watchdog) Fired() bool {
	return w.fired.Load()
}

func (w *Watchdog) fire() {
	w.mu.Lock()
	if w.disarmed {
		w.mu.Unlock()

		return
	}
	w.mu.Unlock()

	w.killOnce.Do(func() {
		w.fired.Store(true)

		log := w.log.WithFields(logrus.Fields{
			"pid":     w.target.Pid(),
			"timeout": w.timeout,
		})
		log.Warn("Child exceeded its deadline, killing it")

		if err := w.target.Kill(); err != nil {
			log.WithError(err).Error("Failed to kill child")
		}
	})
}
