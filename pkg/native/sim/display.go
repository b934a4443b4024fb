package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mufat/mufat/pkg/native"
)

// Display creates headless windows.
type Display struct {
	// AutoClose, when set, closes every window this long after Run starts.
	AutoClose time.Duration

	next atomic.Uintptr
}

var _ native.Display = (*Display)(nil)

// NewDisplay returns a headless display.
func NewDisplay() *Display {
	return &Display{}
}

func (d *Display) NewWindow(title string, width, height int) (native.Window, error) {
	return &Window{
		handle:    d.next.Add(1),
		Title:     title,
		Width:     width,
		Height:    height,
		autoClose: d.AutoClose,
		closed:    make(chan struct{}),
	}, nil
}

// Window is a headless window whose event loop blocks until Close.
type Window struct {
	Title  string
	Width  int
	Height int

	handle    uintptr
	autoClose time.Duration

	mu      sync.Mutex
	onClose []func()
	once    sync.Once
	closed  chan struct{}
}

var _ native.Window = (*Window)(nil)

func (w *Window) Handle() uintptr {
	return w.handle
}

func (w *Window) Run() error {
	if w.autoClose > 0 {
		timer := time.AfterFunc(w.autoClose, w.Close)
		defer timer.Stop()
	}

	<-w.closed

	return nil
}

func (w *Window) Close() {
	w.once.Do(func() {
		close(w.closed)

		w.mu.Lock()
		callbacks := append([]func(){}, w.onClose...)
		w.mu.Unlock()

		for _, fn := range callbacks {
			fn()
		}
	})
}

func (w *Window) OnClose(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.onClose = append(w.onClose, fn)
}
