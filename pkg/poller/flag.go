package poller

import "sync"

// Flag is a one-shot event that can be set from any goroutine. A poll loop
// checks it every iteration and exits cooperatively once it is set.
type Flag struct {
	once  sync.Once
	ch    chan struct{}
	setup sync.Once
}

// NewFlag returns an unset flag.
func NewFlag() *Flag {
	f := &Flag{}
	f.lazyInit()

	return f
}

func (f *Flag) lazyInit() {
	f.setup.Do(func() {
		f.ch = make(chan struct{})
	})
}

// Set sets the flag. Calling Set more than once is a no-op.
func (f *Flag) Set() {
	f.lazyInit()
	f.once.Do(func() {
		close(f.ch)
	})
}

// IsSet reports whether the flag has been set.
func (f *Flag) IsSet() bool {
	select {
	case <-f.Done():
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the flag is set.
func (f *Flag) Done() <-chan struct{} {
	f.lazyInit()

	return f.ch
}
