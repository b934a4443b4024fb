// Package stubs holds the catalog of named test operations ("stubs") that
// run scripts are composed of, and the session and suite machinery that
// executes them as individually reported test cases.
package stubs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Namespace is the namespace of the built-in stubs.
const Namespace = "mufat"

// Args are the raw named arguments of a stub invocation, as read from a
// run script.
type Args map[string]any

// Stub is a named, reusable test operation.
type Stub struct {
	Name      string
	Doc       string
	Namespace string
	// TestCase marks a self-contained stub that Discover turns into its
	// own case. Only script test cases set it.
	TestCase bool

	newParams func() any
	run       func(ctx context.Context, s *Session, params any) error
}

// Define builds a stub whose arguments decode into P. defaults provides the
// value of every argument not given.
func Define[P any](name, doc string, defaults P, fn func(ctx context.Context, s *Session, p *P) error) Stub {
	return Stub{
		Name:      name,
		Doc:       doc,
		Namespace: Namespace,
		newParams: func() any {
			p := defaults

			return &p
		},
		run: func(ctx context.Context, s *Session, params any) error {
			return fn(ctx, s, params.(*P))
		},
	}
}

// Params decodes args into the stub's parameter struct.
func (st Stub) Params(args Args) (any, error) {
	params := st.newParams()
	if len(args) == 0 {
		return params, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           params,
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Decode(map[string]any(args)); err != nil {
		return nil, fmt.Errorf("decoding arguments of %s: %w", st.Name, err)
	}

	return params, nil
}

// Call runs the stub with already decoded params.
func (st Stub) Call(ctx context.Context, s *Session, params any) error {
	return st.run(ctx, s, params)
}

// Registry maps stub names to stubs.
type Registry struct {
	mu    sync.RWMutex
	stubs map[string]Stub
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stubs: make(map[string]Stub)}
}

// Register adds a stub. Names must be unique.
func (r *Registry) Register(st Stub) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st.Name == "" || st.run == nil {
		return fmt.Errorf("stub %q is incomplete", st.Name)
	}

	if _, dup := r.stubs[st.Name]; dup {
		return fmt.Errorf("stub %q already registered", st.Name)
	}

	r.stubs[st.Name] = st

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(stubs ...Stub) {
	for _, st := range stubs {
		if err := r.Register(st); err != nil {
			panic(err)
		}
	}
}

// Clone returns a registry holding the same stubs.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewRegistry()
	for name, st := range r.stubs {
		c.stubs[name] = st
	}

	return c
}

// Lookup returns the stub called name.
func (r *Registry) Lookup(name string) (Stub, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.stubs[name]

	return st, ok
}

// Names returns the sorted names of all stubs.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stubs))
	for name := range r.stubs {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Discover wraps every TestCase stub of namespace as its own case, run with
// default arguments and bracketed by Init and Release.
func (r *Registry) Discover(namespace string) []Case {
	var cases []Case

	for _, name := range r.Names() {
		st, _ := r.Lookup(name)
		if !st.TestCase || st.Namespace != namespace || name == "Init" || name == "Release" {
			continue
		}

		params, err := st.Params(nil)
		if err != nil {
			continue
		}

		cases = append(cases, Case{
			ID:       st.Name,
			Source:   st.Namespace,
			stub:     st,
			params:   params,
			bracket:  true,
			registry: r,
		})
	}

	return cases
}

// Succeeded reports whether a native return value signals success: nil,
// true, or a number that is not negative.
func Succeeded(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return x
	case int:
		return x >= 0
	case int32:
		return x >= 0
	case int64:
		return x >= 0
	case float32:
		return x >= 0
	case float64:
		return x >= 0
	default:
		return false
	}
}
