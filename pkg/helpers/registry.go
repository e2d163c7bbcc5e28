// Package helpers provides the helper registry the interpreter resolves
// HELPER handles against, and the builtin helpers.
package helpers

import (
	"fmt"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/chazu/reflow/pkg/interp"
)

var log = commonlog.GetLogger("reflow.helpers")

// Registry maps helper handles to helper functions. Handles are allocated
// in registration order starting at 0.
type Registry struct {
	names  []string
	fns    []interp.HelperFunc
	byName map[string]int32
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byName: map[string]int32{}}
}

// Builtins returns a registry holding the builtin helpers, in the order of
// BuiltinNames.
func Builtins() *Registry {
	r := New()
	for _, b := range builtins {
		r.MustRegister(b.name, b.fn)
	}
	return r
}

// Register adds fn under name and returns its handle.
func (r *Registry) Register(name string, fn interp.HelperFunc) (int32, error) {
	if name == "" {
		return 0, fmt.Errorf("register helper: empty name")
	}
	if fn == nil {
		return 0, fmt.Errorf("register helper %q: nil function", name)
	}
	if h, ok := r.byName[name]; ok {
		return 0, fmt.Errorf("register helper %q: already registered as %d", name, h)
	}
	h := int32(len(r.fns))
	r.names = append(r.names, name)
	r.fns = append(r.fns, fn)
	r.byName[name] = h
	log.Debugf("registered helper %q as %d", name, h)
	return h, nil
}

// MustRegister is Register for static setup. It panics on error.
func (r *Registry) MustRegister(name string, fn interp.HelperFunc) int32 {
	h, err := r.Register(name, fn)
	if err != nil {
		panic(err)
	}
	return h
}

// Handle returns the handle registered under name.
func (r *Registry) Handle(name string) (int32, bool) {
	h, ok := r.byName[name]
	return h, ok
}

// Name returns the name of handle h, or "" when h is unallocated.
func (r *Registry) Name(h int32) string {
	if h < 0 || int(h) >= len(r.names) {
		return ""
	}
	return r.names[h]
}

// Len is the number of registered helpers.
func (r *Registry) Len() int { return len(r.fns) }

// Names returns the registered names sorted alphabetically.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.names...)
	sort.Strings(names)
	return names
}

// ResolveHelper implements interp.Resolver.
func (r *Registry) ResolveHelper(h int32) (interp.HelperFunc, error) {
	if h < 0 || int(h) >= len(r.fns) {
		return nil, fmt.Errorf("%w: %d", interp.ErrUnknownHelper, h)
	}
	return r.fns[h], nil
}
