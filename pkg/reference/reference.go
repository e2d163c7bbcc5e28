// Package reference implements the template reference graph.
//
// Every value a template touches is a Reference: a lazily evaluated handle
// whose Value is memoized against the tags it consumed. There are three basic
// kinds:
//
//   - roots (ComponentRoot, HelperRoot) wrap a single top level value, such as
//     the `this` of a component or the result of a helper;
//   - PropertyReference chains off a parent by key, one per path segment of
//     `{{this.some.prop}}`;
//   - IterationItemReference is one item of an `each` list. It is the only
//     reference whose value can change in place, via Update.
//
// The graph's deduplication policy is an injected Mode. In Production a
// parent hands out one child per key; in Diagnostic every Get allocates so
// each child can carry its own debug description. Both modes compute the same
// values.
package reference

import (
	"sync"

	"github.com/chazu/reflow/pkg/data"
	"github.com/chazu/reflow/pkg/validator"
)

// Reference is a lazily evaluated, memoizable handle to a template value.
type Reference interface {
	Value() any
	Get(key string) Reference
}

// Updatable references accept two-way writes.
type Updatable interface {
	UpdateReferencedValue(value any)
}

// PathAccessor reads and writes paths against opaque host values.
type PathAccessor interface {
	GetPath(obj any, path string) any
	SetPath(obj any, path string, value any) any
}

// DebugContext records human-readable provenance for references. It is
// diagnostic only and must never affect computed values.
type DebugContext interface {
	SetDescription(ref Reference, desc string, parent Reference)
	Description(ref Reference) string
}

// Mode selects the child deduplication policy.
type Mode int

const (
	// Production caches one child per key on each parent.
	Production Mode = iota

	// Diagnostic allocates a fresh child per Get and records descriptions.
	Diagnostic
)

// String returns the configuration spelling of the mode.
func (m Mode) String() string {
	if m == Diagnostic {
		return "diagnostic"
	}
	return "production"
}

// Env bundles the collaborators every reference needs.
type Env struct {
	Paths   PathAccessor
	Debug   DebugContext
	Tracker validator.Tracker
	Mode    Mode
}

// NewEnv returns an Env using data.Paths for path access. Diagnostic
// environments get a fresh DebugRegistry.
func NewEnv(tracker validator.Tracker, mode Mode) *Env {
	env := &Env{
		Paths:   data.Paths{},
		Tracker: tracker,
		Mode:    mode,
	}
	if mode == Diagnostic {
		env.Debug = NewDebugRegistry()
	}
	return env
}

func (e *Env) diagnostic() bool {
	return e.Mode == Diagnostic && e.Debug != nil
}

func (e *Env) describe(ref Reference, desc string, parent Reference) {
	if e.diagnostic() {
		e.Debug.SetDescription(ref, desc, parent)
	}
}

// Describe returns ref's debug description, or "" outside diagnostic mode.
func (e *Env) Describe(ref Reference) string {
	if !e.diagnostic() {
		return ""
	}
	return e.Debug.Description(ref)
}

func (e *Env) memoLabel(ref Reference) string {
	return e.Describe(ref)
}

// childCache holds a parent's property children in production mode.
type childCache struct {
	mu       sync.Mutex
	children map[string]*PropertyReference
}

// lookup returns the child of parent under key, honoring the env's mode.
func (c *childCache) lookup(env *Env, parent Reference, key string) Reference {
	if env.Mode == Diagnostic {
		return NewPropertyReference(env, parent, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ref, ok := c.children[key]; ok {
		return ref
	}
	if c.children == nil {
		c.children = make(map[string]*PropertyReference)
	}
	ref := NewPropertyReference(env, parent, key)
	c.children[key] = ref
	return ref
}
