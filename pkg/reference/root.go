package reference

import "fmt"

// rootBase is shared by every root reference.
type rootBase struct {
	env        *Env
	children   childCache
	debugReady bool
	debugName  string
}

// SetDebugName overrides the default `this` label. It only has an effect
// before the first Get.
func (b *rootBase) SetDebugName(name string) {
	b.debugName = name
}

func (b *rootBase) child(self Reference, key string) Reference {
	if b.env.Mode == Diagnostic {
		// The root is created before whatever it wraps is fully set up, so
		// its description is registered lazily on first access.
		if !b.debugReady {
			b.debugReady = true
			name := b.debugName
			if name == "" {
				name = "this"
			}
			b.env.describe(self, name, nil)
		}
	}
	return b.children.lookup(b.env, self, key)
}

// ComponentRoot wraps a constant root value, typically a component instance.
type ComponentRoot struct {
	rootBase
	inner any
}

// NewComponentRoot wraps inner.
func NewComponentRoot(env *Env, inner any) *ComponentRoot {
	return &ComponentRoot{rootBase: rootBase{env: env}, inner: inner}
}

// Value returns the wrapped value.
func (r *ComponentRoot) Value() any {
	return r.inner
}

// Get returns the property child under key.
func (r *ComponentRoot) Get(key string) Reference {
	return r.child(r, key)
}

// HelperRoot is the root reference for a helper's result. Its value is a
// memoized computation: the helper body only re-runs after something it
// consumed was dirtied.
type HelperRoot struct {
	rootBase
	value func() any
}

// NewHelperRoot memoizes compute as the value of a new root. name is used
// for diagnostics only.
func NewHelperRoot(env *Env, compute func() any, name string) *HelperRoot {
	h := &HelperRoot{rootBase: rootBase{env: env}}

	if env.Mode == Diagnostic {
		env.describe(h, fmt.Sprintf("(result of a `%s` helper)", name), nil)
		h.debugReady = true
	}

	h.value = env.Tracker.Memoize(compute, env.memoLabel(h))
	return h
}

// Value returns the helper's (possibly cached) result.
func (h *HelperRoot) Value() any {
	return h.value()
}

// Get returns the property child under key.
func (h *HelperRoot) Get(key string) Reference {
	return h.child(h, key)
}
