package reference

import (
	"github.com/chazu/reflow/pkg/data"
	"github.com/chazu/reflow/pkg/validator"
)

// PropertyReference is a key accessed on a parent reference.
type PropertyReference struct {
	env      *Env
	parent   Reference
	key      string
	children childCache
	value    func() any
}

// NewPropertyReference creates the child of parent under key. Callers
// normally go through parent.Get so production dedup applies.
func NewPropertyReference(env *Env, parent Reference, key string) *PropertyReference {
	p := &PropertyReference{env: env, parent: parent, key: key}
	env.describe(p, key, parent)
	p.value = env.Tracker.Memoize(p.compute, env.memoLabel(p))
	return p
}

func (p *PropertyReference) compute() any {
	parentValue := p.parent.Value()
	if !data.IsDict(parentValue) {
		return nil
	}
	return p.env.Paths.GetPath(parentValue, p.key)
}

// Value returns the memoized property value, or nil when the parent is
// missing or not dereferenceable.
func (p *PropertyReference) Value() any {
	return p.value()
}

// Get returns the property child under key.
func (p *PropertyReference) Get(key string) Reference {
	return p.children.lookup(p.env, p, key)
}

// Key returns the property key.
func (p *PropertyReference) Key() string {
	return p.key
}

// Parent returns the parent reference.
func (p *PropertyReference) Parent() Reference {
	return p.parent
}

// UpdateReferencedValue writes value through the same path against the
// parent's current value. Writes are always live.
func (p *PropertyReference) UpdateReferencedValue(value any) {
	p.env.Paths.SetPath(p.parent.Value(), p.key, value)
}

// IterationItemReference is one item of an iterated list. It owns a private
// tag; Update dirties it and swaps the item in place.
type IterationItemReference struct {
	env      *Env
	parent   Reference
	key      any
	item     any
	tag      *validator.DirtyableTag
	children childCache
}

// NewIterationItemReference creates an item reference under the iterable
// parent.
func NewIterationItemReference(env *Env, parent Reference, item, key any) *IterationItemReference {
	r := &IterationItemReference{
		env:    env,
		parent: parent,
		key:    key,
		item:   item,
		tag:    env.Tracker.CreateTag(),
	}
	env.describe(r, debugString(key), parent)
	return r
}

// Value consumes the item's tag and returns the current item.
func (r *IterationItemReference) Value() any {
	r.env.Tracker.ConsumeTag(r.tag)
	return r.item
}

// Update replaces the item. It must only be called by the list owning this
// item's identity.
func (r *IterationItemReference) Update(value any) {
	r.env.Tracker.DirtyTag(r.tag)
	r.item = value
}

// Get returns the property child under key.
func (r *IterationItemReference) Get(key string) Reference {
	return r.children.lookup(r.env, r, key)
}

// Key returns the stable item key.
func (r *IterationItemReference) Key() any {
	return r.key
}

// Tag returns the item's private tag.
func (r *IterationItemReference) Tag() validator.Tag {
	return r.tag
}
