// Package data implements the host side of path access: reading and writing
// dotted paths against application values, and a tracked dictionary whose
// keys participate in tag-based invalidation.
package data

import (
	"sort"

	"github.com/chazu/reflow/pkg/validator"
)

// Getter is implemented by host values that resolve their own keys.
type Getter interface {
	GetKey(key string) any
}

// Setter is implemented by host values that accept writes to their keys.
type Setter interface {
	SetKey(key string, value any)
}

// Object is a dictionary whose keys each carry a tag. Reading a key consumes
// its tag; writing a key dirties it.
type Object struct {
	tracker validator.Tracker
	values  map[string]any
	tags    map[string]*validator.DirtyableTag
}

// NewObject creates an empty tracked object.
func NewObject(tracker validator.Tracker) *Object {
	return &Object{
		tracker: tracker,
		values:  make(map[string]any),
		tags:    make(map[string]*validator.DirtyableTag),
	}
}

// ObjectFrom creates a tracked object holding a shallow copy of m.
func ObjectFrom(tracker validator.Tracker, m map[string]any) *Object {
	o := NewObject(tracker)
	for k, v := range m {
		o.values[k] = v
	}
	return o
}

func (o *Object) tagFor(key string) *validator.DirtyableTag {
	tag, ok := o.tags[key]
	if !ok {
		tag = o.tracker.CreateTag()
		o.tags[key] = tag
	}
	return tag
}

// GetKey returns the value under key, consuming the key's tag. Absent keys
// are tracked too, so a later Set invalidates readers that saw nothing.
func (o *Object) GetKey(key string) any {
	o.tracker.ConsumeTag(o.tagFor(key))
	return o.values[key]
}

// SetKey stores value under key and dirties the key's tag.
func (o *Object) SetKey(key string, value any) {
	o.values[key] = value
	o.tracker.DirtyTag(o.tagFor(key))
}

// Delete removes key, dirtying its tag if it was present.
func (o *Object) Delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	o.tracker.DirtyTag(o.tagFor(key))
}

// Keys returns the keys in sorted order without consuming any tag.
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.values))
	for k := range o.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys.
func (o *Object) Len() int {
	return len(o.values)
}

// Snapshot returns an untracked plain copy, recursing into nested objects.
func (o *Object) Snapshot() map[string]any {
	out := make(map[string]any, len(o.values))
	for k, v := range o.values {
		out[k] = plain(v)
	}
	return out
}

func plain(v any) any {
	switch v := v.(type) {
	case *Object:
		return v.Snapshot()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plain(item)
		}
		return out
	default:
		return v
	}
}
