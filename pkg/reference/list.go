package reference

import (
	"fmt"
	"reflect"
)

// Special key names understood by ItemList.
const (
	KeyIndex    = "@index"
	KeyIdentity = "@identity"
)

// KeyFunc derives an item's identity key.
type KeyFunc func(item any, index int) any

// KeyFor returns the key function for a key spec: @index, @identity, or a
// property path resolved against each item.
func KeyFor(paths PathAccessor, spec string) KeyFunc {
	switch spec {
	case KeyIndex:
		return func(_ any, i int) any { return i }
	case KeyIdentity, "":
		return func(item any, _ int) any { return identity(item) }
	}
	return func(item any, _ int) any { return identity(paths.GetPath(item, spec)) }
}

// identity turns v into something usable as a map key. Comparability is
// checked on the dynamic value: a struct whose interface field holds a
// slice has a comparable type but cannot be hashed.
func identity(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Comparable() {
		return v
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Pointer, reflect.Chan:
		return fmt.Sprintf("%T@%x", v, rv.Pointer())
	}
	return fmt.Sprintf("%#v", v)
}

type itemKey struct {
	key any
	nth int
}

// ItemList maintains the iteration items of an iterable reference across
// passes. Sync re-keys the list against the iterable's current value: an
// item whose key survives keeps its reference identity and is updated in
// place, new keys get new items, and vanished keys are dropped.
type ItemList struct {
	env    *Env
	iter   Reference
	keyFor KeyFunc
	items  []*IterationItemReference
	byKey  map[itemKey]*IterationItemReference
}

// NewItemList creates an empty list over iterable, keyed by keySpec.
func NewItemList(env *Env, iterable Reference, keySpec string) *ItemList {
	return &ItemList{
		env:    env,
		iter:   iterable,
		keyFor: KeyFor(env.Paths, keySpec),
		byKey:  make(map[itemKey]*IterationItemReference),
	}
}

// Items returns the items from the last Sync.
func (l *ItemList) Items() []*IterationItemReference {
	return l.items
}

// Sync reconciles the items against the iterable's current value and
// returns them in iteration order.
func (l *ItemList) Sync() []*IterationItemReference {
	values := iterate(l.iter.Value())

	next := make([]*IterationItemReference, 0, len(values))
	nextByKey := make(map[itemKey]*IterationItemReference, len(values))
	seen := make(map[any]int, len(values))

	for i, v := range values {
		k := l.keyFor(v, i)
		ik := itemKey{key: k, nth: seen[k]}
		seen[k]++

		item, ok := l.byKey[ik]
		switch {
		case !ok:
			item = NewIterationItemReference(l.env, l.iter, v, k)
		case !sameValue(item.item, v):
			item.Update(v)
		}

		next = append(next, item)
		nextByKey[ik] = item
	}

	l.items = next
	l.byKey = nextByKey
	return next
}

// iterate flattens an iterable host value. Non-iterables yield nothing.
func iterate(v any) []any {
	switch v := v.(type) {
	case nil:
		return nil
	case []any:
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return nil
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	if reflect.ValueOf(a).Comparable() {
		return a == b
	}
	return identity(a) == identity(b)
}
