package reference

import (
	"fmt"
	"runtime"
	"sync"
	"weak"
)

// DebugRegistry maps references to dotted descriptions such as
// `this.user.name`. Entries are keyed by weak pointers and dropped once the
// described reference is collected, so diagnostic children allocated on
// every pass do not accumulate.
type DebugRegistry struct {
	mu    sync.Mutex
	descs map[any]string
}

// NewDebugRegistry creates an empty registry.
func NewDebugRegistry() *DebugRegistry {
	return &DebugRegistry{descs: make(map[any]string)}
}

// SetDescription records desc for ref, prefixed by parent's description.
// References of types outside this package are not recorded.
func (r *DebugRegistry) SetDescription(ref Reference, desc string, parent Reference) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if parent != nil {
		if k, ok := weakKey(parent); ok {
			desc = r.descs[k] + "." + desc
		} else {
			desc = "." + desc
		}
	}
	switch ref := ref.(type) {
	case *PropertyReference:
		record(r, ref, desc)
	case *IterationItemReference:
		record(r, ref, desc)
	case *ComponentRoot:
		record(r, ref, desc)
	case *HelperRoot:
		record(r, ref, desc)
	}
}

// Description returns ref's description, or "" if none was recorded.
func (r *DebugRegistry) Description(ref Reference) string {
	k, ok := weakKey(ref)
	if !ok {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.descs[k]
}

// Len returns how many live references are described.
func (r *DebugRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.descs)
}

func (r *DebugRegistry) forget(k any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.descs, k)
}

// record must be called with r.mu held.
func record[T any](r *DebugRegistry, p *T, desc string) {
	k := weak.Make(p)
	if _, ok := r.descs[k]; !ok {
		runtime.AddCleanup(p, r.forget, any(k))
	}
	r.descs[k] = desc
}

func weakKey(ref Reference) (any, bool) {
	switch ref := ref.(type) {
	case *PropertyReference:
		return weak.Make(ref), true
	case *IterationItemReference:
		return weak.Make(ref), true
	case *ComponentRoot:
		return weak.Make(ref), true
	case *HelperRoot:
		return weak.Make(ref), true
	}
	return nil, false
}

func debugString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return "undefined"
	}
	return fmt.Sprint(v)
}
