package arguments

import (
	"strconv"

	"github.com/chazu/reflow/pkg/reference"
	"github.com/chazu/reflow/pkg/scope"
)

var (
	emptyPositional = &CapturedPositional{}
	emptyNamed      = &CapturedNamed{}

	// EmptyArgs is the shared captured record of a call with no arguments.
	EmptyArgs = &Captured{Positional: emptyPositional, Named: emptyNamed}
)

// Captured is a call's arguments copied off the stack. It outlives the
// frame that built it.
type Captured struct {
	Positional *CapturedPositional
	Named      *CapturedNamed
	Length     int
}

// CapturedValue is the plain-value view of a captured record.
type CapturedValue struct {
	Positional []any          `json:"positional" yaml:"positional"`
	Named      map[string]any `json:"named" yaml:"named"`
}

// Value reads every argument reference.
func (c *Captured) Value() CapturedValue {
	return CapturedValue{
		Positional: c.Positional.Value(),
		Named:      c.Named.Value(),
	}
}

// NewCaptured builds a record directly from references, for hosts that call
// helpers outside the interpreter.
func NewCaptured(positional []reference.Reference, names []string, named []reference.Reference) *Captured {
	c := &Captured{Positional: emptyPositional, Named: emptyNamed}
	if len(positional) > 0 {
		c.Positional = &CapturedPositional{refs: positional}
	}
	if len(names) > 0 {
		c.Named = newCapturedNamed(names, named)
	}
	c.Length = c.Positional.Len() + c.Named.Len()
	return c
}

// CapturedPositional is an immutable list of positional references.
type CapturedPositional struct {
	refs []reference.Reference
}

// Len is the number of references.
func (p *CapturedPositional) Len() int { return len(p.refs) }

// References returns the captured references. Callers must not modify it.
func (p *CapturedPositional) References() []reference.Reference { return p.refs }

// At returns reference i, or the undefined sentinel when out of range.
func (p *CapturedPositional) At(i int) reference.Reference {
	if i < 0 || i >= len(p.refs) {
		return reference.UndefinedReference
	}
	return p.refs[i]
}

// Get answers `length` and decimal indices, making the list usable as a
// reference parent.
func (p *CapturedPositional) Get(name string) reference.Reference {
	if name == "length" {
		return reference.NewPrimitive(len(p.refs))
	}
	idx, err := strconv.Atoi(name)
	if err != nil {
		return reference.UndefinedReference
	}
	return p.At(idx)
}

// Value reads every reference.
func (p *CapturedPositional) Value() []any {
	out := make([]any, len(p.refs))
	for i, ref := range p.refs {
		out[i] = ref.Value()
	}
	return out
}

// CapturedNamed is an immutable list of names with parallel references.
type CapturedNamed struct {
	names []string
	refs  []reference.Reference
	m     map[string]reference.Reference
}

func newCapturedNamed(names []string, refs []reference.Reference) *CapturedNamed {
	return &CapturedNamed{names: names, refs: refs}
}

// Len is the number of names.
func (n *CapturedNamed) Len() int { return len(n.names) }

// Names returns the synthetic names. Callers must not modify it.
func (n *CapturedNamed) Names() []string { return n.names }

// References returns the references parallel to Names.
func (n *CapturedNamed) References() []reference.Reference { return n.refs }

// Map returns a name to reference mapping, built on first use.
func (n *CapturedNamed) Map() map[string]reference.Reference {
	if n.m == nil {
		m := make(map[string]reference.Reference, len(n.names))
		for i, name := range n.names {
			m[name] = n.refs[i]
		}
		n.m = m
	}
	return n.m
}

// Has reports whether name was passed.
func (n *CapturedNamed) Has(name string) bool {
	return indexOf(n.names, name) >= 0
}

// Get returns the reference passed under name, or the undefined sentinel.
func (n *CapturedNamed) Get(name string) reference.Reference {
	idx := indexOf(n.names, name)
	if idx < 0 {
		return reference.UndefinedReference
	}
	return n.refs[idx]
}

// Value reads every reference into a map.
func (n *CapturedNamed) Value() map[string]any {
	out := make(map[string]any, len(n.names))
	for i, name := range n.names {
		out[name] = n.refs[i].Value()
	}
	return out
}

// CapturedBlocks is a copy of a block window.
type CapturedBlocks struct {
	names  []string
	values []any
}

// Len is the number of blocks.
func (b *CapturedBlocks) Len() int { return len(b.names) }

// Has reports whether a block name was passed.
func (b *CapturedBlocks) Has(name string) bool {
	return indexOf(b.names, name) >= 0
}

// Get returns the block passed under name, or nil.
func (b *CapturedBlocks) Get(name string) *scope.Block {
	idx := indexOf(b.names, name)
	if idx < 0 {
		return nil
	}
	return blockAt(func(i int) any { return b.values[idx*3+i] })
}
