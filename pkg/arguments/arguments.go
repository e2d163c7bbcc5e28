// Package arguments implements the calling convention: argument windows laid
// over the evaluation stack for the duration of one call.
//
// The stack region for a call is, from the bottom:
//
//	| ... | blocks      | positional  | named |
//	| ... | b0    b1    | p0 p1 p2 p3 | n0 n1 |
//	index | 4/5/6 7/8/9 | 10 11 12 13 | 14 15 |
//	        ^             ^             ^  ^
//	      bbase         pbase       nbase  sp
//
// Each block occupies three slots: symbol table, captured scope, body.
// Windows are base+length views; Capture is the only copy-out.
package arguments

import (
	"fmt"
	"strings"

	"github.com/chazu/reflow/pkg/bytecode"
	"github.com/chazu/reflow/pkg/check"
	"github.com/chazu/reflow/pkg/reference"
	"github.com/chazu/reflow/pkg/scope"
	"github.com/chazu/reflow/pkg/stack"
)

// Arguments is the set of windows for one call. An interpreter reuses a
// single value across calls; Setup or Empty re-anchors it.
type Arguments struct {
	stack      *stack.EvaluationStack
	Positional Positional
	Named      Named
	Blocks     Blocks
}

// New returns arguments attached to no stack.
func New() *Arguments {
	return &Arguments{}
}

// Empty anchors zero-length windows at the current top of s.
func (a *Arguments) Empty(s *stack.EvaluationStack) *Arguments {
	a.stack = s
	base := s.SP() + 1
	a.Named.empty(s, base)
	a.Positional.empty(s, base)
	a.Blocks.empty(s, base)
	return a
}

// Setup lays windows over values already pushed: named values end at the
// stack top, positional values precede them, block triples precede those.
func (a *Arguments) Setup(s *stack.EvaluationStack, names, blockNames []string, positionalCount int, atNames bool) {
	check.Assert(positionalCount >= 0, "negative positional count %d", positionalCount)
	a.stack = s

	namedBase := s.SP() - len(names) + 1
	a.Named.setup(s, namedBase, len(names), names, atNames)

	positionalBase := namedBase - positionalCount
	a.Positional.setup(s, positionalBase, positionalCount)

	blocksBase := positionalBase - len(blockNames)*3
	check.Assert(blocksBase >= 0, "argument windows need %d slots, stack holds %d",
		len(blockNames)*3+positionalCount+len(names), s.Len())
	a.Blocks.setup(s, blocksBase, len(blockNames), blockNames)
}

// Base is the first slot of the call's region.
func (a *Arguments) Base() int {
	return a.Blocks.base
}

// Len is positional + named + 3 × blocks.
func (a *Arguments) Len() int {
	return a.Positional.length + a.Named.length + a.Blocks.length*3
}

// At is Positional.At.
func (a *Arguments) At(i int) reference.Reference {
	return a.Positional.At(i)
}

// Realloc opens offset slots beneath the positional window by moving the
// positional and named values up. It is a no-op for offset <= 0 or when
// no stack is attached.
func (a *Arguments) Realloc(offset int) {
	s := a.stack
	if offset <= 0 || s == nil {
		return
	}
	p, n := &a.Positional, &a.Named
	oldBase := p.base
	length := p.length + n.length
	s.SetSP(s.SP() + offset)
	for i := length - 1; i >= 0; i-- {
		s.Copy(oldBase+i, oldBase+offset+i)
	}
	p.base += offset
	n.base += offset
}

// Capture copies the windows out into a frame-independent record.
func (a *Arguments) Capture() *Captured {
	positional := emptyPositional
	if a.Positional.length > 0 {
		positional = a.Positional.Capture()
	}
	named := emptyNamed
	if a.Named.length > 0 {
		named = a.Named.Capture()
	}
	return &Captured{Positional: positional, Named: named, Length: a.Len()}
}

// Clear pops the whole call region off the stack.
func (a *Arguments) Clear() {
	if n := a.Len(); n > 0 && a.stack != nil {
		a.stack.PopN(n)
	}
}

// String summarizes the windows for traces.
func (a *Arguments) String() string {
	return fmt.Sprintf("args{blocks %d@%d positional %d@%d named %d@%d [%s]}",
		a.Blocks.length, a.Blocks.base,
		a.Positional.length, a.Positional.base,
		a.Named.length, a.Named.base, strings.Join(a.Named.Names(), ","))
}

// Positional is the window of positional argument references.
type Positional struct {
	stack  *stack.EvaluationStack
	base   int
	length int
	refs   []reference.Reference
}

func (p *Positional) empty(s *stack.EvaluationStack, base int) {
	p.setup(s, base, 0)
}

func (p *Positional) setup(s *stack.EvaluationStack, base, length int) {
	p.stack = s
	p.base = base
	p.length = length
	p.refs = nil
}

// Base is the window's first slot.
func (p *Positional) Base() int { return p.base }

// Len is the number of positional arguments.
func (p *Positional) Len() int { return p.length }

// At returns argument i, or the undefined sentinel when i is out of range.
func (p *Positional) At(i int) reference.Reference {
	if i < 0 || i >= p.length {
		return reference.UndefinedReference
	}
	return check.As[reference.Reference](p.stack.Get(i, p.base), "positional argument reference")
}

func (p *Positional) references() []reference.Reference {
	if p.refs == nil && p.length > 0 {
		slots := p.stack.Slice(p.base, p.base+p.length)
		refs := make([]reference.Reference, len(slots))
		for i, v := range slots {
			refs[i] = check.As[reference.Reference](v, "positional argument reference")
		}
		p.refs = refs
	}
	return p.refs
}

// Capture copies the window out.
func (p *Positional) Capture() *CapturedPositional {
	if p.length == 0 {
		return emptyPositional
	}
	return &CapturedPositional{refs: p.references()}
}

// Prepend moves the window's base back by other.Len() and writes other's
// references into the opened slots. The slots must already be free, which
// Realloc arranges.
func (p *Positional) Prepend(other *CapturedPositional) {
	additions := other.Len()
	if additions == 0 {
		return
	}
	p.base -= additions
	p.length += additions
	check.Assert(p.base >= 0, "prepend of %d moves positional base below the stack", additions)
	for i := 0; i < additions; i++ {
		p.stack.Set(other.At(i), i, p.base)
	}
	p.refs = nil
}

// Named is the window of named argument references. Names are held in
// either synthetic (`foo`) or at (`@foo`) form; the other form is derived
// on first request.
type Named struct {
	stack  *stack.EvaluationStack
	base   int
	length int
	refs   []reference.Reference

	names        []string
	atNames      []string
	namesReady   bool
	atNamesReady bool
}

func (n *Named) empty(s *stack.EvaluationStack, base int) {
	n.setup(s, base, 0, nil, false)
}

func (n *Named) setup(s *stack.EvaluationStack, base, length int, names []string, atNames bool) {
	n.stack = s
	n.base = base
	n.length = length
	n.refs = nil
	n.names, n.atNames = nil, nil
	switch {
	case length == 0:
		n.namesReady, n.atNamesReady = true, true
	case atNames:
		n.atNames = names
		n.namesReady, n.atNamesReady = false, true
	default:
		n.names = names
		n.namesReady, n.atNamesReady = true, false
	}
}

// Base is the window's first slot.
func (n *Named) Base() int { return n.base }

// Len is the number of named arguments.
func (n *Named) Len() int { return n.length }

// Names returns the synthetic names.
func (n *Named) Names() []string {
	if !n.namesReady {
		names := make([]string, len(n.atNames))
		for i, name := range n.atNames {
			names[i] = strings.TrimPrefix(name, "@")
		}
		n.names = names
		n.namesReady = true
	}
	return n.names
}

// AtNames returns the `@`-prefixed names.
func (n *Named) AtNames() []string {
	if !n.atNamesReady {
		atNames := make([]string, len(n.names))
		for i, name := range n.names {
			atNames[i] = "@" + name
		}
		n.atNames = atNames
		n.atNamesReady = true
	}
	return n.atNames
}

// Has reports whether a synthetic name is present.
func (n *Named) Has(name string) bool {
	return indexOf(n.Names(), name) >= 0
}

// Get returns the reference passed under name, or the undefined sentinel.
// A name starting with `@` is looked up in the at form.
func (n *Named) Get(name string) reference.Reference {
	names := n.Names()
	if strings.HasPrefix(name, "@") {
		names = n.AtNames()
	}
	idx := indexOf(names, name)
	if idx < 0 {
		return reference.UndefinedReference
	}
	return check.As[reference.Reference](n.stack.Get(idx, n.base), "named argument reference")
}

func (n *Named) references() []reference.Reference {
	if n.refs == nil && n.length > 0 {
		slots := n.stack.Slice(n.base, n.base+n.length)
		refs := make([]reference.Reference, len(slots))
		for i, v := range slots {
			refs[i] = check.As[reference.Reference](v, "named argument reference")
		}
		n.refs = refs
	}
	return n.refs
}

// Capture copies the window out.
func (n *Named) Capture() *CapturedNamed {
	if n.length == 0 {
		return emptyNamed
	}
	return newCapturedNamed(n.Names(), n.references())
}

// Merge appends each of other's names not already present, pushing its
// reference onto the stack. Existing entries keep their position and
// reference. The window must end at the stack top.
func (n *Named) Merge(other *CapturedNamed) {
	if other.Len() == 0 {
		return
	}
	check.Assert(n.base+n.length == n.stack.SP()+1, "merge into named window that does not end at the stack top")

	// Never append into a slice shared with the program's name pool.
	current := n.Names()
	names := append(make([]string, 0, len(current)+other.Len()), current...)
	for i, name := range other.names {
		if indexOf(names, name) < 0 {
			names = append(names, name)
			n.stack.Push(other.refs[i])
		}
	}

	n.length = len(names)
	n.refs = nil
	n.names = names
	n.namesReady = true
	n.atNames = nil
	n.atNamesReady = false
}

// Blocks is the window of block triples.
type Blocks struct {
	stack  *stack.EvaluationStack
	base   int
	length int
	names  []string
	values []any
}

func (b *Blocks) empty(s *stack.EvaluationStack, base int) {
	b.setup(s, base, 0, nil)
}

func (b *Blocks) setup(s *stack.EvaluationStack, base, length int, names []string) {
	b.stack = s
	b.base = base
	b.length = length
	b.names = names
	b.values = nil
}

// Base is the window's first slot.
func (b *Blocks) Base() int { return b.base }

// Len is the number of blocks, not slots.
func (b *Blocks) Len() int { return b.length }

// Names returns the block names in window order.
func (b *Blocks) Names() []string { return b.names }

// Has reports whether a block name was passed, even with no body.
func (b *Blocks) Has(name string) bool {
	return indexOf(b.names, name) >= 0
}

// Get returns the block passed under name, or nil when the name is absent
// or its body is missing.
func (b *Blocks) Get(name string) *scope.Block {
	idx := indexOf(b.names, name)
	if idx < 0 {
		return nil
	}
	return blockAt(func(i int) any { return b.stack.Get(idx*3+i, b.base) })
}

// Capture copies the window out.
func (b *Blocks) Capture() *CapturedBlocks {
	if b.values == nil && b.length > 0 {
		b.values = b.stack.Slice(b.base, b.base+b.length*3)
	}
	return &CapturedBlocks{names: b.names, values: b.values}
}

// blockAt decodes one table/scope/body triple.
func blockAt(slot func(i int) any) *scope.Block {
	table := check.Maybe[*bytecode.SymbolTable](slot(0), "block symbol table")
	sc := check.Maybe[*scope.Scope](slot(1), "block scope")
	body := check.Maybe[scope.Body](slot(2), "block body")
	if body == nil {
		return nil
	}
	block := &scope.Block{Body: body, Scope: sc}
	if table != nil {
		block.Table = *table
	}
	return block
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
