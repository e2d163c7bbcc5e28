// Package scope holds the symbol slots a template body evaluates against:
// self at slot 0, then local symbols and bound blocks.
package scope

import (
	"fmt"

	"github.com/chazu/reflow/pkg/bytecode"
	"github.com/chazu/reflow/pkg/check"
	"github.com/chazu/reflow/pkg/reference"
)

// Handle is a resolved block entry point: an instruction index.
type Handle int32

// Body is either a Handle (AOT) or a *CompilableBlock (JIT).
type Body interface {
	isBody()
}

func (Handle) isBody() {}

// CompilableBlock is a JIT block body that resolves to a Handle on first
// use. Compilation runs once; later calls return the cached result.
type CompilableBlock struct {
	Index int32
	Info  bytecode.BlockInfo
	Table bytecode.SymbolTable

	compiled bool
	handle   Handle
	err      error
}

func (*CompilableBlock) isBody() {}

// NewCompilableBlock describes block index of a program.
func NewCompilableBlock(index int32, info bytecode.BlockInfo, table bytecode.SymbolTable) *CompilableBlock {
	return &CompilableBlock{Index: index, Info: info, Table: table}
}

// Compile resolves the body, running verify against the entry offset the
// first time only.
func (b *CompilableBlock) Compile(verify func(start int32) error) (Handle, error) {
	if !b.compiled {
		b.compiled = true
		b.handle = Handle(b.Info.Start)
		if verify != nil {
			if err := verify(b.Info.Start); err != nil {
				b.err = fmt.Errorf("compiling block %q: %w", b.Info.Name, err)
			}
		}
	}
	return b.handle, b.err
}

// Compiled reports whether Compile has run.
func (b *CompilableBlock) Compiled() bool { return b.compiled }

// Block is the bound triple: body, the scope it closes over, and the
// symbol table describing its parameters.
type Block struct {
	Body  Body
	Scope *Scope
	Table bytecode.SymbolTable
}

// Scope is a fixed set of slots. Empty slots hold reference.UndefinedReference.
type Scope struct {
	slots    []any
	partials map[string]reference.Reference
}

// Root creates a scope with self bound and size further symbol slots.
func Root(self reference.Reference, size int) *Scope {
	s := Sized(size)
	s.slots[0] = self
	return s
}

// Sized creates a scope with size symbol slots and no self.
func Sized(size int) *Scope {
	check.Assert(size >= 0, "negative scope size %d", size)
	slots := make([]any, size+1)
	for i := range slots {
		slots[i] = reference.UndefinedReference
	}
	return &Scope{slots: slots}
}

// Size returns the number of slots, including self.
func (s *Scope) Size() int { return len(s.slots) }

func (s *Scope) slot(i int) any {
	check.Assert(i >= 0 && i < len(s.slots), "symbol %d outside scope of %d slots", i, len(s.slots))
	return s.slots[i]
}

// Self returns the reference in slot 0.
func (s *Scope) Self() reference.Reference {
	return check.As[reference.Reference](s.slots[0], "self reference")
}

// Symbol returns the reference bound to symbol i.
func (s *Scope) Symbol(i int) reference.Reference {
	return check.As[reference.Reference](s.slot(i), fmt.Sprintf("reference in symbol %d", i))
}

// Block returns the block bound to symbol i, or nil when none was supplied.
func (s *Scope) Block(i int) *Block {
	v := s.slot(i)
	if v == nil || v == reference.UndefinedReference {
		return nil
	}
	return check.As[*Block](v, fmt.Sprintf("block in symbol %d", i))
}

// BindSelf sets slot 0.
func (s *Scope) BindSelf(self reference.Reference) {
	s.slots[0] = self
}

// BindSymbol sets symbol i to ref.
func (s *Scope) BindSymbol(i int, ref reference.Reference) {
	s.slot(i)
	s.slots[i] = ref
}

// BindBlock sets symbol i to block. A nil block records that no block was
// supplied under that symbol.
func (s *Scope) BindBlock(i int, block *Block) {
	s.slot(i)
	if block == nil {
		s.slots[i] = nil
		return
	}
	s.slots[i] = block
}

// Child copies the slots into a new scope. Bindings made on the child are
// not visible to the parent.
func (s *Scope) Child() *Scope {
	slots := make([]any, len(s.slots))
	copy(slots, s.slots)
	return &Scope{slots: slots, partials: s.partials}
}

// BindPartial records a local visible to RESOLVE_MAYBE_LOCAL.
func (s *Scope) BindPartial(name string, ref reference.Reference) {
	if s.partials == nil {
		s.partials = map[string]reference.Reference{}
	} else {
		cp := make(map[string]reference.Reference, len(s.partials)+1)
		for k, v := range s.partials {
			cp[k] = v
		}
		s.partials = cp
	}
	s.partials[name] = ref
}

// Partial looks up a local bound with BindPartial.
func (s *Scope) Partial(name string) (reference.Reference, bool) {
	ref, ok := s.partials[name]
	return ref, ok
}
