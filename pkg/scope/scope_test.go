package scope

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/reflow/pkg/bytecode"
	"github.com/chazu/reflow/pkg/check"
	"github.com/chazu/reflow/pkg/reference"
)

func TestRootScopeSlots(t *testing.T) {
	self := reference.NewPrimitive("self")
	s := Root(self, 2)

	require.Equal(t, 3, s.Size())
	require.Same(t, self, s.Self())
	require.Same(t, reference.UndefinedReference, s.Symbol(1))
	require.Nil(t, s.Block(2))
}

func TestBindAndChild(t *testing.T) {
	s := Sized(2)
	a := reference.NewPrimitive("a")
	s.BindSymbol(1, a)

	block := &Block{Body: Handle(7), Scope: s, Table: bytecode.SymbolTable{Parameters: []int32{1}}}
	s.BindBlock(2, block)
	require.Same(t, block, s.Block(2))

	child := s.Child()
	b := reference.NewPrimitive("b")
	child.BindSymbol(1, b)
	require.Same(t, a, s.Symbol(1))
	require.Same(t, b, child.Symbol(1))
	require.Same(t, block, child.Block(2))

	s.BindBlock(2, nil)
	require.Nil(t, s.Block(2))
}

func TestScopeContractViolations(t *testing.T) {
	s := Sized(1)
	s.BindSymbol(1, reference.NewPrimitive(1))

	run := func(fn func()) (err error) {
		defer check.Recover(&err)
		fn()
		return nil
	}

	require.ErrorIs(t, run(func() { s.Symbol(5) }), check.ErrContractViolation)
	require.ErrorIs(t, run(func() { s.Block(1) }), check.ErrContractViolation)
	require.NoError(t, run(func() { s.Self() }), "undefined self is still a reference")
}

func TestPartials(t *testing.T) {
	parent := Sized(0)
	parent.BindPartial("x", reference.NewPrimitive(1))

	child := parent.Child()
	child.BindPartial("y", reference.NewPrimitive(2))

	_, ok := parent.Partial("y")
	require.False(t, ok)
	x, ok := child.Partial("x")
	require.True(t, ok)
	require.Equal(t, 1, x.Value())
}

func TestCompilableBlockCompilesOnce(t *testing.T) {
	calls := 0
	b := NewCompilableBlock(0, bytecode.BlockInfo{Name: "each", Start: 4}, bytecode.SymbolTable{})
	verify := func(start int32) error {
		calls++
		require.Equal(t, int32(4), start)
		return nil
	}

	require.False(t, b.Compiled())
	h, err := b.Compile(verify)
	require.NoError(t, err)
	require.Equal(t, Handle(4), h)

	_, err = b.Compile(verify)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.True(t, b.Compiled())
}

func TestCompilableBlockKeepsError(t *testing.T) {
	boom := errors.New("boom")
	b := NewCompilableBlock(0, bytecode.BlockInfo{Name: "bad"}, bytecode.SymbolTable{})

	_, err := b.Compile(func(int32) error { return boom })
	require.ErrorIs(t, err, boom)
	_, err = b.Compile(nil)
	require.ErrorIs(t, err, boom)
}
