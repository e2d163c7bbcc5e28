package arguments

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/reflow/pkg/bytecode"
	"github.com/chazu/reflow/pkg/check"
	"github.com/chazu/reflow/pkg/reference"
	"github.com/chazu/reflow/pkg/scope"
	"github.com/chazu/reflow/pkg/stack"
)

func ref(v any) reference.Reference { return reference.NewPrimitive(v) }

// pushCall lays out b blocks, then positional values, then named values,
// above a few unrelated slots.
func pushCall(s *stack.EvaluationStack, blocks int, positional []any, named []any) {
	s.Push("caller-0")
	s.Push("caller-1")
	for i := 0; i < blocks; i++ {
		s.Push(&bytecode.SymbolTable{Parameters: []int32{1}})
		s.Push(scope.Sized(1))
		s.Push(scope.Handle(10 + i))
	}
	for _, v := range positional {
		s.Push(ref(v))
	}
	for _, v := range named {
		s.Push(ref(v))
	}
}

func TestWindowArithmetic(t *testing.T) {
	for _, tc := range []struct{ p, n, b int }{{0, 0, 0}, {1, 0, 0}, {0, 2, 0}, {0, 0, 1}, {3, 2, 2}} {
		s := stack.New(4)
		positional := make([]any, tc.p)
		named := make([]any, tc.n)
		names := make([]string, tc.n)
		for i := range named {
			named[i] = i
			names[i] = string(rune('a' + i))
		}
		blockNames := make([]string, tc.b)
		for i := range blockNames {
			blockNames[i] = string(rune('x' + i))
		}
		pushCall(s, tc.b, positional, named)

		args := New()
		args.Setup(s, names, blockNames, tc.p, false)

		require.Equal(t, tc.p+tc.n+3*tc.b, args.Len(), "%+v", tc)
		require.Equal(t, args.Positional.Base(), args.Blocks.Base()+3*tc.b, "%+v", tc)
		require.Equal(t, args.Named.Base(), args.Positional.Base()+tc.p, "%+v", tc)
		require.Equal(t, s.SP()+1, args.Named.Base()+tc.n, "%+v", tc)
		require.Equal(t, 2, args.Base(), "%+v", tc)
	}
}

func TestOutOfRangeLookupsYieldUndefined(t *testing.T) {
	s := stack.New(0)
	pushCall(s, 0, []any{"p0", "p1"}, []any{"n0"})
	args := New()
	args.Setup(s, []string{"a"}, nil, 2, false)

	require.Same(t, reference.UndefinedReference, args.Positional.At(-1))
	require.Same(t, reference.UndefinedReference, args.Positional.At(2))
	require.Same(t, reference.UndefinedReference, args.Named.Get("missing"))
	require.Equal(t, "p1", args.At(1).Value())
	require.Equal(t, "n0", args.Named.Get("a").Value())
}

func TestEmpty(t *testing.T) {
	s := stack.New(0)
	s.Push("x")
	args := New().Empty(s)

	require.Equal(t, 0, args.Len())
	require.Equal(t, 1, args.Base())
	require.Same(t, reference.UndefinedReference, args.At(0))
	require.Empty(t, args.Named.Names())
	require.Empty(t, args.Named.AtNames())
	require.Same(t, EmptyArgs.Positional, args.Capture().Positional)

	args.Clear()
	require.Equal(t, 1, s.Len())
}

func TestCaptureSharesEmptyInstances(t *testing.T) {
	s := stack.New(0)
	args := New()

	args.Setup(s, nil, nil, 0, false)
	first := args.Capture()
	pushCall(s, 0, []any{"p"}, nil)
	args.Setup(s, nil, nil, 1, false)
	second := args.Capture()

	require.Same(t, first.Named, second.Named)
	require.Same(t, emptyNamed, first.Named)
	require.Same(t, emptyPositional, first.Positional)
	require.Same(t, args.Named.Capture(), emptyNamed)
	require.NotSame(t, emptyPositional, second.Positional)
}

func TestCaptureIsFrameIndependent(t *testing.T) {
	s := stack.New(0)
	pushCall(s, 0, []any{"p0"}, []any{"n0", "n1"})
	args := New()
	args.Setup(s, []string{"a", "b"}, nil, 1, false)

	captured := args.Capture()
	args.Clear()
	require.Equal(t, 2, s.Len())

	require.Equal(t, 3, captured.Length)
	require.Equal(t, CapturedValue{
		Positional: []any{"p0"},
		Named:      map[string]any{"a": "n0", "b": "n1"},
	}, captured.Value())
	require.Equal(t, "n1", captured.Named.Map()["b"].Value())
	require.True(t, captured.Named.Has("a"))
	require.Equal(t, 1, captured.Positional.Get("length").Value())
	require.Equal(t, "p0", captured.Positional.Get("0").Value())
	require.Same(t, reference.UndefinedReference, captured.Positional.Get("7"))
	require.Same(t, reference.UndefinedReference, captured.Positional.Get("x"))
	require.Same(t, reference.UndefinedReference, captured.Named.Get("zz"))
}

func TestNamedFormsDeriveLazily(t *testing.T) {
	s := stack.New(0)
	pushCall(s, 0, nil, []any{1, 2})

	args := New()
	args.Setup(s, []string{"@class", "@title"}, nil, 0, true)
	require.Equal(t, []string{"class", "title"}, args.Named.Names())
	require.Equal(t, 2, args.Named.Get("title").Value())
	require.Equal(t, 1, args.Named.Get("@class").Value())
	require.True(t, args.Named.Has("class"))

	args.Setup(s, []string{"class", "title"}, nil, 0, false)
	require.Equal(t, []string{"@class", "@title"}, args.Named.AtNames())
	require.Equal(t, 2, args.Named.Get("@title").Value())
}

func TestMergeIsAdditiveOnly(t *testing.T) {
	s := stack.New(0)
	pushCall(s, 0, nil, []any{1, 2})
	names := []string{"a", "b"}
	args := New()
	args.Setup(s, names, nil, 0, false)
	b := args.Named.Get("b")

	other := NewCaptured(nil, []string{"b", "c"}, []reference.Reference{ref(9), ref(3)})
	args.Named.Merge(other.Named)

	require.Equal(t, []string{"a", "b", "c"}, args.Named.Names())
	require.Same(t, b, args.Named.Get("b"))
	require.Equal(t, map[string]any{"a": 1, "b": 2, "c": 3}, args.Capture().Named.Value())
	require.Equal(t, 3, args.Len())
	require.Equal(t, s.SP()+1, args.Named.Base()+args.Named.Len())
	require.Equal(t, []string{"a", "b"}, names, "caller's name list must not change")

	args.Clear()
	require.Equal(t, 2, s.Len())
}

func TestReallocThenPrepend(t *testing.T) {
	s := stack.New(0)
	pushCall(s, 1, []any{"p0"}, []any{"n0"})
	args := New()
	args.Setup(s, []string{"a"}, []string{"default"}, 1, false)
	blocksBase := args.Blocks.Base()
	sp := s.SP()

	bound := NewCaptured([]reference.Reference{ref("bound0"), ref("bound1")}, nil, nil)
	args.Realloc(bound.Positional.Len())
	require.Equal(t, sp+2, s.SP())
	require.Equal(t, "p0", args.At(0).Value())
	require.Equal(t, "n0", args.Named.Get("a").Value())

	args.Positional.Prepend(bound.Positional)
	require.Equal(t, []any{"bound0", "bound1", "p0"}, args.Capture().Positional.Value())
	require.Equal(t, blocksBase, args.Blocks.Base())
	require.Equal(t, args.Positional.Base(), args.Blocks.Base()+3)
	require.Equal(t, args.Named.Base(), args.Positional.Base()+3)
	require.Equal(t, "n0", args.Named.Get("a").Value())
	require.NotNil(t, args.Blocks.Get("default"))

	args.Clear()
	require.Equal(t, 2, s.Len())
}

func TestReallocNoops(t *testing.T) {
	New().Realloc(3) // no stack attached

	s := stack.New(0)
	pushCall(s, 0, []any{"p0"}, nil)
	args := New()
	args.Setup(s, nil, nil, 1, false)
	args.Realloc(0)
	args.Realloc(-2)
	require.Equal(t, 3, s.Len())
	require.Equal(t, 2, args.Positional.Base())
}

func TestBlocksWindow(t *testing.T) {
	s := stack.New(0)
	pushCall(s, 2, nil, nil)
	// Second block was passed as a placeholder with no body.
	s.Set(nil, 7, 0)

	args := New()
	args.Setup(s, nil, []string{"default", "else"}, 0, false)

	block := args.Blocks.Get("default")
	require.NotNil(t, block)
	require.Equal(t, scope.Handle(10), block.Body)
	require.True(t, block.Table.HasParameters())

	require.True(t, args.Blocks.Has("else"))
	require.Nil(t, args.Blocks.Get("else"))
	require.Nil(t, args.Blocks.Get("inverse"))

	captured := args.Blocks.Capture()
	require.Equal(t, 2, captured.Len())
	require.NotNil(t, captured.Get("default"))
	require.Nil(t, captured.Get("else"))
	require.False(t, captured.Has("inverse"))
}

func TestWrongShapeIsContractViolation(t *testing.T) {
	s := stack.New(0)
	s.Push("not a reference")
	args := New()
	args.Setup(s, nil, nil, 1, false)

	err := func() (err error) {
		defer check.Recover(&err)
		args.At(0)
		return nil
	}()
	require.ErrorIs(t, err, check.ErrContractViolation)
}

func TestClearNoops(t *testing.T) {
	New().Clear()

	s := stack.New(0)
	s.Push("x")
	args := New()
	args.Setup(s, nil, nil, 0, false)
	args.Clear()
	require.Equal(t, 1, s.Len())
}
