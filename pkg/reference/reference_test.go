package reference

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chazu/reflow/pkg/data"
	"github.com/chazu/reflow/pkg/validator"
)

// countingPaths wraps data.Paths and counts reads.
type countingPaths struct {
	data.Paths
	reads  int
	writes int
}

func (c *countingPaths) GetPath(obj any, path string) any {
	c.reads++
	return c.Paths.GetPath(obj, path)
}

func (c *countingPaths) SetPath(obj any, path string, value any) any {
	c.writes++
	return c.Paths.SetPath(obj, path, value)
}

func newTestEnv(mode Mode) (*Env, *validator.Clock, *countingPaths) {
	clock := validator.NewClock()
	env := NewEnv(clock, mode)
	paths := &countingPaths{}
	env.Paths = paths
	return env, clock, paths
}

func TestPropertyValueIsMemoized(t *testing.T) {
	env, clock, paths := newTestEnv(Production)
	obj := data.ObjectFrom(clock, map[string]any{"k": "v1"})
	ref := NewComponentRoot(env, obj).Get("k")

	require.Equal(t, "v1", ref.Value())
	require.Equal(t, "v1", ref.Value())
	require.Equal(t, 1, paths.reads)

	obj.SetKey("k", "v2")
	require.Equal(t, "v2", ref.Value())
	require.Equal(t, 2, paths.reads)
	require.Equal(t, "v2", ref.Value())
	require.Equal(t, 2, paths.reads)
}

func TestUnrelatedWriteDoesNotRecompute(t *testing.T) {
	env, clock, paths := newTestEnv(Production)
	obj := data.ObjectFrom(clock, map[string]any{"a": 1, "b": 2})
	a := NewComponentRoot(env, obj).Get("a")

	require.Equal(t, 1, a.Value())
	obj.SetKey("b", 3)
	require.Equal(t, 1, a.Value())
	require.Equal(t, 1, paths.reads)
}

func TestNestedPathInvalidation(t *testing.T) {
	env, clock, _ := newTestEnv(Production)
	user := data.ObjectFrom(clock, map[string]any{"name": "Ada"})
	root := NewComponentRoot(env, data.ObjectFrom(clock, map[string]any{"user": user}))
	name := root.Get("user").Get("name")

	require.Equal(t, "Ada", name.Value())
	user.SetKey("name", "Grace")
	require.Equal(t, "Grace", name.Value())
}

func TestProductionDeduplicatesChildren(t *testing.T) {
	env, clock, _ := newTestEnv(Production)
	root := NewComponentRoot(env, data.ObjectFrom(clock, map[string]any{"a": map[string]any{"b": 1}}))

	require.Same(t, root.Get("a"), root.Get("a"))
	require.Same(t, root.Get("a").Get("b"), root.Get("a").Get("b"))

	item := NewIterationItemReference(env, root, map[string]any{"x": 1}, 0)
	require.Same(t, item.Get("x"), item.Get("x"))
}

func TestDiagnosticAllocatesDistinctChildren(t *testing.T) {
	env, clock, _ := newTestEnv(Diagnostic)
	root := NewComponentRoot(env, data.ObjectFrom(clock, map[string]any{"a": "same"}))

	first, second := root.Get("a"), root.Get("a")
	require.NotSame(t, first, second)
	require.Equal(t, first.Value(), second.Value())
}

func TestDiagnosticDescriptions(t *testing.T) {
	env, clock, _ := newTestEnv(Diagnostic)
	root := NewComponentRoot(env, data.ObjectFrom(clock, map[string]any{}))
	root.SetDebugName("this.args")

	ref := root.Get("user").Get("name")
	require.Equal(t, "this.args.user.name", env.Describe(ref))
	require.Equal(t, "this.args", env.Describe(root))

	helper := NewHelperRoot(env, func() any { return 1 }, "sum")
	require.Equal(t, "(result of a `sum` helper)", env.Describe(helper))
	require.Equal(t, "(result of a `sum` helper).x", env.Describe(helper.Get("x")))
}

func TestDiagnosticDescriptionsAreReleased(t *testing.T) {
	env, clock, _ := newTestEnv(Diagnostic)
	root := NewComponentRoot(env, data.ObjectFrom(clock, map[string]any{
		"a": map[string]any{"b": "x"},
	}))
	registry := env.Debug.(*DebugRegistry)

	for i := 0; i < 1000; i++ {
		ref := root.Get("a").Get("b")
		require.Equal(t, "x", ref.Value())
		require.Equal(t, "this.a.b", env.Describe(ref))
	}

	require.Eventually(t, func() bool {
		runtime.GC()
		return registry.Len() < 10
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "this", env.Describe(root))
	runtime.KeepAlive(root)
}

func TestProductionRecordsNoDescriptions(t *testing.T) {
	env, clock, _ := newTestEnv(Production)
	root := NewComponentRoot(env, data.ObjectFrom(clock, nil))
	ref := root.Get("a")

	require.Nil(t, env.Debug)
	require.Equal(t, "", env.Describe(ref))
}

func TestPropertyOfMissingParentIsUndefined(t *testing.T) {
	env, _, paths := newTestEnv(Production)

	require.Nil(t, NewComponentRoot(env, nil).Get("a").Get("b").Value())
	require.Nil(t, NewComponentRoot(env, "primitive").Get("a").Value())
	require.Nil(t, NewComponentRoot(env, 42).Get("a").Value())
	require.Equal(t, 0, paths.reads)
}

func TestUpdateReferencedValueWritesLive(t *testing.T) {
	env, clock, paths := newTestEnv(Production)
	obj := data.ObjectFrom(clock, map[string]any{"k": "old"})
	ref := NewComponentRoot(env, obj).Get("k")

	require.Equal(t, "old", ref.Value())

	up, ok := ref.(Updatable)
	require.True(t, ok)

	up.UpdateReferencedValue("new")
	up.UpdateReferencedValue("new")
	require.Equal(t, 2, paths.writes)
	require.Equal(t, "new", ref.Value())
}

func TestIterationItemUpdate(t *testing.T) {
	env, _, _ := newTestEnv(Production)
	item := NewIterationItemReference(env, UndefinedReference, "x", "k1")

	require.Equal(t, "x", item.Value())
	before := item.Tag().Revision()

	item.Update("y")
	require.Equal(t, "y", item.Value())
	require.Greater(t, item.Tag().Revision(), before)
	require.Equal(t, "k1", item.Key())
}

func TestIterationItemInvalidatesChildren(t *testing.T) {
	env, _, _ := newTestEnv(Production)
	item := NewIterationItemReference(env, UndefinedReference, map[string]any{"n": 1}, 0)
	n := item.Get("n")

	require.Equal(t, 1, n.Value())
	item.Update(map[string]any{"n": 2})
	require.Equal(t, 2, n.Value())
}

func TestHelperRootRunsOnlyWhenInputsChange(t *testing.T) {
	env, clock, _ := newTestEnv(Production)
	obj := data.ObjectFrom(clock, map[string]any{"n": 2})
	input := NewComponentRoot(env, obj).Get("n")

	runs := 0
	helper := NewHelperRoot(env, func() any {
		runs++
		return input.Value().(int) * 10
	}, "times-ten")

	require.Equal(t, 20, helper.Value())
	require.Equal(t, 20, helper.Value())
	require.Equal(t, 1, runs)

	obj.SetKey("n", 3)
	require.Equal(t, 30, helper.Value())
	require.Equal(t, 2, runs)
}

func TestPrimitiveReferences(t *testing.T) {
	require.Same(t, UndefinedReference, NewPrimitive(nil))
	require.Same(t, TrueReference, NewPrimitive(true))
	require.Same(t, FalseReference, NewPrimitive(false))
	require.NotSame(t, UndefinedReference, NullReference)
	require.Nil(t, NullReference.Value())

	s := NewPrimitive("héllo")
	require.Equal(t, 5, s.Get("length").Value())
	require.Same(t, UndefinedReference, s.Get("other"))
	require.Same(t, UndefinedReference, NewPrimitive(3).Get("x"))

	require.True(t, IsUndefined(UndefinedReference))
	require.False(t, IsUndefined(NullReference))
	require.False(t, IsUndefined(nil))
}
