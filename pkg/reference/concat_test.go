package reference

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/reflow/pkg/data"
)

func TestConcatPreservesOrder(t *testing.T) {
	env, _, _ := newTestEnv(Production)
	c := NewConcatReference(env, []Reference{NewPrimitive("a"), NewPrimitive("b"), NewPrimitive("c")})
	require.Equal(t, "abc", c.Value())
	require.Equal(t, 3, c.Get("length").Value())
}

func TestConcatNormalizesAndTracks(t *testing.T) {
	env, clock, _ := newTestEnv(Production)
	obj := data.ObjectFrom(clock, map[string]any{"n": 1})
	root := NewComponentRoot(env, obj)

	c := NewConcatReference(env, []Reference{
		NewPrimitive("n="),
		root.Get("n"),
		UndefinedReference,
		NewPrimitive(true),
	})
	require.Equal(t, "n=1true", c.Value())

	obj.SetKey("n", 2.5)
	require.Equal(t, "n=2.5true", c.Value())
}

func TestClassList(t *testing.T) {
	env, clock, _ := newTestEnv(Production)
	obj := data.ObjectFrom(clock, map[string]any{"active": ""})
	root := NewComponentRoot(env, obj)

	list := NewClassListReference(env, []Reference{NewPrimitive("btn"), root.Get("active"), NullReference})
	require.Equal(t, "btn", list.Value())

	obj.SetKey("active", "is-active")
	require.Equal(t, "btn is-active", list.Value())

	empty := NewClassListReference(env, []Reference{NewPrimitive(""), UndefinedReference})
	require.Nil(t, empty.Value())
}

type stringer struct{}

func (stringer) String() string { return "stringer" }

func TestNormalizeStringValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{true, "true"},
		{false, "false"},
		{42, "42"},
		{int64(-7), "-7"},
		{3.0, "3"},
		{0.25, "0.25"},
		{math.NaN(), "NaN"},
		{math.Inf(-1), "-Infinity"},
		{stringer{}, "stringer"},
		{uint8(9), "9"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeStringValue(tc.in), "%#v", tc.in)
	}
}

func TestToBool(t *testing.T) {
	falsy := []any{nil, false, "", 0, 0.0, []any{}, map[string]any{}, int32(0), (*int)(nil)}
	for _, v := range falsy {
		require.False(t, ToBool(v), "%#v", v)
	}

	truthy := []any{true, "x", 1, -1.5, []any{nil}, map[string]any{"a": 1}, struct{}{}, uint(3)}
	for _, v := range truthy {
		require.True(t, ToBool(v), "%#v", v)
	}
}
