package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirtyTagAdvancesRevision(t *testing.T) {
	c := NewClock()
	tag := c.CreateTag()
	before := tag.Revision()

	c.DirtyTag(tag)

	require.Greater(t, tag.Revision(), before)
	require.Equal(t, c.Current(), tag.Revision())
}

func TestCombineTakesMax(t *testing.T) {
	c := NewClock()
	a, b := c.CreateTag(), c.CreateTag()
	c.DirtyTag(b)
	c.DirtyTag(b)

	combined := Combine(a, b)
	require.Equal(t, b.Revision(), combined.Revision())

	c.DirtyTag(a)
	require.Equal(t, a.Revision(), combined.Revision())
}

func TestCombineDegenerateCases(t *testing.T) {
	c := NewClock()
	a := c.CreateTag()

	require.Equal(t, ConstantTag, Combine())
	require.Same(t, a, Combine(a))
	require.Same(t, a, Combine(ConstantTag, a))
}

func TestTrackCollectsConsumedTags(t *testing.T) {
	c := NewClock()
	a, b := c.CreateTag(), c.CreateTag()

	tag := c.Track(func() {
		c.ConsumeTag(a)
		c.ConsumeTag(b)
	})
	snapshot := c.Current()
	require.True(t, Validate(tag, snapshot))

	c.DirtyTag(b)
	require.False(t, Validate(tag, snapshot))
}

func TestConsumeOutsideTrackingIsNoop(t *testing.T) {
	c := NewClock()
	c.ConsumeTag(c.CreateTag())
	require.Empty(t, c.frames)
}

func TestMemoizeRecomputesOnlyAfterDirty(t *testing.T) {
	c := NewClock()
	tag := c.CreateTag()
	runs := 0

	fn := c.Memoize(func() any {
		runs++
		c.ConsumeTag(tag)
		return runs
	}, "counter")

	require.Equal(t, 1, fn())
	require.Equal(t, 1, fn())
	require.Equal(t, 1, runs)

	c.DirtyTag(tag)
	require.Equal(t, 2, fn())
	require.Equal(t, 2, fn())
	require.Equal(t, 2, runs)
}

func TestMemoizeNestsThroughOuterFrames(t *testing.T) {
	c := NewClock()
	tag := c.CreateTag()
	innerRuns, outerRuns := 0, 0

	inner := c.Memoize(func() any {
		innerRuns++
		c.ConsumeTag(tag)
		return "inner"
	}, "inner")

	outer := c.Memoize(func() any {
		outerRuns++
		return inner().(string) + "+outer"
	}, "outer")

	require.Equal(t, "inner+outer", outer())
	require.Equal(t, "inner+outer", outer())
	require.Equal(t, 1, outerRuns)

	c.DirtyTag(tag)
	require.Equal(t, "inner+outer", outer())
	require.Equal(t, 2, outerRuns)
	require.Equal(t, 2, innerRuns)
}

func TestTypedMemoize(t *testing.T) {
	c := NewClock()
	var labels []string
	c.OnRecompute = func(label string) { labels = append(labels, label) }

	fn := Memoize(c, func() string { return "x" }, "typed")
	require.Equal(t, "x", fn())
	require.Equal(t, "x", fn())
	require.Equal(t, []string{"typed"}, labels)
}
