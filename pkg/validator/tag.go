// Package validator provides the tag-based invalidation primitive used by the
// reference graph.
//
// A Tag is an opaque version marker. Consumers record the revision of every
// tag they read while computing a value; the value stays valid for as long as
// none of those tags has advanced past the recorded snapshot.
//
// Tags are driven by a Clock. There is no process-wide clock: each engine
// instance owns one and hands it to every component that needs to create,
// dirty, or consume tags.
package validator

// Revision is a monotonically increasing version number.
type Revision uint64

const (
	// Constant is the revision of a tag that can never be dirtied.
	Constant Revision = 0

	// Initial is the revision a fresh clock starts at.
	Initial Revision = 1
)

// Tag is anything with a current revision.
type Tag interface {
	Revision() Revision
}

// ConstantTag never changes.
var ConstantTag Tag = constantTag{}

type constantTag struct{}

func (constantTag) Revision() Revision { return Constant }

// DirtyableTag is the tag of a single mutable cell.
type DirtyableTag struct {
	rev Revision
}

// Revision returns the revision at which the cell was last dirtied.
func (t *DirtyableTag) Revision() Revision {
	if t == nil {
		return Constant
	}
	return t.rev
}

// combinatorTag's effective revision is the max of its members.
type combinatorTag []Tag

func (c combinatorTag) Revision() Revision {
	var max Revision
	for _, t := range c {
		if r := t.Revision(); r > max {
			max = r
		}
	}
	return max
}

// Combine returns a tag whose revision is the max of the given tags.
func Combine(tags ...Tag) Tag {
	switch len(tags) {
	case 0:
		return ConstantTag
	case 1:
		return tags[0]
	}

	out := make(combinatorTag, 0, len(tags))
	for _, t := range tags {
		if t == nil || t == ConstantTag {
			continue
		}
		out = append(out, t)
	}

	switch len(out) {
	case 0:
		return ConstantTag
	case 1:
		return out[0]
	}
	return out
}

// Validate reports whether a computation that recorded tag at snapshot is
// still up to date.
func Validate(tag Tag, snapshot Revision) bool {
	return tag.Revision() <= snapshot
}
