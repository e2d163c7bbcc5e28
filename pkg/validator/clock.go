package validator

// Tracker is the capability set the reference graph depends on. Clock is the
// default implementation; alternate invalidation strategies can be slotted in
// behind the same contract.
type Tracker interface {
	// CreateTag returns a fresh cell tag.
	CreateTag() *DirtyableTag

	// DirtyTag advances the clock and stamps t with the new revision.
	DirtyTag(t *DirtyableTag)

	// ConsumeTag records that the active computation read t.
	ConsumeTag(t Tag)

	// Track runs fn in a fresh tracking frame and returns the combination
	// of every tag consumed while it ran.
	Track(fn func()) Tag

	// Current returns the clock's current revision.
	Current() Revision

	// Memoize wraps compute so it only re-runs after something it consumed
	// was dirtied.
	Memoize(compute func() any, label string) func() any
}

// Clock is a single-threaded revision counter with a stack of tracking
// frames.
type Clock struct {
	now    Revision
	frames [][]Tag

	// OnRecompute, when set, is invoked with the memo label every time a
	// memoized computation actually runs.
	OnRecompute func(label string)
}

// NewClock creates a clock at the initial revision.
func NewClock() *Clock {
	return &Clock{now: Initial}
}

// CreateTag returns a fresh tag at the current revision.
func (c *Clock) CreateTag() *DirtyableTag {
	return &DirtyableTag{rev: c.now}
}

// DirtyTag bumps the clock and the tag.
func (c *Clock) DirtyTag(t *DirtyableTag) {
	c.now++
	t.rev = c.now
}

// ConsumeTag adds t to the innermost tracking frame, if any.
func (c *Clock) ConsumeTag(t Tag) {
	if t == nil || len(c.frames) == 0 {
		return
	}
	top := len(c.frames) - 1
	c.frames[top] = append(c.frames[top], t)
}

// Track runs fn and returns the combined tag of everything it consumed.
func (c *Clock) Track(fn func()) Tag {
	c.frames = append(c.frames, nil)
	defer func() {
		c.frames = c.frames[:len(c.frames)-1]
	}()

	fn()

	return Combine(c.frames[len(c.frames)-1]...)
}

// Current returns the current revision.
func (c *Clock) Current() Revision {
	return c.now
}

// Memoize caches compute's result until a consumed tag is dirtied.
func (c *Clock) Memoize(compute func() any, label string) func() any {
	var (
		cached   any
		tag      Tag
		snapshot Revision
		valid    bool
	)

	return func() any {
		if !valid || !Validate(tag, snapshot) {
			if c.OnRecompute != nil {
				c.OnRecompute(label)
			}
			snapshot = c.now
			tag = c.Track(func() {
				cached = compute()
			})
			valid = true
		}

		c.ConsumeTag(tag)
		return cached
	}
}

// Memoize is the typed form of Tracker.Memoize.
func Memoize[T any](tr Tracker, compute func() T, label string) func() T {
	fn := tr.Memoize(func() any { return compute() }, label)
	return func() T {
		v, _ := fn().(T)
		return v
	}
}
