// Package stack provides the evaluation stack shared by the interpreter and
// the argument windows built over it.
//
// The stack is an explicitly indexed, growable buffer. It carries two
// registers: sp, the index of the topmost live slot (-1 when empty), and fp,
// the base of the current call frame. Argument windows are base+length views
// into the buffer; nothing copies out of it except Slice.
package stack

import "github.com/chazu/reflow/pkg/check"

// DefaultSize is the initial slot capacity of a new stack.
const DefaultSize = 1024

// EvaluationStack is owned by exactly one interpreter.
type EvaluationStack struct {
	slots []any
	sp    int
	fp    int
}

// New creates an empty stack with room for size slots before growing.
func New(size int) *EvaluationStack {
	if size <= 0 {
		size = DefaultSize
	}
	return &EvaluationStack{
		slots: make([]any, size),
		sp:    -1,
		fp:    -1,
	}
}

func (s *EvaluationStack) ensure(index int) {
	if index < len(s.slots) {
		return
	}
	n := len(s.slots) * 2
	for n <= index {
		n *= 2
	}
	grown := make([]any, n)
	copy(grown, s.slots)
	s.slots = grown
}

// Push places value on top of the stack.
func (s *EvaluationStack) Push(value any) {
	s.sp++
	s.ensure(s.sp)
	s.slots[s.sp] = value
}

// Pop removes and returns the top value.
func (s *EvaluationStack) Pop() any {
	check.Assert(s.sp >= 0, "pop from empty evaluation stack")
	v := s.slots[s.sp]
	s.slots[s.sp] = nil
	s.sp--
	return v
}

// PopN discards the top n values.
func (s *EvaluationStack) PopN(n int) {
	check.Assert(n >= 0 && s.sp-n >= -1, "pop %d from evaluation stack of depth %d", n, s.sp+1)
	for i := 0; i < n; i++ {
		s.slots[s.sp-i] = nil
	}
	s.sp -= n
}

// Peek returns the value offset slots below the top without removing it.
func (s *EvaluationStack) Peek(offset int) any {
	idx := s.sp - offset
	check.Assert(idx >= 0 && idx <= s.sp, "peek %d on evaluation stack of depth %d", offset, s.sp+1)
	return s.slots[idx]
}

// Dup pushes a copy of the slot at position.
func (s *EvaluationStack) Dup(position int) {
	check.Assert(position >= 0 && position <= s.sp, "dup of slot %d beyond top %d", position, s.sp)
	s.Push(s.slots[position])
}

// Get returns the slot at base+offset.
func (s *EvaluationStack) Get(offset, base int) any {
	idx := base + offset
	check.Assert(idx >= 0 && idx <= s.sp, "read of slot %d beyond top %d", idx, s.sp)
	return s.slots[idx]
}

// Set writes value into the slot at base+offset.
func (s *EvaluationStack) Set(value any, offset, base int) {
	idx := base + offset
	check.Assert(idx >= 0, "write to negative slot %d", idx)
	s.ensure(idx)
	s.slots[idx] = value
}

// Copy duplicates slot from into slot to.
func (s *EvaluationStack) Copy(from, to int) {
	check.Assert(from >= 0 && to >= 0, "copy between slots %d and %d", from, to)
	s.ensure(to)
	s.slots[to] = s.slots[from]
}

// Slice returns a fresh copy of slots [start, end).
func (s *EvaluationStack) Slice(start, end int) []any {
	check.Assert(start >= 0 && start <= end && end <= s.sp+1, "slice [%d:%d] of stack with top %d", start, end, s.sp)
	out := make([]any, end-start)
	copy(out, s.slots[start:end])
	return out
}

// Reset empties the stack and clears both registers.
func (s *EvaluationStack) Reset() {
	for i := 0; i <= s.sp; i++ {
		s.slots[i] = nil
	}
	s.sp = -1
	s.fp = -1
}

// SP returns the stack pointer register.
func (s *EvaluationStack) SP() int { return s.sp }

// SetSP moves the stack pointer. Slots above the new top are cleared.
func (s *EvaluationStack) SetSP(sp int) {
	check.Assert(sp >= -1, "stack pointer %d below empty", sp)
	s.ensure(sp)
	for i := sp + 1; i <= s.sp; i++ {
		s.slots[i] = nil
	}
	s.sp = sp
}

// FP returns the frame pointer register.
func (s *EvaluationStack) FP() int { return s.fp }

// SetFP sets the frame pointer register.
func (s *EvaluationStack) SetFP(fp int) { s.fp = fp }

// Len returns the number of live slots.
func (s *EvaluationStack) Len() int { return s.sp + 1 }
