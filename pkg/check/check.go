// Package check validates the shape of values the interpreter pulls off the
// evaluation stack.
//
// A failed check is a contract violation: the compiled program and the
// runtime disagree about what is on the stack. Violations are raised as
// panics carrying a *Violation and turned back into an error at the
// interpreter's entry point by Recover. They abort the pass; nothing retries.
package check

import (
	"errors"
	"fmt"
)

// ErrContractViolation is wrapped by every *Violation.
var ErrContractViolation = errors.New("contract violation")

// Violation describes a single failed check.
type Violation struct {
	Expected string
	Got      string
}

func (v *Violation) Error() string {
	if v.Got == "" {
		return fmt.Sprintf("contract violation: %s", v.Expected)
	}
	return fmt.Sprintf("contract violation: expected %s, got %s", v.Expected, v.Got)
}

func (v *Violation) Unwrap() error {
	return ErrContractViolation
}

// As asserts that value has type T.
func As[T any](value any, what string) T {
	out, ok := value.(T)
	if !ok {
		panic(&Violation{Expected: what, Got: Describe(value)})
	}
	return out
}

// Maybe is As but also accepts nil, returning the zero T.
func Maybe[T any](value any, what string) T {
	if value == nil {
		var zero T
		return zero
	}
	return As[T](value, what+" or nil")
}

// Fail raises a violation for a contract that is not a type assertion.
func Fail(format string, args ...any) {
	panic(&Violation{Expected: fmt.Sprintf(format, args...)})
}

// Assert raises a violation unless cond holds.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		Fail(format, args...)
	}
}

// Recover converts a *Violation panic into *err. Any other panic is
// re-raised untouched. It must be called directly by a deferred function.
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if v, ok := r.(*Violation); ok {
		*err = v
		return
	}
	panic(r)
}

// Describe renders a value's dynamic type for diagnostics.
func Describe(value any) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", value)
}
