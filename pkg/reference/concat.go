package reference

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// ConcatReference joins the normalized string values of its parts with no
// separator, in part order. It recomputes whenever any part changes.
type ConcatReference struct {
	parts []Reference
	value func() any
}

// NewConcatReference creates a concatenation over parts.
func NewConcatReference(env *Env, parts []Reference) *ConcatReference {
	c := &ConcatReference{parts: parts}
	c.value = env.Tracker.Memoize(func() any {
		var sb strings.Builder
		for _, p := range c.parts {
			sb.WriteString(NormalizeStringValue(p.Value()))
		}
		return sb.String()
	}, "concat")
	return c
}

// Value returns the concatenated string.
func (c *ConcatReference) Value() any {
	return c.value()
}

// Get answers `length` and undefined for anything else.
func (c *ConcatReference) Get(key string) Reference {
	return NewPrimitive(c.Value()).Get(key)
}

// ClassListReference joins the non-empty normalized values of its parts
// with single spaces. Its value is nil when every part is empty.
type ClassListReference struct {
	list  []Reference
	value func() any
}

// NewClassListReference creates a class list over list.
func NewClassListReference(env *Env, list []Reference) *ClassListReference {
	c := &ClassListReference{list: list}
	c.value = env.Tracker.Memoize(func() any {
		var out []string
		for _, ref := range c.list {
			if s := NormalizeStringValue(ref.Value()); s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return strings.Join(out, " ")
	}, "class-list")
	return c
}

// Value returns the class string or nil.
func (c *ClassListReference) Value() any {
	return c.value()
}

// Get always returns undefined.
func (c *ClassListReference) Get(string) Reference {
	return UndefinedReference
}

// NormalizeStringValue renders a template value as text. nil renders as the
// empty string.
func NormalizeStringValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return formatFloat(v)
	case float32:
		return formatFloat(float64(v))
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.Abs(f) >= 1e21:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToBool applies template truthiness: nil, false, "", numeric zero, and
// empty collections are false.
func ToBool(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case float64:
		return v != 0 && !math.IsNaN(v)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
