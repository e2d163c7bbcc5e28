package data

import (
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Paths reads and writes dotted paths against host values.
type Paths struct{}

// GetPath resolves path against obj one segment at a time. A missing
// segment or a nil intermediate yields nil.
func (Paths) GetPath(obj any, path string) any {
	cur := obj
	for _, seg := range splitPath(path) {
		if cur == nil {
			return nil
		}
		cur = getKey(cur, seg)
	}
	return cur
}

// SetPath writes value at path, resolving every segment but the last as a
// read. It returns value, or nil when the target cannot hold it.
func (p Paths) SetPath(obj any, path string, value any) any {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil
	}

	parent := obj
	if len(segs) > 1 {
		parent = p.GetPath(obj, strings.Join(segs[:len(segs)-1], "."))
	}
	if parent == nil {
		return nil
	}

	if !setKey(parent, segs[len(segs)-1], value) {
		return nil
	}
	return value
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// IsDict reports whether v can be dereferenced by key.
func IsDict(v any) bool {
	switch v.(type) {
	case nil:
		return false
	case *Object, Getter, map[string]any, []any:
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array:
		return true
	case reflect.Pointer:
		return !rv.IsNil() && rv.Elem().Kind() == reflect.Struct
	}
	return false
}

func getKey(obj any, key string) any {
	switch o := obj.(type) {
	case Getter:
		return o.GetKey(key)
	case map[string]any:
		return o[key]
	case []any:
		return indexKey(len(o), key, func(i int) any { return o[i] })
	}

	rv := reflect.ValueOf(obj)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		mv := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil
		}
		return mv.Interface()

	case reflect.Slice, reflect.Array:
		return indexKey(rv.Len(), key, func(i int) any { return rv.Index(i).Interface() })

	case reflect.String:
		if key == "length" {
			return utf8.RuneCountInString(rv.String())
		}

	case reflect.Struct:
		if f := fieldByKey(rv, key); f.IsValid() && f.CanInterface() {
			return f.Interface()
		}
	}
	return nil
}

func indexKey(n int, key string, at func(int) any) any {
	if key == "length" {
		return n
	}
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= n {
		return nil
	}
	return at(i)
}

func setKey(obj any, key string, value any) bool {
	switch o := obj.(type) {
	case Setter:
		o.SetKey(key, value)
		return true
	case map[string]any:
		o[key] = value
		return true
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(o) {
			return false
		}
		o[i] = value
		return true
	}

	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return false
		}
		vv, ok := assignable(value, rv.Type().Elem())
		if !ok {
			return false
		}
		rv.SetMapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()), vv)
		return true

	case reflect.Pointer:
		if rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			return false
		}
		f := fieldByKey(rv.Elem(), key)
		if !f.IsValid() || !f.CanSet() {
			return false
		}
		vv, ok := assignable(value, f.Type())
		if !ok {
			return false
		}
		f.Set(vv)
		return true
	}
	return false
}

func assignable(value any, t reflect.Type) (reflect.Value, bool) {
	if value == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
			return reflect.Zero(t), true
		}
		return reflect.Value{}, false
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(t) {
		return v, true
	}
	if v.Type().ConvertibleTo(t) && v.Kind() != reflect.String && t.Kind() != reflect.String {
		return v.Convert(t), true
	}
	return reflect.Value{}, false
}

// fieldByKey finds an exported field matching key, treating the first rune
// case-insensitively so templates can say `name` for a field `Name`.
func fieldByKey(rv reflect.Value, key string) reflect.Value {
	if key == "" {
		return reflect.Value{}
	}
	if f := rv.FieldByName(key); f.IsValid() {
		return f
	}
	r, size := utf8.DecodeRuneInString(key)
	return rv.FieldByName(string(unicode.ToUpper(r)) + key[size:])
}
