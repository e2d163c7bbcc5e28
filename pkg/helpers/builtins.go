package helpers

import (
	"reflect"
	"strings"

	"github.com/chazu/reflow/pkg/arguments"
	"github.com/chazu/reflow/pkg/interp"
	"github.com/chazu/reflow/pkg/reference"
)

// Callable is the value produced by the fn helper.
type Callable func(args ...any) any

type builtin struct {
	name string
	fn   interp.HelperFunc
}

var builtins = []builtin{
	{"concat", concatHelper},
	{"hash", hashHelper},
	{"array", arrayHelper},
	{"get", getHelper},
	{"eq", eqHelper},
	{"not", notHelper},
	{"if", ifHelper},
	{"class-list", classListHelper},
	{"fn", fnHelper},
}

// BuiltinNames lists the builtins in handle order.
func BuiltinNames() []string {
	names := make([]string, len(builtins))
	for i, b := range builtins {
		names[i] = b.name
	}
	return names
}

// memo wraps compute in a helper root, so the value is only recomputed
// after an argument it read was dirtied.
func memo(vm *interp.VM, name string, compute func() any) (reference.Reference, error) {
	return reference.NewHelperRoot(vm.Env(), compute, name), nil
}

func concatHelper(args *arguments.Captured, vm *interp.VM) (reference.Reference, error) {
	return memo(vm, "concat", func() any {
		var sb strings.Builder
		for _, ref := range args.Positional.References() {
			sb.WriteString(reference.NormalizeStringValue(ref.Value()))
		}
		return sb.String()
	})
}

func hashHelper(args *arguments.Captured, vm *interp.VM) (reference.Reference, error) {
	return memo(vm, "hash", func() any {
		return args.Named.Value()
	})
}

func arrayHelper(args *arguments.Captured, vm *interp.VM) (reference.Reference, error) {
	return memo(vm, "array", func() any {
		return args.Positional.Value()
	})
}

// get reads a dotted path, given as the second argument, off the first.
func getHelper(args *arguments.Captured, vm *interp.VM) (reference.Reference, error) {
	env := vm.Env()
	return memo(vm, "get", func() any {
		obj := args.Positional.At(0).Value()
		path, _ := args.Positional.At(1).Value().(string)
		if obj == nil || path == "" {
			return nil
		}
		return env.Paths.GetPath(obj, path)
	})
}

func eqHelper(args *arguments.Captured, vm *interp.VM) (reference.Reference, error) {
	return memo(vm, "eq", func() any {
		return reflect.DeepEqual(args.Positional.At(0).Value(), args.Positional.At(1).Value())
	})
}

func notHelper(args *arguments.Captured, vm *interp.VM) (reference.Reference, error) {
	return memo(vm, "not", func() any {
		return !reference.ToBool(args.Positional.At(0).Value())
	})
}

// if only reads the branch it returns.
func ifHelper(args *arguments.Captured, vm *interp.VM) (reference.Reference, error) {
	return memo(vm, "if", func() any {
		if reference.ToBool(args.Positional.At(0).Value()) {
			return args.Positional.At(1).Value()
		}
		return args.Positional.At(2).Value()
	})
}

func classListHelper(args *arguments.Captured, vm *interp.VM) (reference.Reference, error) {
	list := reference.NewClassListReference(vm.Env(), args.Positional.References())
	return memo(vm, "class-list", list.Value)
}

// fn binds the arguments after the first to the callable passed first.
// The bound values are read when the result is called, not when it is made.
func fnHelper(args *arguments.Captured, vm *interp.VM) (reference.Reference, error) {
	return memo(vm, "fn", func() any {
		target := toCallable(args.Positional.At(0).Value())
		if target == nil {
			return nil
		}
		bound := args.Positional.References()[1:]
		return Callable(func(rest ...any) any {
			all := make([]any, 0, len(bound)+len(rest))
			for _, ref := range bound {
				all = append(all, ref.Value())
			}
			return target(append(all, rest...)...)
		})
	})
}

func toCallable(v any) Callable {
	switch f := v.(type) {
	case Callable:
		return f
	case func(...any) any:
		return f
	}
	return nil
}
