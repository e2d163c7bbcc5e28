package interp

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/chazu/reflow/pkg/arguments"
	"github.com/chazu/reflow/pkg/bytecode"
	"github.com/chazu/reflow/pkg/check"
	"github.com/chazu/reflow/pkg/reference"
	"github.com/chazu/reflow/pkg/scope"
)

type handlerFunc func(vm *VM, in bytecode.Instruction) error

type handler struct {
	fn   handlerFunc
	mode bytecode.Mode
}

// dispatch is indexed by opcode. Empty entries are undefined opcodes.
var dispatch [256]handler

func add(op bytecode.Opcode, mode bytecode.Mode, fn handlerFunc) {
	if dispatch[op].fn != nil {
		panic(fmt.Sprintf("interp: duplicate handler for %s", op))
	}
	dispatch[op] = handler{fn: fn, mode: mode}
}

// primitive is a raw value pushed by PRIMITIVE, before it is wrapped.
type primitive struct {
	kind  bytecode.PrimitiveKind
	value any
}

// listCache keeps an ItemList per TO_ITERATOR site so item identity
// survives across passes over the same iterable.
type listCache struct {
	iterable reference.Reference
	list     *reference.ItemList
}

// helperSite remembers the reference a HELPER site produced, so a later
// pass with the same argument references reuses its memoized value.
type helperSite struct {
	handle int32
	args   *arguments.Captured
	ref    reference.Reference
}

// iterator walks one synced item list.
type iterator struct {
	items []*reference.IterationItemReference
	pos   int
}

func (vm *VM) constant(i int32) string {
	return vm.program.Constants[i]
}

func (vm *VM) popReference(what string) reference.Reference {
	return check.As[reference.Reference](vm.stack.Pop(), what)
}

func (vm *VM) popArgs() *arguments.Arguments {
	return check.As[*arguments.Arguments](vm.stack.Pop(), "arguments")
}

func (vm *VM) popCaptured() *arguments.Captured {
	return check.As[*arguments.Captured](vm.stack.Pop(), "captured arguments")
}

// popTriple pops body, scope and symbol table, in that order. Any of them
// may be nil.
func (vm *VM) popTriple(body scope.Body) (scope.Body, *scope.Scope, *bytecode.SymbolTable) {
	sc := check.Maybe[*scope.Scope](vm.stack.Pop(), "block scope")
	table := check.Maybe[*bytecode.SymbolTable](vm.stack.Pop(), "block symbol table")
	return body, sc, table
}

func (vm *VM) popBody() scope.Body {
	return check.Maybe[scope.Body](vm.stack.Pop(), "block body")
}

func (vm *VM) pushBlock(b *scope.Block) {
	if b == nil {
		vm.stack.Push(nil)
		return
	}
	vm.stack.Push(b)
}

func init() {
	all, aot, jit := bytecode.ModeAny, bytecode.ModeAOT, bytecode.ModeJIT

	// ========================================================================
	// Stack and registers
	// ========================================================================

	add(bytecode.OpNop, all, func(vm *VM, in bytecode.Instruction) error { return nil })

	add(bytecode.OpPop, all, func(vm *VM, in bytecode.Instruction) error {
		vm.stack.PopN(int(in.Op1))
		return nil
	})

	add(bytecode.OpDup, all, func(vm *VM, in bytecode.Instruction) error {
		position := check.As[int](vm.Fetch(bytecode.Register(in.Op1)), "integer register")
		vm.stack.Dup(position - int(in.Op2))
		return nil
	})

	add(bytecode.OpFetch, all, func(vm *VM, in bytecode.Instruction) error {
		vm.stack.Push(vm.Fetch(bytecode.Register(in.Op1)))
		return nil
	})

	add(bytecode.OpLoad, all, func(vm *VM, in bytecode.Instruction) error {
		vm.LoadRegister(bytecode.Register(in.Op1), vm.stack.Pop())
		return nil
	})

	add(bytecode.OpPrimitive, all, func(vm *VM, in bytecode.Instruction) error {
		kind := bytecode.PrimitiveKind(in.Op1)
		p := primitive{kind: kind}
		switch kind {
		case bytecode.PrimNumber:
			p.value = int(in.Op2)
		case bytecode.PrimString:
			p.value = vm.constant(in.Op2)
		case bytecode.PrimFloat:
			f, err := strconv.ParseFloat(vm.constant(in.Op2), 64)
			check.Assert(err == nil, "float constant, got %q", vm.constant(in.Op2))
			p.value = f
		case bytecode.PrimTrue:
			p.value = true
		case bytecode.PrimFalse:
			p.value = false
		}
		vm.stack.Push(p)
		return nil
	})

	add(bytecode.OpPrimitiveReference, all, func(vm *VM, in bytecode.Instruction) error {
		p := check.As[primitive](vm.stack.Pop(), "raw primitive")
		switch p.kind {
		case bytecode.PrimNull:
			vm.stack.Push(reference.NullReference)
		case bytecode.PrimUndefined:
			vm.stack.Push(reference.UndefinedReference)
		default:
			vm.stack.Push(reference.NewPrimitive(p.value))
		}
		return nil
	})

	// ========================================================================
	// Control flow
	// ========================================================================

	add(bytecode.OpJump, all, func(vm *VM, in bytecode.Instruction) error {
		vm.pc = int(in.Op1)
		return nil
	})

	add(bytecode.OpJumpIf, all, func(vm *VM, in bytecode.Instruction) error {
		if reference.ToBool(vm.popReference("condition reference").Value()) {
			vm.pc = int(in.Op1)
		}
		return nil
	})

	add(bytecode.OpJumpUnless, all, func(vm *VM, in bytecode.Instruction) error {
		if !reference.ToBool(vm.popReference("condition reference").Value()) {
			vm.pc = int(in.Op1)
		}
		return nil
	})

	add(bytecode.OpPushFrame, all, func(vm *VM, in bytecode.Instruction) error {
		vm.pushFrame()
		return nil
	})

	add(bytecode.OpPopFrame, all, func(vm *VM, in bytecode.Instruction) error {
		vm.popFrame()
		return nil
	})

	add(bytecode.OpReturn, all, func(vm *VM, in bytecode.Instruction) error {
		vm.pc = vm.ra
		return nil
	})

	add(bytecode.OpExit, all, func(vm *VM, in bytecode.Instruction) error {
		vm.halted = true
		return nil
	})

	// ========================================================================
	// Scope and variables
	// ========================================================================

	add(bytecode.OpRootScope, all, func(vm *VM, in bytecode.Instruction) error {
		vm.pushScope(scope.Sized(int(in.Op1)))
		return nil
	})

	add(bytecode.OpChildScope, all, func(vm *VM, in bytecode.Instruction) error {
		vm.pushScope(vm.Scope().Child())
		return nil
	})

	add(bytecode.OpPopScope, all, func(vm *VM, in bytecode.Instruction) error {
		vm.popScope()
		return nil
	})

	add(bytecode.OpGetVariable, all, func(vm *VM, in bytecode.Instruction) error {
		vm.stack.Push(vm.Scope().Symbol(int(in.Op1)))
		return nil
	})

	add(bytecode.OpSetVariable, all, func(vm *VM, in bytecode.Instruction) error {
		vm.Scope().BindSymbol(int(in.Op1), vm.popReference("variable reference"))
		return nil
	})

	add(bytecode.OpResolveMaybeLocal, all, func(vm *VM, in bytecode.Instruction) error {
		name := vm.constant(in.Op1)
		ref, ok := vm.Scope().Partial(name)
		if !ok {
			ref = vm.Scope().Self().Get(name)
		}
		vm.stack.Push(ref)
		return nil
	})

	add(bytecode.OpGetProperty, all, func(vm *VM, in bytecode.Instruction) error {
		ref := vm.popReference("property parent reference")
		vm.stack.Push(ref.Get(vm.constant(in.Op1)))
		return nil
	})

	// ========================================================================
	// Blocks
	// ========================================================================

	add(bytecode.OpSetJitBlock, jit, func(vm *VM, in bytecode.Instruction) error {
		body := check.Maybe[*scope.CompilableBlock](vm.stack.Pop(), "compilable block")
		var b scope.Body
		if body != nil {
			b = body
		}
		setBlock(vm, int(in.Op1), b)
		return nil
	})

	add(bytecode.OpSetAotBlock, aot, func(vm *VM, in bytecode.Instruction) error {
		v := vm.stack.Pop()
		var b scope.Body
		if v != nil {
			b = check.As[scope.Handle](v, "block handle")
		}
		setBlock(vm, int(in.Op1), b)
		return nil
	})

	add(bytecode.OpGetBlock, all, func(vm *VM, in bytecode.Instruction) error {
		vm.pushBlock(vm.Scope().Block(int(in.Op1)))
		return nil
	})

	add(bytecode.OpSpreadBlock, jit, func(vm *VM, in bytecode.Instruction) error {
		block := check.Maybe[*scope.Block](vm.stack.Pop(), "block")
		if block == nil {
			vm.stack.Push(nil)
			vm.stack.Push(nil)
			vm.stack.Push(nil)
			return nil
		}
		table := block.Table
		vm.stack.Push(&table)
		vm.stack.Push(block.Scope)
		vm.stack.Push(block.Body)
		return nil
	})

	add(bytecode.OpHasBlock, all, func(vm *VM, in bytecode.Instruction) error {
		v := vm.stack.Pop()
		has := false
		switch b := v.(type) {
		case nil:
		case *scope.Block:
			has = b != nil
		default:
			// The undefined sentinel marks "no block" and is never a block.
			if !reference.IsUndefined(v) {
				check.Fail("block or undefined, got %s", check.Describe(v))
			}
		}
		vm.stack.Push(reference.BoolReference(has))
		return nil
	})

	add(bytecode.OpHasBlockParams, all, func(vm *VM, in bytecode.Instruction) error {
		_, _, table := vm.popTriple(vm.popBody())
		vm.stack.Push(reference.BoolReference(table != nil && table.HasParameters()))
		return nil
	})

	add(bytecode.OpPushSymbolTable, all, func(vm *VM, in bytecode.Instruction) error {
		vm.stack.Push(&vm.program.Tables[in.Op1])
		return nil
	})

	add(bytecode.OpPushBlockScope, all, func(vm *VM, in bytecode.Instruction) error {
		vm.stack.Push(vm.Scope())
		return nil
	})

	add(bytecode.OpPushCompilableBlock, jit, func(vm *VM, in bytecode.Instruction) error {
		vm.stack.Push(vm.blocks[in.Op1])
		return nil
	})

	add(bytecode.OpPushHandle, aot, func(vm *VM, in bytecode.Instruction) error {
		vm.stack.Push(scope.Handle(vm.program.Handles[in.Op1]))
		return nil
	})

	add(bytecode.OpCompileBlock, jit, func(vm *VM, in bytecode.Instruction) error {
		body := vm.popBody()
		if body == nil {
			vm.stack.Push(nil)
			return nil
		}
		vm.stack.Push(vm.resolveBody(body))
		return nil
	})

	add(bytecode.OpInvokeYield, all, func(vm *VM, in bytecode.Instruction) error {
		body, sc, table := vm.popTriple(vm.popBody())
		args := vm.popArgs()

		if body == nil || table == nil {
			// Balance the POP_SCOPE and POP_FRAME that follow.
			args.Clear()
			vm.pushFrame()
			if sc == nil {
				sc = vm.Scope()
			}
			vm.pushScope(sc)
			return nil
		}

		check.Assert(sc != nil, "yield to a block without a scope")
		invoking := sc
		if params := table.Parameters; len(params) > 0 {
			invoking = sc.Child()
			for i, symbol := range params {
				invoking.BindSymbol(int(symbol), args.At(i))
			}
		}
		args.Clear()

		h := vm.resolveBody(body)
		vm.pushFrame()
		vm.pushScope(invoking)
		vm.call(h)
		return nil
	})

	// ========================================================================
	// Arguments
	// ========================================================================

	add(bytecode.OpPushArgs, all, func(vm *VM, in bytecode.Instruction) error {
		names := vm.program.NameLists[in.Op1]
		blockNames := vm.program.NameLists[in.Op2]
		positional, atNames := bytecode.SplitArgsFlags(in.Op3)
		vm.args.Setup(vm.stack, names, blockNames, positional, atNames)
		vm.stack.Push(vm.args)
		return nil
	})

	add(bytecode.OpPushEmptyArgs, all, func(vm *VM, in bytecode.Instruction) error {
		vm.stack.Push(vm.args.Empty(vm.stack))
		return nil
	})

	add(bytecode.OpCaptureArgs, all, func(vm *VM, in bytecode.Instruction) error {
		vm.stack.Push(vm.popArgs().Capture())
		return nil
	})

	add(bytecode.OpPrependArgs, all, func(vm *VM, in bytecode.Instruction) error {
		captured := vm.popCaptured()
		args := vm.popArgs()
		args.Realloc(captured.Positional.Len())
		args.Positional.Prepend(captured.Positional)
		vm.stack.Push(args)
		return nil
	})

	add(bytecode.OpMergeArgs, all, func(vm *VM, in bytecode.Instruction) error {
		captured := vm.popCaptured()
		args := vm.popArgs()
		args.Named.Merge(captured.Named)
		vm.stack.Push(args)
		return nil
	})

	add(bytecode.OpReallocArgs, all, func(vm *VM, in bytecode.Instruction) error {
		args := vm.popArgs()
		args.Realloc(int(in.Op1))
		vm.stack.Push(args)
		return nil
	})

	add(bytecode.OpPopArgs, all, func(vm *VM, in bytecode.Instruction) error {
		vm.popArgs().Clear()
		return nil
	})

	// ========================================================================
	// Expressions
	// ========================================================================

	add(bytecode.OpHelper, all, func(vm *VM, in bytecode.Instruction) error {
		check.Assert(vm.resolver != nil, "helper resolver configured")
		fn, err := vm.resolver.ResolveHelper(in.Op1)
		if err != nil {
			return fmt.Errorf("resolving helper %d: %w", in.Op1, err)
		}
		args := vm.popCaptured()
		site := vm.pc - 1
		if cached, ok := vm.helpers[site]; ok && cached.handle == in.Op1 && sameCaptured(cached.args, args) {
			vm.v0 = cached.ref
			return nil
		}
		ref, err := fn(args, vm)
		if err != nil {
			return err
		}
		check.Assert(ref != nil, "helper %d returned a reference", in.Op1)
		vm.helpers[site] = &helperSite{handle: in.Op1, args: args, ref: ref}
		vm.v0 = ref
		return nil
	})

	add(bytecode.OpConcat, all, func(vm *VM, in bytecode.Instruction) error {
		vm.stack.Push(reference.NewConcatReference(vm.env, vm.popReferences(int(in.Op1))))
		return nil
	})

	add(bytecode.OpClassList, all, func(vm *VM, in bytecode.Instruction) error {
		vm.stack.Push(reference.NewClassListReference(vm.env, vm.popReferences(int(in.Op1))))
		return nil
	})

	// ========================================================================
	// Iteration
	// ========================================================================

	add(bytecode.OpToIterator, all, func(vm *VM, in bytecode.Instruction) error {
		iterable := vm.popReference("iterable reference")
		site := vm.pc - 1
		cache, ok := vm.lists[site]
		if !ok || cache.iterable != iterable {
			cache = &listCache{
				iterable: iterable,
				list:     reference.NewItemList(vm.env, iterable, vm.constant(in.Op1)),
			}
			vm.lists[site] = cache
		}
		vm.stack.Push(&iterator{items: cache.list.Sync()})
		return nil
	})

	add(bytecode.OpIterate, all, func(vm *VM, in bytecode.Instruction) error {
		it := check.As[*iterator](vm.stack.Peek(0), "item iterator")
		if it.pos >= len(it.items) {
			vm.pc = int(in.Op1)
			return nil
		}
		vm.stack.Push(it.items[it.pos])
		it.pos++
		return nil
	})

	add(bytecode.OpExitList, all, func(vm *VM, in bytecode.Instruction) error {
		check.As[*iterator](vm.stack.Pop(), "item iterator")
		return nil
	})

	// ========================================================================
	// Output
	// ========================================================================

	add(bytecode.OpText, all, func(vm *VM, in bytecode.Instruction) error {
		vm.out.WriteString(vm.constant(in.Op1))
		return nil
	})

	add(bytecode.OpAppend, all, func(vm *VM, in bytecode.Instruction) error {
		ref := vm.popReference("content reference")
		vm.out.WriteString(reference.NormalizeStringValue(ref.Value()))
		return nil
	})
}

// setBlock pops the scope and table beneath body and binds the triple, or
// a null block when body is absent.
func setBlock(vm *VM, symbol int, body scope.Body) {
	_, sc, table := vm.popTriple(body)
	if body == nil {
		vm.Scope().BindBlock(symbol, nil)
		return
	}
	block := &scope.Block{Body: body, Scope: sc}
	if table != nil {
		block.Table = *table
	}
	vm.Scope().BindBlock(symbol, block)
}

// popReferences pops n references and returns them in push order.
func (vm *VM) popReferences(n int) []reference.Reference {
	check.Assert(n >= 0, "negative reference count %d", n)
	parts := make([]reference.Reference, n)
	for i := n - 1; i >= 0; i-- {
		parts[i] = vm.popReference("reference")
	}
	return parts
}

// sameCaptured reports whether two captured records hold the same argument
// references. Constants compare by value since PRIMITIVE allocates anew on
// every pass.
func sameCaptured(a, b *arguments.Captured) bool {
	if a == b {
		return true
	}
	if !sameReferences(a.Positional.References(), b.Positional.References()) {
		return false
	}
	an, bn := a.Named.Names(), b.Named.Names()
	if len(an) != len(bn) {
		return false
	}
	for i := range an {
		if an[i] != bn[i] {
			return false
		}
	}
	return sameReferences(a.Named.References(), b.Named.References())
}

func sameReferences(a, b []reference.Reference) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		pa, ok := a[i].(*reference.PrimitiveReference)
		if !ok {
			return false
		}
		pb, ok := b[i].(*reference.PrimitiveReference)
		if !ok {
			return false
		}
		va, vb := pa.Value(), pb.Value()
		if va == nil || vb == nil || reflect.TypeOf(va) != reflect.TypeOf(vb) ||
			!reflect.ValueOf(va).Comparable() || va != vb {
			return false
		}
	}
	return true
}
