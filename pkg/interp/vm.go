// Package interp executes compiled template programs.
//
// The VM is a register machine over one evaluation stack. Registers:
//
//	$pc  next instruction index
//	$ra  return address
//	$fp  frame base (kept on the stack)
//	$sp  stack top (kept on the stack)
//	$s0, $s1, $t0, $t1  saved and temporary scratch registers
//	$v0  result register, written by HELPER
//
// A pass runs to completion, to EXIT, or until a contract violation or a
// helper error aborts it. The VM is single-threaded; one VM must not run
// two passes at once.
package interp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/reflow/pkg/arguments"
	"github.com/chazu/reflow/pkg/bytecode"
	"github.com/chazu/reflow/pkg/check"
	"github.com/chazu/reflow/pkg/reference"
	"github.com/chazu/reflow/pkg/scope"
	"github.com/chazu/reflow/pkg/stack"
	"github.com/chazu/reflow/pkg/validator"
)

var log = commonlog.GetLogger("reflow.interp")

// HelperFunc computes a helper's result from its captured arguments.
type HelperFunc func(args *arguments.Captured, vm *VM) (reference.Reference, error)

// Resolver maps HELPER handles to helper functions.
type Resolver interface {
	ResolveHelper(handle int32) (HelperFunc, error)
}

// ErrUnknownHelper is returned by resolvers for unallocated handles.
var ErrUnknownHelper = errors.New("unknown helper handle")

// Options configures a VM.
type Options struct {
	Env       *reference.Env
	Resolver  Resolver
	StackSize int
	Trace     bool
}

// Result is what a finished pass leaves behind.
type Result struct {
	PassID uuid.UUID
	// V0 is the raw result register.
	V0 any
	// Stack holds the values left on the evaluation stack, bottom first.
	Stack []any
	// Output is the text written by TEXT and APPEND.
	Output string
	// Steps counts executed instructions.
	Steps int
}

// Value returns $v0's value when it holds a reference, else $v0 itself.
func (r Result) Value() any {
	if ref, ok := r.V0.(reference.Reference); ok {
		return ref.Value()
	}
	return r.V0
}

// VM is the interpreter.
type VM struct {
	env      *reference.Env
	resolver Resolver
	trace    bool

	stack *stack.EvaluationStack
	args  *arguments.Arguments

	program *bytecode.Program
	blocks  []*scope.CompilableBlock
	lists   map[int]*listCache
	helpers map[int]*helperSite

	pc, ra             int
	s0, s1, t0, t1, v0 any
	scopes             []*scope.Scope
	out                strings.Builder
	halted             bool
	passID             uuid.UUID
	steps              int
}

// New creates a VM. A nil Env gets a production environment.
func New(opts Options) *VM {
	env := opts.Env
	if env == nil {
		env = reference.NewEnv(validator.NewClock(), reference.Production)
	}
	return &VM{
		env:      env,
		resolver: opts.Resolver,
		trace:    opts.Trace,
		stack:    stack.New(opts.StackSize),
		args:     arguments.New(),
		lists:    map[int]*listCache{},
		helpers:  map[int]*helperSite{},
	}
}

// Env returns the reference environment helpers build references in.
func (vm *VM) Env() *reference.Env { return vm.env }

// Program returns the loaded program.
func (vm *VM) Program() *bytecode.Program { return vm.program }

// Stack returns the evaluation stack. Helpers must not retain windows into it.
func (vm *VM) Stack() *stack.EvaluationStack { return vm.stack }

// Scope returns the current scope.
func (vm *VM) Scope() *scope.Scope {
	check.Assert(len(vm.scopes) > 0, "no current scope")
	return vm.scopes[len(vm.scopes)-1]
}

// PassID identifies the running or last pass.
func (vm *VM) PassID() uuid.UUID { return vm.passID }

// Load validates program and makes it current. Programs containing an
// instruction restricted to the other compile mode are rejected here, once,
// rather than when the instruction runs.
func (vm *VM) Load(p *bytecode.Program) error {
	if p == vm.program {
		return nil
	}
	if p == nil {
		return fmt.Errorf("load: nil program")
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	for pc, in := range p.Code {
		h := dispatch[in.Op]
		if h.fn == nil {
			return fmt.Errorf("load: %04d: no handler for %s", pc, in.Op)
		}
		if h.mode != bytecode.ModeAny && h.mode != p.Mode {
			return fmt.Errorf("load: %04d: %s requires %s mode, program is %s", pc, in.Op, h.mode, p.Mode)
		}
	}

	vm.program = p
	vm.blocks = make([]*scope.CompilableBlock, len(p.Blocks))
	for i, info := range p.Blocks {
		vm.blocks[i] = scope.NewCompilableBlock(int32(i), info, p.Tables[info.Table])
	}
	vm.lists = map[int]*listCache{}
	vm.helpers = map[int]*helperSite{}
	log.Debugf("loaded %s program: %d instructions, %d blocks, %d handles",
		p.Mode, len(p.Code), len(p.Blocks), len(p.Handles))
	return nil
}

// Execute runs program from instruction 0 with root as the initial scope.
// ctx is checked between instructions so a host can abandon a pass.
func (vm *VM) Execute(ctx context.Context, p *bytecode.Program, root *scope.Scope) (Result, error) {
	return vm.ExecuteAt(ctx, p, root, 0)
}

// ExecuteAt is Execute starting at instruction start.
func (vm *VM) ExecuteAt(ctx context.Context, p *bytecode.Program, root *scope.Scope, start int) (Result, error) {
	if err := vm.Load(p); err != nil {
		return Result{}, err
	}
	if root == nil {
		root = scope.Root(reference.UndefinedReference, 0)
	}
	vm.reset(root, start)
	vm.passID = uuid.New()
	log.Infof("pass %s: start at %04d (%s, %d instructions)", vm.passID, start, p.Mode, len(p.Code))

	err := vm.run(ctx)
	res := Result{
		PassID: vm.passID,
		V0:     vm.v0,
		Stack:  vm.stack.Slice(0, vm.stack.Len()),
		Output: vm.out.String(),
		Steps:  vm.steps,
	}
	if err != nil {
		log.Errorf("pass %s: aborted after %d steps: %s", vm.passID, vm.steps, err)
		return res, err
	}
	log.Infof("pass %s: finished in %d steps", vm.passID, vm.steps)
	return res, nil
}

func (vm *VM) reset(root *scope.Scope, start int) {
	vm.stack.Reset()
	vm.pc = start
	vm.ra = -1
	vm.s0, vm.s1, vm.t0, vm.t1, vm.v0 = nil, nil, nil, nil, nil
	vm.scopes = append(vm.scopes[:0], root)
	vm.out.Reset()
	vm.halted = false
	vm.steps = 0
}

// run is the dispatch loop. Contract violations raised by handlers are
// recovered here and reported with the faulting instruction.
func (vm *VM) run(ctx context.Context) (err error) {
	current := -1
	defer func() {
		if err != nil && current >= 0 && errors.Is(err, check.ErrContractViolation) {
			err = fmt.Errorf("%04d %s: %w", current, vm.program.Code[current].Op, err)
		}
	}()
	defer check.Recover(&err)

	code := vm.program.Code
	for !vm.halted && vm.pc >= 0 && vm.pc < len(code) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pass %s interrupted at %04d: %w", vm.passID, vm.pc, err)
		}
		current = vm.pc
		in := code[current]
		vm.pc++
		vm.steps++

		h := dispatch[in.Op]
		if h.fn == nil {
			check.Fail("defined opcode, got 0x%02X", byte(in.Op))
		}
		if h.mode != bytecode.ModeAny && h.mode != vm.program.Mode {
			check.Fail("%s in %s mode, program is %s", in.Op, h.mode, vm.program.Mode)
		}
		if vm.trace && log.AllowLevel(commonlog.Debug) {
			log.Debugf("pass %s: %04d %-32s sp=%d fp=%d", vm.passID, current,
				vm.program.DisassembleInstruction(current), vm.stack.SP(), vm.stack.FP())
		}
		if err := h.fn(vm, in); err != nil {
			return fmt.Errorf("%04d %s: %w", current, in.Op, err)
		}
	}
	return nil
}

// Fetch reads a register.
func (vm *VM) Fetch(r bytecode.Register) any {
	switch r {
	case bytecode.RegPC:
		return vm.pc
	case bytecode.RegRA:
		return vm.ra
	case bytecode.RegFP:
		return vm.stack.FP()
	case bytecode.RegSP:
		return vm.stack.SP()
	case bytecode.RegS0:
		return vm.s0
	case bytecode.RegS1:
		return vm.s1
	case bytecode.RegT0:
		return vm.t0
	case bytecode.RegT1:
		return vm.t1
	case bytecode.RegV0:
		return vm.v0
	}
	check.Fail("known register, got %d", int32(r))
	return nil
}

// LoadRegister writes a register.
func (vm *VM) LoadRegister(r bytecode.Register, v any) {
	switch r {
	case bytecode.RegPC:
		vm.pc = check.As[int](v, "integer $pc")
	case bytecode.RegRA:
		vm.ra = check.As[int](v, "integer $ra")
	case bytecode.RegFP:
		vm.stack.SetFP(check.As[int](v, "integer $fp"))
	case bytecode.RegSP:
		vm.stack.SetSP(check.As[int](v, "integer $sp"))
	case bytecode.RegS0:
		vm.s0 = v
	case bytecode.RegS1:
		vm.s1 = v
	case bytecode.RegT0:
		vm.t0 = v
	case bytecode.RegT1:
		vm.t1 = v
	case bytecode.RegV0:
		vm.v0 = v
	default:
		check.Fail("known register, got %d", int32(r))
	}
}

// pushFrame saves $ra and $fp and starts a frame above them.
func (vm *VM) pushFrame() {
	s := vm.stack
	s.Push(vm.ra)
	s.Push(s.FP())
	s.SetFP(s.SP() - 1)
}

// popFrame discards everything pushed since the matching pushFrame.
func (vm *VM) popFrame() {
	s := vm.stack
	fp := s.FP()
	check.Assert(fp >= 0, "pop of frame with no frame pushed")
	ra := check.As[int](s.Get(0, fp), "saved $ra")
	savedFP := check.As[int](s.Get(1, fp), "saved $fp")
	s.SetSP(fp - 1)
	vm.ra = ra
	s.SetFP(savedFP)
}

func (vm *VM) call(h scope.Handle) {
	vm.ra = vm.pc
	vm.pc = int(h)
}

func (vm *VM) pushScope(s *scope.Scope) {
	vm.scopes = append(vm.scopes, s)
}

func (vm *VM) popScope() {
	check.Assert(len(vm.scopes) > 1, "pop of the root scope")
	vm.scopes[len(vm.scopes)-1] = nil
	vm.scopes = vm.scopes[:len(vm.scopes)-1]
}

// compile resolves a JIT block body, checking that the code it reaches
// before its RETURN is valid for the program's mode.
func (vm *VM) compile(b *scope.CompilableBlock) scope.Handle {
	h, err := b.Compile(func(start int32) error {
		code := vm.program.Code
		for pc := int(start); pc < len(code); pc++ {
			op := code[pc].Op
			if !op.AllowedIn(vm.program.Mode) {
				return fmt.Errorf("%04d: %s not allowed in %s mode", pc, op, vm.program.Mode)
			}
			if op == bytecode.OpReturn {
				return nil
			}
		}
		return fmt.Errorf("body starting at %04d has no RETURN", start)
	})
	if err != nil {
		check.Fail("%v", err)
	}
	log.Debugf("pass %s: compiled block %q at %04d", vm.passID, b.Info.Name, h)
	return h
}

// resolveBody turns a block body into a handle, compiling it if needed.
func (vm *VM) resolveBody(body scope.Body) scope.Handle {
	switch b := body.(type) {
	case scope.Handle:
		return b
	case *scope.CompilableBlock:
		check.Assert(vm.program.Mode == bytecode.ModeJIT, "compilable block in %s program", vm.program.Mode)
		return vm.compile(b)
	}
	check.Fail("block body, got %s", check.Describe(body))
	return 0
}
