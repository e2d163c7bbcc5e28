package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack and registers (0x00-0x0F)
	// ========================================================================

	OpNop                Opcode = 0x00 // No operation
	OpPop                Opcode = 0x01 // Discard values: POP <count>
	OpDup                Opcode = 0x02 // Push copy of slot: DUP <register> <offset>
	OpFetch              Opcode = 0x03 // Push register: FETCH <register>
	OpLoad               Opcode = 0x04 // Pop into register: LOAD <register>
	OpPrimitive          Opcode = 0x05 // Push raw primitive: PRIMITIVE <kind> <value>
	OpPrimitiveReference Opcode = 0x06 // Wrap raw primitive on top in a reference

	// ========================================================================
	// Control flow (0x10-0x1F)
	// ========================================================================

	OpJump       Opcode = 0x10 // Unconditional jump: JUMP <target>
	OpJumpIf     Opcode = 0x11 // Pop reference, jump if truthy: JUMP_IF <target>
	OpJumpUnless Opcode = 0x12 // Pop reference, jump if falsy: JUMP_UNLESS <target>
	OpPushFrame  Opcode = 0x13 // Save $ra and $fp, start a frame
	OpPopFrame   Opcode = 0x14 // Tear down the frame, restoring $ra and $fp
	OpReturn     Opcode = 0x15 // Jump to $ra
	OpExit       Opcode = 0x16 // Stop the pass

	// ========================================================================
	// Scope and variables (0x20-0x2F)
	// ========================================================================

	OpRootScope         Opcode = 0x20 // Push a fresh root scope: ROOT_SCOPE <symbols>
	OpChildScope        Opcode = 0x21 // Push a child of the current scope
	OpPopScope          Opcode = 0x22 // Pop the current scope
	OpGetVariable       Opcode = 0x23 // Push the reference bound to a symbol: GET_VARIABLE <symbol>
	OpSetVariable       Opcode = 0x24 // Pop a reference into a symbol: SET_VARIABLE <symbol>
	OpResolveMaybeLocal Opcode = 0x25 // Partial local or self property: RESOLVE_MAYBE_LOCAL <name>
	OpGetProperty       Opcode = 0x26 // Pop reference, push reference.Get(key): GET_PROPERTY <key>

	// ========================================================================
	// Blocks (0x30-0x3F)
	// ========================================================================

	OpSetJitBlock         Opcode = 0x30 // Bind popped triple as a block: SET_JIT_BLOCK <symbol> (JIT)
	OpSetAotBlock         Opcode = 0x31 // Bind popped triple as a block: SET_AOT_BLOCK <symbol> (AOT)
	OpGetBlock            Opcode = 0x32 // Push scope block or nil: GET_BLOCK <symbol>
	OpSpreadBlock         Opcode = 0x33 // Pop block, push table/scope/body (JIT)
	OpHasBlock            Opcode = 0x34 // Pop block, push boolean reference
	OpHasBlockParams      Opcode = 0x35 // Pop triple, push whether the table has parameters
	OpPushSymbolTable     Opcode = 0x36 // Push symbol table: PUSH_SYMBOL_TABLE <table>
	OpPushBlockScope      Opcode = 0x37 // Push the current scope
	OpPushCompilableBlock Opcode = 0x38 // Push a lazily compiled body: PUSH_COMPILABLE_BLOCK <block> (JIT)
	OpPushHandle          Opcode = 0x39 // Push a resolved body: PUSH_HANDLE <handle> (AOT)
	OpCompileBlock        Opcode = 0x3A // Pop compilable body, push its handle (JIT)
	OpInvokeYield         Opcode = 0x3B // Pop body/scope/table/args and call the block

	// ========================================================================
	// Arguments (0x40-0x4F)
	// ========================================================================

	OpPushArgs      Opcode = 0x40 // Set up argument windows: PUSH_ARGS <names> <blockNames> <flags>
	OpPushEmptyArgs Opcode = 0x41 // Zero-length argument windows
	OpCaptureArgs   Opcode = 0x42 // Pop arguments, push captured record
	OpPrependArgs   Opcode = 0x43 // Pop captured, pop arguments, prepend positional, push arguments
	OpMergeArgs     Opcode = 0x44 // Pop captured, pop arguments, merge named, push arguments
	OpReallocArgs   Opcode = 0x45 // Grow beneath arguments: REALLOC_ARGS <offset>
	OpPopArgs       Opcode = 0x46 // Pop arguments and clear their windows

	// ========================================================================
	// Expressions (0x50-0x5F)
	// ========================================================================

	OpHelper    Opcode = 0x50 // Invoke helper into $v0: HELPER <helper handle>
	OpConcat    Opcode = 0x51 // Concatenate references: CONCAT <count>
	OpClassList Opcode = 0x52 // Join class names: CLASS_LIST <count>

	// ========================================================================
	// Iteration (0x60-0x6F)
	// ========================================================================

	OpToIterator Opcode = 0x60 // Pop iterable, push item iterator: TO_ITERATOR <keySpec>
	OpIterate    Opcode = 0x61 // Push next item or jump: ITERATE <target>
	OpExitList   Opcode = 0x62 // Pop item iterator

	// ========================================================================
	// Output (0x70-0x7F)
	// ========================================================================

	OpText   Opcode = 0x70 // Write constant text: TEXT <string>
	OpAppend Opcode = 0x71 // Pop reference, write its normalized value
)

// Mode is the compilation mode of a program. Some instructions are only
// valid in one mode.
type Mode uint8

const (
	ModeAny Mode = 0 // Instruction valid in every mode
	ModeAOT Mode = 1 // Ahead-of-time: block bodies are resolved handles
	ModeJIT Mode = 2 // Just-in-time: block bodies compile on first use
)

// String returns the assembler spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeAny:
		return "any"
	case ModeAOT:
		return "aot"
	case ModeJIT:
		return "jit"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// ParseMode parses "aot" or "jit".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "aot":
		return ModeAOT, nil
	case "jit":
		return ModeJIT, nil
	}
	return ModeAny, fmt.Errorf("unknown compile mode %q", s)
}

// Register names a VM register.
type Register int32

const (
	RegPC Register = iota
	RegRA
	RegFP
	RegSP
	RegS0
	RegS1
	RegT0
	RegT1
	RegV0
	registerCount
)

var registerNames = [...]string{"pc", "ra", "fp", "sp", "s0", "s1", "t0", "t1", "v0"}

// String returns the register's name without the `$` sigil.
func (r Register) String() string {
	if r >= 0 && r < registerCount {
		return registerNames[r]
	}
	return fmt.Sprintf("r%d", int32(r))
}

// ParseRegister parses a register name, with or without `$`.
func ParseRegister(s string) (Register, bool) {
	if len(s) > 0 && s[0] == '$' {
		s = s[1:]
	}
	for i, name := range registerNames {
		if name == s {
			return Register(i), true
		}
	}
	return 0, false
}

// PrimitiveKind selects how PRIMITIVE interprets its value operand.
type PrimitiveKind int32

const (
	PrimNumber    PrimitiveKind = iota // value is an int immediate
	PrimString                         // value is a constant index
	PrimFloat                          // value is a constant index holding the float's text
	PrimTrue                           // value unused
	PrimFalse                          // value unused
	PrimNull                           // value unused
	PrimUndefined                      // value unused
	primitiveKindCount
)

var primitiveKindNames = [...]string{"number", "string", "float", "true", "false", "null", "undefined"}

// String returns the assembler spelling of the kind.
func (k PrimitiveKind) String() string {
	if k >= 0 && k < primitiveKindCount {
		return primitiveKindNames[k]
	}
	return fmt.Sprintf("PrimitiveKind(%d)", int32(k))
}

// ParsePrimitiveKind parses the assembler spelling of a kind.
func ParsePrimitiveKind(s string) (PrimitiveKind, bool) {
	for i, name := range primitiveKindNames {
		if name == s {
			return PrimitiveKind(i), true
		}
	}
	return 0, false
}

// ArgsFlags packs PUSH_ARGS's third operand.
func ArgsFlags(positionalCount int, atNames bool) int32 {
	flags := int32(positionalCount) << 4
	if atNames {
		flags |= 0b1000
	}
	return flags
}

// SplitArgsFlags unpacks PUSH_ARGS's third operand.
func SplitArgsFlags(flags int32) (positionalCount int, atNames bool) {
	return int(flags >> 4), flags&0b1000 != 0
}

// OperandKind describes how an operand is interpreted.
type OperandKind uint8

const (
	OperandInt       OperandKind = iota // Plain integer
	OperandConst                        // Index into Constants
	OperandTarget                       // Instruction index
	OperandNames                        // Index into NameLists
	OperandRegister                     // Register number
	OperandTable                        // Index into Tables
	OperandBlock                        // Index into Blocks
	OperandHandle                       // Index into Handles
	OperandPrimKind                     // PrimitiveKind
	OperandPrimValue                    // Depends on the preceding PrimitiveKind
	OperandArgsFlags                    // Packed positional count and at-names bit
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string        // Human-readable name
	StackPop  int           // How many values popped from stack (-1 = variable)
	StackPush int           // How many values pushed to stack
	Operands  []OperandKind // Operand interpretation, at most three
	Mode      Mode          // Compilation mode the opcode is restricted to
}

func ops(kinds ...OperandKind) []OperandKind { return kinds }

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack and registers
	OpNop:                {"NOP", 0, 0, nil, ModeAny},
	OpPop:                {"POP", -1, 0, ops(OperandInt), ModeAny},
	OpDup:                {"DUP", 0, 1, ops(OperandRegister, OperandInt), ModeAny},
	OpFetch:              {"FETCH", 0, 1, ops(OperandRegister), ModeAny},
	OpLoad:               {"LOAD", 1, 0, ops(OperandRegister), ModeAny},
	OpPrimitive:          {"PRIMITIVE", 0, 1, ops(OperandPrimKind, OperandPrimValue), ModeAny},
	OpPrimitiveReference: {"PRIMITIVE_REFERENCE", 1, 1, nil, ModeAny},

	// Control flow
	OpJump:       {"JUMP", 0, 0, ops(OperandTarget), ModeAny},
	OpJumpIf:     {"JUMP_IF", 1, 0, ops(OperandTarget), ModeAny},
	OpJumpUnless: {"JUMP_UNLESS", 1, 0, ops(OperandTarget), ModeAny},
	OpPushFrame:  {"PUSH_FRAME", 0, 2, nil, ModeAny},
	OpPopFrame:   {"POP_FRAME", -1, 0, nil, ModeAny},
	OpReturn:     {"RETURN", 0, 0, nil, ModeAny},
	OpExit:       {"EXIT", 0, 0, nil, ModeAny},

	// Scope
	OpRootScope:         {"ROOT_SCOPE", 0, 0, ops(OperandInt), ModeAny},
	OpChildScope:        {"CHILD_SCOPE", 0, 0, nil, ModeAny},
	OpPopScope:          {"POP_SCOPE", 0, 0, nil, ModeAny},
	OpGetVariable:       {"GET_VARIABLE", 0, 1, ops(OperandInt), ModeAny},
	OpSetVariable:       {"SET_VARIABLE", 1, 0, ops(OperandInt), ModeAny},
	OpResolveMaybeLocal: {"RESOLVE_MAYBE_LOCAL", 0, 1, ops(OperandConst), ModeAny},
	OpGetProperty:       {"GET_PROPERTY", 1, 1, ops(OperandConst), ModeAny},

	// Blocks
	OpSetJitBlock:         {"SET_JIT_BLOCK", 3, 0, ops(OperandInt), ModeJIT},
	OpSetAotBlock:         {"SET_AOT_BLOCK", 3, 0, ops(OperandInt), ModeAOT},
	OpGetBlock:            {"GET_BLOCK", 0, 1, ops(OperandInt), ModeAny},
	OpSpreadBlock:         {"SPREAD_BLOCK", 1, 3, nil, ModeJIT},
	OpHasBlock:            {"HAS_BLOCK", 1, 1, nil, ModeAny},
	OpHasBlockParams:      {"HAS_BLOCK_PARAMS", 3, 1, nil, ModeAny},
	OpPushSymbolTable:     {"PUSH_SYMBOL_TABLE", 0, 1, ops(OperandTable), ModeAny},
	OpPushBlockScope:      {"PUSH_BLOCK_SCOPE", 0, 1, nil, ModeAny},
	OpPushCompilableBlock: {"PUSH_COMPILABLE_BLOCK", 0, 1, ops(OperandBlock), ModeJIT},
	OpPushHandle:          {"PUSH_HANDLE", 0, 1, ops(OperandHandle), ModeAOT},
	OpCompileBlock:        {"COMPILE_BLOCK", 1, 1, nil, ModeJIT},
	OpInvokeYield:         {"INVOKE_YIELD", 4, 2, nil, ModeAny},

	// Arguments
	OpPushArgs:      {"PUSH_ARGS", 0, 1, ops(OperandNames, OperandNames, OperandArgsFlags), ModeAny},
	OpPushEmptyArgs: {"PUSH_EMPTY_ARGS", 0, 1, nil, ModeAny},
	OpCaptureArgs:   {"CAPTURE_ARGS", 1, 1, nil, ModeAny},
	OpPrependArgs:   {"PREPEND_ARGS", 2, 1, nil, ModeAny},
	OpMergeArgs:     {"MERGE_ARGS", 2, 1, nil, ModeAny},
	OpReallocArgs:   {"REALLOC_ARGS", 1, 1, ops(OperandInt), ModeAny},
	OpPopArgs:       {"POP_ARGS", -1, 0, nil, ModeAny},

	// Expressions
	OpHelper:    {"HELPER", 1, 0, ops(OperandInt), ModeAny},
	OpConcat:    {"CONCAT", -1, 1, ops(OperandInt), ModeAny},
	OpClassList: {"CLASS_LIST", -1, 1, ops(OperandInt), ModeAny},

	// Iteration
	OpToIterator: {"TO_ITERATOR", 1, 1, ops(OperandConst), ModeAny},
	OpIterate:    {"ITERATE", 0, 1, ops(OperandTarget), ModeAny},
	OpExitList:   {"EXIT_LIST", 1, 0, nil, ModeAny},

	// Output
	OpText:   {"TEXT", 0, 0, ops(OperandConst), ModeAny},
	OpAppend: {"APPEND", 1, 0, nil, ModeAny},
}

// opcodeByName is the reverse of opcodeInfoTable, for the assembler.
var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// GetOpcodeInfo returns metadata for an opcode.
// Returns an info with Name "UNKNOWN_XX" for undefined opcodes.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// LookupOpcode finds an opcode by its name.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

// String returns the opcode name.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsDefined reports whether op has metadata.
func (op Opcode) IsDefined() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// OperandCount returns the number of operands the opcode uses.
func (op Opcode) OperandCount() int {
	return len(GetOpcodeInfo(op).Operands)
}

// Mode returns the compilation mode the opcode is restricted to.
func (op Opcode) Mode() Mode {
	return GetOpcodeInfo(op).Mode
}

// AllowedIn reports whether op may appear in a program compiled in mode.
func (op Opcode) AllowedIn(mode Mode) bool {
	m := op.Mode()
	return m == ModeAny || m == mode
}

// IsJump returns true if this opcode's first operand is a jump target.
func (op Opcode) IsJump() bool {
	ops := GetOpcodeInfo(op).Operands
	return len(ops) > 0 && ops[0] == OperandTarget
}

// IsBlockOp returns true if this opcode operates on blocks.
func (op Opcode) IsBlockOp() bool {
	return op >= OpSetJitBlock && op <= OpInvokeYield
}

// IsArgsOp returns true if this opcode operates on argument windows.
func (op Opcode) IsArgsOp() bool {
	return op >= OpPushArgs && op <= OpPopArgs
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
