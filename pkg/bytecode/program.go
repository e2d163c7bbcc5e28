package bytecode

import "fmt"

// ProgramVersion is the current program format version.
// Increment when making incompatible changes to the format.
const ProgramVersion uint16 = 1

// ProgramMagic opens every serialized program: "RFBC" (Reflow ByteCode).
var ProgramMagic = []byte{'R', 'F', 'B', 'C'}

// ProgramFlags contains compilation flags for a program.
type ProgramFlags uint16

const (
	// FlagDebug indicates block names are meaningful for diagnostics.
	FlagDebug ProgramFlags = 1 << 0
)

// Instruction is a fixed-arity instruction: an opcode and up to three
// integer operands. Unused operands are zero.
type Instruction struct {
	Op  Opcode `cbor:"1,keyasint"`
	Op1 int32  `cbor:"2,keyasint,omitempty"`
	Op2 int32  `cbor:"3,keyasint,omitempty"`
	Op3 int32  `cbor:"4,keyasint,omitempty"`
}

// Operand returns operand i (0-based).
func (in Instruction) Operand(i int) int32 {
	switch i {
	case 0:
		return in.Op1
	case 1:
		return in.Op2
	case 2:
		return in.Op3
	}
	return 0
}

// SymbolTable describes a block's parameters: the scope symbols the
// yielded positional arguments bind to.
type SymbolTable struct {
	Parameters []int32 `cbor:"1,keyasint,omitempty"`
}

// HasParameters reports whether the table declares any parameters.
func (t SymbolTable) HasParameters() bool {
	return len(t.Parameters) > 0
}

// BlockInfo describes a block body available to JIT compilation.
// Start is the instruction index of the body; Table indexes Tables.
type BlockInfo struct {
	Name  string `cbor:"1,keyasint,omitempty"`
	Start int32  `cbor:"2,keyasint"`
	Table int32  `cbor:"3,keyasint"`
}

// Program is a compiled template program. It is immutable once handed to
// an interpreter.
type Program struct {
	// Header
	Version uint16       `cbor:"1,keyasint"`
	Flags   ProgramFlags `cbor:"2,keyasint,omitempty"`
	Mode    Mode         `cbor:"3,keyasint"`

	// Code
	Code []Instruction `cbor:"4,keyasint"`

	// Pools referenced by operands
	Constants []string      `cbor:"5,keyasint,omitempty"`
	NameLists [][]string    `cbor:"6,keyasint,omitempty"`
	Tables    []SymbolTable `cbor:"7,keyasint,omitempty"`
	Blocks    []BlockInfo   `cbor:"8,keyasint,omitempty"`
	Handles   []int32       `cbor:"9,keyasint,omitempty"`

	// HandleNames are assembler labels for Handles, kept for listings.
	HandleNames []string `cbor:"10,keyasint,omitempty"`
}

// NewProgram creates an empty program compiled in mode.
func NewProgram(mode Mode) *Program {
	return &Program{
		Version: ProgramVersion,
		Mode:    mode,
	}
}

// AddConstant adds a string constant and returns its index.
// If the constant already exists, returns the existing index.
func (p *Program) AddConstant(value string) int32 {
	for i, c := range p.Constants {
		if c == value {
			return int32(i)
		}
	}
	p.Constants = append(p.Constants, value)
	return int32(len(p.Constants) - 1)
}

// GetConstant returns the constant at the given index.
func (p *Program) GetConstant(index int32) (string, error) {
	if index < 0 || int(index) >= len(p.Constants) {
		return "", fmt.Errorf("constant index %d out of range [0,%d)", index, len(p.Constants))
	}
	return p.Constants[index], nil
}

// AddNames adds a name list and returns its index. Equal lists share an index.
func (p *Program) AddNames(names []string) int32 {
	for i, list := range p.NameLists {
		if equalNames(list, names) {
			return int32(i)
		}
	}
	p.NameLists = append(p.NameLists, append([]string(nil), names...))
	return int32(len(p.NameLists) - 1)
}

// GetNames returns the name list at the given index.
func (p *Program) GetNames(index int32) ([]string, error) {
	if index < 0 || int(index) >= len(p.NameLists) {
		return nil, fmt.Errorf("name list index %d out of range [0,%d)", index, len(p.NameLists))
	}
	return p.NameLists[index], nil
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AddTable adds a symbol table and returns its index.
func (p *Program) AddTable(params ...int32) int32 {
	p.Tables = append(p.Tables, SymbolTable{Parameters: append([]int32(nil), params...)})
	return int32(len(p.Tables) - 1)
}

// AddBlock registers a compilable block body and returns its index.
func (p *Program) AddBlock(name string, start, table int32) int32 {
	p.Blocks = append(p.Blocks, BlockInfo{Name: name, Start: start, Table: table})
	return int32(len(p.Blocks) - 1)
}

// AddHandle registers a resolved entry point and returns its handle.
func (p *Program) AddHandle(name string, start int32) int32 {
	p.Handles = append(p.Handles, start)
	p.HandleNames = append(p.HandleNames, name)
	return int32(len(p.Handles) - 1)
}

// HandleName returns the label of handle h, or a synthetic name.
func (p *Program) HandleName(h int32) string {
	if h >= 0 && int(h) < len(p.HandleNames) && p.HandleNames[h] != "" {
		return p.HandleNames[h]
	}
	return fmt.Sprintf("h%d", h)
}

// Emit appends an instruction and returns its index.
func (p *Program) Emit(op Opcode, operands ...int32) int {
	in := Instruction{Op: op}
	for i, v := range operands {
		switch i {
		case 0:
			in.Op1 = v
		case 1:
			in.Op2 = v
		case 2:
			in.Op3 = v
		default:
			panic(fmt.Sprintf("%s: too many operands (%d)", op, len(operands)))
		}
	}
	p.Code = append(p.Code, in)
	return len(p.Code) - 1
}

// EmitConstant emits PRIMITIVE string for value followed by
// PRIMITIVE_REFERENCE.
func (p *Program) EmitConstant(value string) int {
	at := p.Emit(OpPrimitive, int32(PrimString), p.AddConstant(value))
	p.Emit(OpPrimitiveReference)
	return at
}

// EmitJump emits a jump instruction with a placeholder target.
// Returns the instruction index to patch later.
func (p *Program) EmitJump(op Opcode) int {
	return p.Emit(op, -1)
}

// PatchJump points the jump at index to the next emitted instruction.
func (p *Program) PatchJump(index int) {
	p.PatchJumpTo(index, len(p.Code))
}

// PatchJumpTo points the jump at index to target.
func (p *Program) PatchJumpTo(index, target int) {
	p.Code[index].Op1 = int32(target)
}

// CurrentOffset returns the index the next instruction will occupy.
func (p *Program) CurrentOffset() int {
	return len(p.Code)
}

// Validate checks that every instruction is defined, allowed in the
// program's mode, and that every pool operand is in range.
func (p *Program) Validate() error {
	if p.Mode != ModeAOT && p.Mode != ModeJIT {
		return fmt.Errorf("program has no compile mode")
	}
	for pc, in := range p.Code {
		if !in.Op.IsDefined() {
			return fmt.Errorf("%04d: undefined opcode 0x%02X", pc, byte(in.Op))
		}
		if !in.Op.AllowedIn(p.Mode) {
			return fmt.Errorf("%04d: %s is only valid in %s mode, program is %s", pc, in.Op, in.Op.Mode(), p.Mode)
		}
		info := GetOpcodeInfo(in.Op)
		for i, kind := range info.Operands {
			if err := p.checkOperand(in, i, kind); err != nil {
				return fmt.Errorf("%04d: %s operand %d: %w", pc, in.Op, i+1, err)
			}
		}
	}
	for i, b := range p.Blocks {
		if b.Start < 0 || int(b.Start) >= len(p.Code) {
			return fmt.Errorf("block %d (%s) starts outside code", i, b.Name)
		}
		if b.Table < 0 || int(b.Table) >= len(p.Tables) {
			return fmt.Errorf("block %d (%s) names missing table %d", i, b.Name, b.Table)
		}
	}
	for h, start := range p.Handles {
		if start < 0 || int(start) >= len(p.Code) {
			return fmt.Errorf("handle %d starts outside code", h)
		}
	}
	return nil
}

func (p *Program) checkOperand(in Instruction, i int, kind OperandKind) error {
	v := in.Operand(i)
	inRange := func(n int, what string) error {
		if v < 0 || int(v) >= n {
			return fmt.Errorf("%s %d out of range [0,%d)", what, v, n)
		}
		return nil
	}
	switch kind {
	case OperandConst:
		return inRange(len(p.Constants), "constant")
	case OperandTarget:
		// One past the end is a valid target: falling off the end exits.
		if v < 0 || int(v) > len(p.Code) {
			return fmt.Errorf("jump target %d outside code", v)
		}
	case OperandNames:
		return inRange(len(p.NameLists), "name list")
	case OperandRegister:
		if v < 0 || Register(v) >= registerCount {
			return fmt.Errorf("unknown register %d", v)
		}
	case OperandTable:
		return inRange(len(p.Tables), "symbol table")
	case OperandBlock:
		return inRange(len(p.Blocks), "block")
	case OperandHandle:
		return inRange(len(p.Handles), "handle")
	case OperandPrimKind:
		if v < 0 || PrimitiveKind(v) >= primitiveKindCount {
			return fmt.Errorf("unknown primitive kind %d", v)
		}
	case OperandPrimValue:
		switch PrimitiveKind(in.Op1) {
		case PrimString, PrimFloat:
			return inRange(len(p.Constants), "constant")
		}
	case OperandInt:
		if v < 0 {
			return fmt.Errorf("negative operand %d", v)
		}
	case OperandArgsFlags:
		if v < 0 {
			return fmt.Errorf("negative argument flags %d", v)
		}
	}
	return nil
}
