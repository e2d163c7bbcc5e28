package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Disassemble returns a human-readable listing of the program. The listing
// is valid assembler input: Assemble(p.Disassemble()) yields an equivalent
// program.
func (p *Program) Disassemble() string {
	return p.DisassembleWithName("")
}

// DisassembleWithName returns a listing with a name header.
func (p *Program) DisassembleWithName(name string) string {
	var sb strings.Builder

	// Header
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Reflow Bytecode v%d\n", p.Version))
	sb.WriteString(fmt.Sprintf("; Flags: 0x%04X", p.Flags))
	if p.Flags&FlagDebug != 0 {
		sb.WriteString(" [DEBUG]")
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf(".mode %s\n", p.Mode))
	if p.Flags&FlagDebug != 0 {
		sb.WriteString(".debug\n")
	}

	// Constants are rebuilt from operands by the assembler, so they are
	// listed as comments only.
	if len(p.Constants) > 0 {
		sb.WriteString("\n; Constants:\n")
		for i, s := range p.Constants {
			display := s
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %q\n", i, display))
		}
	}

	if len(p.Tables) > 0 {
		sb.WriteString("\n")
		for i, t := range p.Tables {
			sb.WriteString(fmt.Sprintf(".table t%d", i))
			for _, param := range t.Parameters {
				sb.WriteString(fmt.Sprintf(" %d", param))
			}
			sb.WriteString("\n")
		}
	}
	if len(p.Blocks) > 0 {
		sb.WriteString("\n")
		for i, b := range p.Blocks {
			sb.WriteString(fmt.Sprintf(".block %s @%04d %%t%d\n", p.blockName(int32(i)), b.Start, b.Table))
		}
	}
	if len(p.Handles) > 0 {
		sb.WriteString("\n")
		for h, start := range p.Handles {
			sb.WriteString(fmt.Sprintf(".handle %s @%04d\n", p.HandleName(int32(h)), start))
		}
	}

	// Code section
	sb.WriteString("\n; Code:\n")
	for pc := range p.Code {
		sb.WriteString(fmt.Sprintf("%04d  %s\n", pc, p.disassembleInstruction(pc)))
	}

	return sb.String()
}

func (p *Program) blockName(i int32) string {
	if i >= 0 && int(i) < len(p.Blocks) && p.Blocks[i].Name != "" {
		return p.Blocks[i].Name
	}
	return fmt.Sprintf("b%d", i)
}

// DisassembleInstruction returns a single instruction in assembler syntax.
func (p *Program) DisassembleInstruction(pc int) string {
	if pc < 0 || pc >= len(p.Code) {
		return "<end of code>"
	}
	return p.disassembleInstruction(pc)
}

func (p *Program) disassembleInstruction(pc int) string {
	in := p.Code[pc]
	info := GetOpcodeInfo(in.Op)
	parts := []string{info.Name}
	for i, kind := range info.Operands {
		if s := p.formatOperand(in, i, kind); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func (p *Program) formatOperand(in Instruction, i int, kind OperandKind) string {
	v := in.Operand(i)
	switch kind {
	case OperandConst:
		if s, err := p.GetConstant(v); err == nil {
			return strconv.Quote(s)
		}
		return fmt.Sprintf("<const %d>", v)
	case OperandTarget:
		return fmt.Sprintf("@%04d", v)
	case OperandNames:
		names, err := p.GetNames(v)
		if err != nil {
			return fmt.Sprintf("<names %d>", v)
		}
		return "[" + strings.Join(names, ",") + "]"
	case OperandRegister:
		return "$" + Register(v).String()
	case OperandTable:
		return fmt.Sprintf("%%t%d", v)
	case OperandBlock:
		return "&" + p.blockName(v)
	case OperandHandle:
		return "#" + p.HandleName(v)
	case OperandPrimKind:
		return PrimitiveKind(v).String()
	case OperandPrimValue:
		switch PrimitiveKind(in.Op1) {
		case PrimNumber:
			return strconv.Itoa(int(v))
		case PrimString, PrimFloat:
			return p.formatOperand(in, i, OperandConst)
		}
		return ""
	case OperandArgsFlags:
		positional, atNames := SplitArgsFlags(v)
		if atNames {
			return fmt.Sprintf("%d at", positional)
		}
		return strconv.Itoa(positional)
	}
	return strconv.Itoa(int(v))
}

// DisassembleToLines returns the code section as a slice of lines.
func (p *Program) DisassembleToLines() []string {
	lines := make([]string, len(p.Code))
	for pc := range p.Code {
		lines[pc] = fmt.Sprintf("%04d  %s", pc, p.disassembleInstruction(pc))
	}
	return lines
}

// InstructionCount returns the number of instructions in the program.
func (p *Program) InstructionCount() int {
	return len(p.Code)
}
