package bytecode

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// AssembleError reports a problem at a source line.
type AssembleError struct {
	Line int
	Msg  string
}

func (e *AssembleError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

type asmLine struct {
	num    int
	tokens []string
}

type fixup struct {
	line  int
	label string
	set   func(int32)
}

type assembler struct {
	prog    *Program
	labels  map[string]int32
	tables  map[string]int32
	blocks  map[string]int32
	handles map[string]int32
	fixups  []fixup
}

// Assemble parses the textual program format.
//
//	.mode aot|jit
//	.debug
//	.table NAME [SYMBOL...]
//	.block NAME @TARGET %TABLE
//	.handle NAME @TARGET
//	LABEL:
//	OPCODE [OPERAND...]    ; comment
//
// Operands are integers, "quoted" constants, @labels or @0012 instruction
// indices, [a,b] name lists, $registers, %tables, &blocks and #handles.
// Lines may carry a leading instruction index as printed by Disassemble.
func Assemble(r io.Reader) (*Program, error) {
	lines, err := scanLines(r)
	if err != nil {
		return nil, err
	}

	a := &assembler{
		prog:    &Program{Version: ProgramVersion},
		labels:  map[string]int32{},
		tables:  map[string]int32{},
		blocks:  map[string]int32{},
		handles: map[string]int32{},
	}

	// Pass 1: labels and declarations.
	pc := int32(0)
	var code []asmLine
	for _, ln := range lines {
		toks := ln.tokens
		for len(toks) > 0 && strings.HasSuffix(toks[0], ":") {
			label := strings.TrimSuffix(toks[0], ":")
			if _, dup := a.labels[label]; dup {
				return nil, &AssembleError{ln.num, fmt.Sprintf("duplicate label %q", label)}
			}
			a.labels[label] = pc
			toks = toks[1:]
		}
		if len(toks) == 0 {
			continue
		}
		if strings.HasPrefix(toks[0], ".") {
			if err := a.directive(ln.num, toks); err != nil {
				return nil, err
			}
			continue
		}
		code = append(code, asmLine{ln.num, toks})
		pc++
	}
	if a.prog.Mode == ModeAny {
		return nil, &AssembleError{1, "missing .mode directive"}
	}

	// Pass 2: instructions.
	for _, ln := range code {
		if err := a.instruction(ln); err != nil {
			return nil, err
		}
	}

	for _, f := range a.fixups {
		target, ok := a.resolveTarget(f.label)
		if !ok {
			return nil, &AssembleError{f.line, fmt.Sprintf("undefined label %q", f.label)}
		}
		f.set(target)
	}

	if err := a.prog.Validate(); err != nil {
		return nil, err
	}
	return a.prog, nil
}

// AssembleString is Assemble over a string.
func AssembleString(src string) (*Program, error) {
	return Assemble(strings.NewReader(src))
}

func (a *assembler) resolveTarget(label string) (int32, bool) {
	if n, err := strconv.Atoi(label); err == nil {
		return int32(n), true
	}
	target, ok := a.labels[label]
	return target, ok
}

func (a *assembler) directive(line int, toks []string) error {
	fail := func(format string, args ...any) error {
		return &AssembleError{line, fmt.Sprintf(format, args...)}
	}
	switch toks[0] {
	case ".mode":
		if len(toks) != 2 {
			return fail(".mode takes one argument")
		}
		mode, err := ParseMode(toks[1])
		if err != nil {
			return fail("%v", err)
		}
		a.prog.Mode = mode
	case ".debug":
		a.prog.Flags |= FlagDebug
	case ".table":
		if len(toks) < 2 {
			return fail(".table needs a name")
		}
		params := make([]int32, 0, len(toks)-2)
		for _, t := range toks[2:] {
			n, err := strconv.Atoi(t)
			if err != nil || n < 0 {
				return fail("bad table parameter %q", t)
			}
			params = append(params, int32(n))
		}
		a.tables[toks[1]] = a.prog.AddTable(params...)
	case ".block":
		if len(toks) != 4 || !strings.HasPrefix(toks[2], "@") || !strings.HasPrefix(toks[3], "%") {
			return fail(".block takes NAME @TARGET %%TABLE")
		}
		table, ok := a.tables[toks[3][1:]]
		if !ok {
			return fail("undefined table %q", toks[3][1:])
		}
		idx := a.prog.AddBlock(toks[1], 0, table)
		a.blocks[toks[1]] = idx
		a.fixups = append(a.fixups, fixup{line, toks[2][1:], func(v int32) { a.prog.Blocks[idx].Start = v }})
	case ".handle":
		if len(toks) != 3 || !strings.HasPrefix(toks[2], "@") {
			return fail(".handle takes NAME @TARGET")
		}
		h := a.prog.AddHandle(toks[1], 0)
		a.handles[toks[1]] = h
		a.fixups = append(a.fixups, fixup{line, toks[2][1:], func(v int32) { a.prog.Handles[h] = v }})
	default:
		return fail("unknown directive %s", toks[0])
	}
	return nil
}

func (a *assembler) instruction(ln asmLine) error {
	fail := func(format string, args ...any) error {
		return &AssembleError{ln.num, fmt.Sprintf(format, args...)}
	}
	op, ok := LookupOpcode(strings.ToUpper(ln.tokens[0]))
	if !ok {
		return fail("unknown opcode %s", ln.tokens[0])
	}
	info := GetOpcodeInfo(op)
	args := ln.tokens[1:]
	index := a.prog.Emit(op)
	in := &a.prog.Code[index]
	set := func(i int, v int32) {
		switch i {
		case 0:
			in.Op1 = v
		case 1:
			in.Op2 = v
		case 2:
			in.Op3 = v
		}
	}

	ai := 0
	for i, kind := range info.Operands {
		if kind == OperandPrimValue {
			switch PrimitiveKind(in.Op1) {
			case PrimNumber:
				kind = OperandInt
			case PrimString, PrimFloat:
				kind = OperandConst
			default:
				continue
			}
		}
		if ai >= len(args) {
			return fail("%s expects %d operands", info.Name, len(info.Operands))
		}
		tok := args[ai]
		ai++

		switch kind {
		case OperandInt:
			n, err := strconv.ParseInt(tok, 10, 32)
			if err != nil {
				return fail("bad integer %q", tok)
			}
			set(i, int32(n))
		case OperandConst:
			s, err := strconv.Unquote(tok)
			if err != nil {
				return fail("bad string %s", tok)
			}
			set(i, a.prog.AddConstant(s))
		case OperandTarget:
			if !strings.HasPrefix(tok, "@") {
				return fail("jump target must start with @, got %q", tok)
			}
			// Jump targets are always the first operand.
			a.fixups = append(a.fixups, fixup{ln.num, tok[1:], func(v int32) { a.prog.Code[index].Op1 = v }})
		case OperandNames:
			if !strings.HasPrefix(tok, "[") || !strings.HasSuffix(tok, "]") {
				return fail("bad name list %q", tok)
			}
			var names []string
			if body := strings.TrimSpace(tok[1 : len(tok)-1]); body != "" {
				for _, n := range strings.Split(body, ",") {
					names = append(names, strings.TrimSpace(n))
				}
			}
			set(i, a.prog.AddNames(names))
		case OperandRegister:
			reg, ok := ParseRegister(tok)
			if !ok {
				return fail("unknown register %q", tok)
			}
			set(i, int32(reg))
		case OperandTable:
			t, ok := a.tables[strings.TrimPrefix(tok, "%")]
			if !ok {
				return fail("undefined table %q", tok)
			}
			set(i, t)
		case OperandBlock:
			b, ok := a.blocks[strings.TrimPrefix(tok, "&")]
			if !ok {
				return fail("undefined block %q", tok)
			}
			set(i, b)
		case OperandHandle:
			h, ok := a.handles[strings.TrimPrefix(tok, "#")]
			if !ok {
				return fail("undefined handle %q", tok)
			}
			set(i, h)
		case OperandPrimKind:
			k, ok := ParsePrimitiveKind(tok)
			if !ok {
				return fail("unknown primitive kind %q", tok)
			}
			set(i, int32(k))
		case OperandArgsFlags:
			n, err := strconv.Atoi(tok)
			if err != nil || n < 0 {
				return fail("bad positional count %q", tok)
			}
			atNames := false
			if ai < len(args) && args[ai] == "at" {
				atNames = true
				ai++
			}
			set(i, ArgsFlags(n, atNames))
		}
	}
	if ai != len(args) {
		return fail("%s: unexpected operand %q", info.Name, args[ai])
	}
	return nil
}

// scanLines splits source into tokenized lines, dropping comments and any
// leading instruction index.
func scanLines(r io.Reader) ([]asmLine, error) {
	var out []asmLine
	sc := bufio.NewScanner(r)
	num := 0
	for sc.Scan() {
		num++
		toks, err := tokenize(sc.Text())
		if err != nil {
			return nil, &AssembleError{num, err.Error()}
		}
		if len(toks) > 0 && isIndex(toks[0]) {
			toks = toks[1:]
		}
		if len(toks) > 0 {
			out = append(out, asmLine{num, toks})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading assembly: %w", err)
	}
	return out, nil
}

func isIndex(tok string) bool {
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(tok) == 4
}

func tokenize(line string) ([]string, error) {
	var toks []string
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == ';':
			return toks, nil
		case c == '"':
			j := i + 1
			for j < len(line) && line[j] != '"' {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(line) {
				return nil, fmt.Errorf("unterminated string")
			}
			toks = append(toks, line[i:j+1])
			i = j + 1
		case c == '[':
			j := strings.IndexByte(line[i:], ']')
			if j < 0 {
				return nil, fmt.Errorf("unterminated name list")
			}
			toks = append(toks, line[i:i+j+1])
			i += j + 1
		default:
			j := i
			for j < len(line) && line[j] != ' ' && line[j] != '\t' && line[j] != ';' {
				j++
			}
			toks = append(toks, line[i:j])
			i = j
		}
	}
	return toks, nil
}
