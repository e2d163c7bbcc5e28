package bytecode

import (
	"reflect"
	"strings"
	"testing"
)

const yieldSource = `
; yields "hi" into a block that prints its parameter
.mode aot
.table t0 1
.handle main @start
.handle body @body

start:
    ROOT_SCOPE 2
    PUSH_SYMBOL_TABLE %t0
    PUSH_BLOCK_SCOPE
    PUSH_HANDLE #body
    SET_AOT_BLOCK 1
    PRIMITIVE string "hi; there"   ; semicolon inside a string
    PRIMITIVE_REFERENCE
    PUSH_ARGS [] [] 1
    GET_BLOCK 1
    JUMP @done
body:
    GET_VARIABLE 1
    APPEND
    RETURN
done:
    EXIT
`

func TestAssemble(t *testing.T) {
	p, err := AssembleString(yieldSource)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if p.Mode != ModeAOT {
		t.Errorf("Mode = %v, want aot", p.Mode)
	}
	if len(p.Code) != 14 {
		t.Fatalf("len(Code) = %d, want 14", len(p.Code))
	}
	if len(p.Handles) != 2 || p.Handles[0] != 0 || p.Handles[1] != 10 {
		t.Errorf("Handles = %v, want [0 10]", p.Handles)
	}
	if p.Code[9].Op != OpJump || p.Code[9].Op1 != 13 {
		t.Errorf("Code[9] = %+v, want JUMP 13", p.Code[9])
	}
	if s, _ := p.GetConstant(p.Code[5].Op2); s != "hi; there" {
		t.Errorf("string constant = %q", s)
	}
	if n, at := SplitArgsFlags(p.Code[7].Op3); n != 1 || at {
		t.Errorf("PUSH_ARGS flags = %d, %v", n, at)
	}
	if !reflect.DeepEqual(p.Tables, []SymbolTable{{Parameters: []int32{1}}}) {
		t.Errorf("Tables = %+v", p.Tables)
	}
}

func TestAssembleDisassembleRoundTrip(t *testing.T) {
	p, err := AssembleString(yieldSource)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	again, err := AssembleString(p.Disassemble())
	if err != nil {
		t.Fatalf("re-assembling listing: %v\n%s", err, p.Disassemble())
	}

	if !reflect.DeepEqual(p.Code, again.Code) {
		t.Errorf("Code differs after round trip:\n%v\n%v", p.Code, again.Code)
	}
	if !reflect.DeepEqual(p.Constants, again.Constants) {
		t.Errorf("Constants = %v, want %v", again.Constants, p.Constants)
	}
	if !reflect.DeepEqual(p.Handles, again.Handles) {
		t.Errorf("Handles = %v, want %v", again.Handles, p.Handles)
	}
	if !reflect.DeepEqual(p.Tables, again.Tables) {
		t.Errorf("Tables = %v, want %v", again.Tables, p.Tables)
	}
}

func TestAssembleJIT(t *testing.T) {
	src := `
.mode jit
.debug
.table t0
.block each @body %t0
    PUSH_SYMBOL_TABLE %t0
    PUSH_BLOCK_SCOPE
    PUSH_COMPILABLE_BLOCK &each
    SET_JIT_BLOCK 1
    GET_BLOCK 1
    SPREAD_BLOCK
    PUSH_ARGS [@class,title] [] 0 at
    EXIT
body:
    RETURN
`
	p, err := AssembleString(src)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if p.Flags&FlagDebug == 0 {
		t.Error(".debug did not set FlagDebug")
	}
	if len(p.Blocks) != 1 || p.Blocks[0].Start != 8 || p.Blocks[0].Name != "each" {
		t.Errorf("Blocks = %+v", p.Blocks)
	}
	names, _ := p.GetNames(p.Code[6].Op1)
	if !reflect.DeepEqual(names, []string{"@class", "title"}) {
		t.Errorf("names = %v", names)
	}
	if _, at := SplitArgsFlags(p.Code[6].Op3); !at {
		t.Error("PUSH_ARGS should carry the at-names flag")
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing mode", "EXIT", "missing .mode"},
		{"unknown opcode", ".mode aot\nFROB", "line 2: unknown opcode FROB"},
		{"operand count", ".mode aot\nPOP", "POP expects 1 operands"},
		{"extra operand", ".mode aot\nEXIT 1", "unexpected operand"},
		{"bad label", ".mode aot\nJUMP @nowhere", "undefined label"},
		{"duplicate label", ".mode aot\na:\na:\nEXIT", "duplicate label"},
		{"wrong mode", ".mode aot\nSPREAD_BLOCK", "only valid in jit mode"},
		{"bad string", ".mode aot\nTEXT \"open", "unterminated string"},
		{"bad register", ".mode aot\nFETCH $zz", "unknown register"},
		{"undefined handle", ".mode aot\nPUSH_HANDLE #x", "undefined handle"},
		{"bad mode", ".mode fast", "unknown compile mode"},
	}

	for _, tt := range tests {
		_, err := AssembleString(tt.src)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: Assemble() = %v, want error containing %q", tt.name, err, tt.want)
		}
	}
}
