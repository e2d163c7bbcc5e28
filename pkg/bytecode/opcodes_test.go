package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
		if len(info.Operands) > 3 {
			t.Errorf("%s has %d operands, max is 3", info.Name, len(info.Operands))
		}
	}
}

func TestOpcodeNamesAreUnique(t *testing.T) {
	seen := map[string]Opcode{}
	for _, op := range AllOpcodes() {
		name := op.String()
		if prev, dup := seen[name]; dup {
			t.Errorf("opcodes 0x%02X and 0x%02X share name %s", byte(prev), byte(op), name)
		}
		seen[name] = op
		if got, ok := LookupOpcode(name); !ok || got != op {
			t.Errorf("LookupOpcode(%q) = %v, %v; want %v", name, got, ok, op)
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	if count := OpcodeCount(); count != len(AllOpcodes()) {
		t.Errorf("OpcodeCount() = %d, want %d", count, len(AllOpcodes()))
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "NOP"},
		{OpPop, "POP"},
		{OpDup, "DUP"},
		{OpPrimitiveReference, "PRIMITIVE_REFERENCE"},
		{OpJumpUnless, "JUMP_UNLESS"},
		{OpGetVariable, "GET_VARIABLE"},
		{OpSetJitBlock, "SET_JIT_BLOCK"},
		{OpSetAotBlock, "SET_AOT_BLOCK"},
		{OpInvokeYield, "INVOKE_YIELD"},
		{OpPushArgs, "PUSH_ARGS"},
		{OpHelper, "HELPER"},
		{OpConcat, "CONCAT"},
	}

	for _, tt := range tests {
		got := tt.op.String()
		if got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	op := Opcode(0xEE) // Not defined
	got := op.String()
	if !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", got)
	}
	if op.IsDefined() {
		t.Error("0xEE should not be defined")
	}
}

func TestOpcodeOperandCount(t *testing.T) {
	tests := []struct {
		op   Opcode
		want int
	}{
		{OpNop, 0},
		{OpPop, 1},
		{OpDup, 2},
		{OpPrimitive, 2},
		{OpJump, 1},
		{OpPushArgs, 3},
		{OpHasBlockParams, 0},
		{OpHelper, 1},
	}

	for _, tt := range tests {
		got := tt.op.OperandCount()
		if got != tt.want {
			t.Errorf("%s.OperandCount() = %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestOpcodeModes(t *testing.T) {
	jitOnly := []Opcode{OpSetJitBlock, OpSpreadBlock, OpPushCompilableBlock, OpCompileBlock}
	aotOnly := []Opcode{OpSetAotBlock, OpPushHandle}

	for _, op := range jitOnly {
		if !op.AllowedIn(ModeJIT) || op.AllowedIn(ModeAOT) {
			t.Errorf("%s should be JIT-only", op)
		}
	}
	for _, op := range aotOnly {
		if !op.AllowedIn(ModeAOT) || op.AllowedIn(ModeJIT) {
			t.Errorf("%s should be AOT-only", op)
		}
	}
	for _, op := range []Opcode{OpHasBlock, OpGetBlock, OpInvokeYield, OpHelper} {
		if !op.AllowedIn(ModeAOT) || !op.AllowedIn(ModeJIT) {
			t.Errorf("%s should be allowed in both modes", op)
		}
	}
}

func TestOpcodeCategories(t *testing.T) {
	if !OpJump.IsJump() || !OpIterate.IsJump() || OpPop.IsJump() {
		t.Error("IsJump misclassifies")
	}
	if !OpHasBlock.IsBlockOp() || OpHelper.IsBlockOp() {
		t.Error("IsBlockOp misclassifies")
	}
	if !OpMergeArgs.IsArgsOp() || OpConcat.IsArgsOp() {
		t.Error("IsArgsOp misclassifies")
	}
}

func TestArgsFlags(t *testing.T) {
	tests := []struct {
		positional int
		atNames    bool
	}{
		{0, false},
		{3, false},
		{2, true},
		{100, true},
	}
	for _, tt := range tests {
		n, at := SplitArgsFlags(ArgsFlags(tt.positional, tt.atNames))
		if n != tt.positional || at != tt.atNames {
			t.Errorf("SplitArgsFlags(ArgsFlags(%d, %v)) = %d, %v", tt.positional, tt.atNames, n, at)
		}
	}
}

func TestRegisterNames(t *testing.T) {
	for r := RegPC; r < registerCount; r++ {
		got, ok := ParseRegister("$" + r.String())
		if !ok || got != r {
			t.Errorf("ParseRegister($%s) = %v, %v", r, got, ok)
		}
	}
	if _, ok := ParseRegister("$x9"); ok {
		t.Error("ParseRegister should reject unknown names")
	}
}
