package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Serialize encodes the program to bytes.
//
// Format:
//
//	[magic:4 "RFBC"] [version:2] [flags:2] [mode:1]
//	[code_count:4] [instructions: op:1 op1:4 op2:4 op3:4 ...]
//	[const_count:4] [constants: len:4 bytes...]
//	[names_count:4] [lists: count:4 (len:4 bytes...)...]
//	[table_count:4] [tables: count:4 params:4...]
//	[block_count:4] [blocks: start:4 table:4 name_len:4 name...]
//	[handle_count:4] [handles: start:4 name_len:4 name...]
//
// All integers are big-endian.
func (p *Program) Serialize() ([]byte, error) {
	buf := make([]byte, 0, 9+len(p.Code)*13+len(p.Constants)*16+64)

	buf = append(buf, ProgramMagic...)
	buf = binary.BigEndian.AppendUint16(buf, p.Version)
	buf = binary.BigEndian.AppendUint16(buf, uint16(p.Flags))
	buf = append(buf, byte(p.Mode))

	u32 := func(v int) { buf = binary.BigEndian.AppendUint32(buf, uint32(v)) }
	i32 := func(v int32) { buf = binary.BigEndian.AppendUint32(buf, uint32(v)) }
	str := func(s string) {
		u32(len(s))
		buf = append(buf, s...)
	}

	// Code section
	u32(len(p.Code))
	for _, in := range p.Code {
		buf = append(buf, byte(in.Op))
		i32(in.Op1)
		i32(in.Op2)
		i32(in.Op3)
	}

	// Constants
	u32(len(p.Constants))
	for _, s := range p.Constants {
		str(s)
	}

	// Name lists
	u32(len(p.NameLists))
	for _, list := range p.NameLists {
		u32(len(list))
		for _, s := range list {
			str(s)
		}
	}

	// Symbol tables
	u32(len(p.Tables))
	for _, t := range p.Tables {
		u32(len(t.Parameters))
		for _, param := range t.Parameters {
			i32(param)
		}
	}

	// Blocks
	u32(len(p.Blocks))
	for _, b := range p.Blocks {
		i32(b.Start)
		i32(b.Table)
		str(b.Name)
	}

	// Handles
	u32(len(p.Handles))
	for h, start := range p.Handles {
		i32(start)
		str(p.HandleName(int32(h)))
	}

	return buf, nil
}

// decoder reads big-endian fields and remembers the first failure.
type decoder struct {
	data []byte
	pos  int
	err  error
}

func (d *decoder) need(n int, what string) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || d.pos+n > len(d.data) {
		d.err = fmt.Errorf("unexpected end of bytecode reading %s at pos %d", what, d.pos)
		return false
	}
	return true
}

func (d *decoder) readByte(what string) byte {
	if !d.need(1, what) {
		return 0
	}
	b := d.data[d.pos]
	d.pos++
	return b
}

func (d *decoder) u32(what string) uint32 {
	if !d.need(4, what) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v
}

func (d *decoder) i32(what string) int32 {
	return int32(d.u32(what))
}

// count reads a length prefix, bounding it by the bytes left so corrupt
// input cannot force a huge allocation.
func (d *decoder) count(what string, minSize int) int {
	n := int(d.u32(what + " count"))
	if d.err == nil && n*minSize > len(d.data)-d.pos {
		d.err = fmt.Errorf("%s count %d exceeds remaining %d bytes", what, n, len(d.data)-d.pos)
		return 0
	}
	return n
}

func (d *decoder) str(what string) string {
	n := int(d.u32(what + " length"))
	if !d.need(n, what) {
		return ""
	}
	s := string(d.data[d.pos : d.pos+n])
	d.pos += n
	return s
}

// Deserialize decodes a program from bytes.
func Deserialize(data []byte) (*Program, error) {
	if len(data) < 9 {
		return nil, fmt.Errorf("bytecode too short: need at least 9 bytes, got %d", len(data))
	}

	// Check magic
	if string(data[0:4]) != string(ProgramMagic) {
		return nil, fmt.Errorf("invalid bytecode magic: expected %q, got %q", ProgramMagic, data[0:4])
	}

	p := &Program{
		Version: binary.BigEndian.Uint16(data[4:6]),
		Flags:   ProgramFlags(binary.BigEndian.Uint16(data[6:8])),
		Mode:    Mode(data[8]),
	}
	if p.Version > ProgramVersion {
		return nil, fmt.Errorf("bytecode version %d is newer than supported version %d", p.Version, ProgramVersion)
	}

	d := &decoder{data: data, pos: 9}

	if n := d.count("instruction", 13); n > 0 {
		p.Code = make([]Instruction, n)
		for i := range p.Code {
			p.Code[i] = Instruction{
				Op:  Opcode(d.readByte("opcode")),
				Op1: d.i32("operand"),
				Op2: d.i32("operand"),
				Op3: d.i32("operand"),
			}
		}
	}

	if n := d.count("constant", 4); n > 0 {
		p.Constants = make([]string, n)
		for i := range p.Constants {
			p.Constants[i] = d.str(fmt.Sprintf("constant %d", i))
		}
	}

	if n := d.count("name list", 4); n > 0 {
		p.NameLists = make([][]string, n)
		for i := range p.NameLists {
			m := d.count("name", 4)
			if m == 0 {
				continue
			}
			list := make([]string, m)
			for j := range list {
				list[j] = d.str(fmt.Sprintf("name list %d entry %d", i, j))
			}
			p.NameLists[i] = list
		}
	}

	if n := d.count("table", 4); n > 0 {
		p.Tables = make([]SymbolTable, n)
		for i := range p.Tables {
			m := d.count("parameter", 4)
			var params []int32
			if m > 0 {
				params = make([]int32, m)
				for j := range params {
					params[j] = d.i32("table parameter")
				}
			}
			p.Tables[i] = SymbolTable{Parameters: params}
		}
	}

	if n := d.count("block", 12); n > 0 {
		p.Blocks = make([]BlockInfo, n)
		for i := range p.Blocks {
			start := d.i32("block start")
			table := d.i32("block table")
			p.Blocks[i] = BlockInfo{Name: d.str("block name"), Start: start, Table: table}
		}
	}

	if n := d.count("handle", 8); n > 0 {
		p.Handles = make([]int32, n)
		p.HandleNames = make([]string, n)
		for i := range p.Handles {
			p.Handles[i] = d.i32("handle start")
			p.HandleNames[i] = d.str("handle name")
		}
	}

	if d.err != nil {
		return nil, d.err
	}
	if d.pos != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after program", len(data)-d.pos)
	}
	return p, nil
}

// cborEncMode uses canonical options so equal programs encode identically.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EncodeCBOR serializes the program to CBOR bytes.
func EncodeCBOR(p *Program) ([]byte, error) {
	return cborEncMode.Marshal(p)
}

// DecodeCBOR deserializes a program from CBOR bytes.
func DecodeCBOR(data []byte) (*Program, error) {
	var p Program
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	if p.Version > ProgramVersion {
		return nil, fmt.Errorf("bytecode version %d is newer than supported version %d", p.Version, ProgramVersion)
	}
	return &p, nil
}

// Decode accepts either encoding, sniffing the binary magic.
func Decode(data []byte) (*Program, error) {
	if len(data) >= 4 && string(data[:4]) == string(ProgramMagic) {
		return Deserialize(data)
	}
	return DecodeCBOR(data)
}
