package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/reflow/pkg/bytecode"
)

// AssemblyExt marks text assembly files. Anything else is read as an
// encoded program.
const AssemblyExt = ".rfasm"

// loadProgram reads an assembly or encoded program file.
func loadProgram(path string) (*bytecode.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if filepath.Ext(path) == AssemblyExt {
		p, err := bytecode.Assemble(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return p, nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	p, err := bytecode.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// handleAsmCommand processes the `reflow asm` subcommand.
// Usage:
//
//	reflow asm page.rfasm            # page.rfbc
//	reflow asm -cbor page.rfasm      # page.cbor
//	reflow asm -o out.rfbc page.rfasm
func handleAsmCommand(args []string) {
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	output := fs.String("o", "", "Output path")
	useCBOR := fs.Bool("cbor", false, "Write canonical CBOR instead of the binary format")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: reflow asm [-o out] [-cbor] <file.rfasm>")
		os.Exit(2)
	}
	src := fs.Arg(0)

	p, err := loadProgram(src)
	if err != nil {
		fatalf("%v", err)
	}

	var data []byte
	ext := ".rfbc"
	if *useCBOR {
		data, err = bytecode.EncodeCBOR(p)
		ext = ".cbor"
	} else {
		data, err = p.Serialize()
	}
	if err != nil {
		fatalf("encoding %s: %v", src, err)
	}

	out := *output
	if out == "" {
		out = strings.TrimSuffix(src, filepath.Ext(src)) + ext
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Wrote %s (%d instructions, %d bytes)\n", out, len(p.Code), len(data))
}

// handleDisasmCommand processes the `reflow disasm` subcommand.
func handleDisasmCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: reflow disasm <file>")
		os.Exit(2)
	}
	p, err := loadProgram(args[0])
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Print(p.DisassembleWithName(filepath.Base(args[0])))
}
