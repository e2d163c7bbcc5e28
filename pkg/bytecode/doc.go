// Package bytecode defines the compiled form of a template: a flat sequence
// of fixed-arity instructions plus the pools their operands index into.
//
// The format is designed for:
//   - Fixed-width decoding (an opcode and up to three int32 operands)
//   - Two compile modes sharing one instruction set (AOT and JIT)
//   - Easy serialization (binary "RFBC" for files, CBOR for the store)
//
// # Architecture Overview
//
//   - Opcodes: instructions grouped into ranges by category (stack,
//     control flow, scope, blocks, arguments, expressions, iteration,
//     output). Each carries metadata: name, stack effect, operand kinds and
//     the compile mode it is restricted to.
//
//   - Program: the compiled unit. Code, string constants, name lists for
//     argument setup, symbol tables describing block parameters, block
//     infos for JIT compilation and handles for AOT entry points.
//
//   - Assembler and disassembler: a textual form for authoring and
//     inspecting programs. Disassemble output is valid Assemble input.
//
// # Compile modes
//
// In AOT mode every block body is a handle resolved before the program
// runs. In JIT mode a block body is a compilable reference into Blocks,
// compiled on first use. Instructions that only make sense in one mode
// (SET_AOT_BLOCK, PUSH_HANDLE versus SET_JIT_BLOCK, SPREAD_BLOCK,
// PUSH_COMPILABLE_BLOCK, COMPILE_BLOCK) are rejected by Validate when they
// appear in a program of the other mode.
package bytecode
