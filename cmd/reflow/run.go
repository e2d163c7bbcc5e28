package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/chazu/reflow/manifest"
	"github.com/chazu/reflow/pkg/bytecode"
	"github.com/chazu/reflow/pkg/data"
	"github.com/chazu/reflow/pkg/helpers"
	"github.com/chazu/reflow/pkg/interp"
	"github.com/chazu/reflow/pkg/reference"
	"github.com/chazu/reflow/pkg/scope"
	"github.com/chazu/reflow/pkg/store"
	"github.com/chazu/reflow/pkg/validator"
)

// handleRunCommand processes the `reflow run` subcommand. The program is a
// file path when one exists, otherwise a name in the program store.
// Usage:
//
//	reflow run page.rfasm
//	reflow run -data page.yaml -trace page.rfbc
//	reflow run -passes 2 page
func handleRunCommand(args []string, m *manifest.Manifest) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dataPath := fs.String("data", "", "YAML file bound as the root scope's self")
	trace := fs.Bool("trace", m.Engine.Trace, "Log every instruction at debug level")
	start := fs.Int("start", 0, "Instruction to start at")
	passes := fs.Int("passes", 1, "Number of passes to run over the same data")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: reflow run [-data file.yaml] [-trace] [-start N] [-passes N] <program>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p, err := resolveProgram(ctx, fs.Arg(0), m)
	if err != nil {
		fatalf("%v", err)
	}

	refMode, err := m.ReferenceMode()
	if err != nil {
		fatalf("%v", err)
	}
	clock := validator.NewClock()
	env := reference.NewEnv(clock, refMode)

	var self any = data.NewObject(clock)
	if *dataPath != "" {
		f, err := os.Open(*dataPath)
		if err != nil {
			fatalf("%v", err)
		}
		self, err = data.FromYAML(clock, f)
		f.Close()
		if err != nil {
			fatalf("%s: %v", *dataPath, err)
		}
	}
	root := reference.NewComponentRoot(env, self)

	vm := interp.New(interp.Options{
		Env:       env,
		Resolver:  helpers.Builtins(),
		StackSize: m.Engine.StackSize,
		Trace:     *trace,
	})

	var res interp.Result
	for i := 0; i < *passes; i++ {
		res, err = vm.ExecuteAt(ctx, p, scope.Root(root, symbolCount(p)), *start)
		if err != nil {
			fatalf("%v", err)
		}
	}

	if res.Output != "" {
		header("Output")
		fmt.Println(res.Output)
	}
	if res.V0 != nil {
		header("$v0")
		out, err := yaml.Marshal(plainValue(res.Value()))
		if err != nil {
			fatalf("rendering $v0: %v", err)
		}
		fmt.Print(string(out))
	}
	if len(res.Stack) > 0 {
		header("Stack")
		for i, v := range res.Stack {
			if ref, ok := v.(reference.Reference); ok {
				v = plainValue(ref.Value())
			}
			fmt.Printf("  %d: %v\n", i, v)
		}
	}
	fmt.Fprintf(os.Stderr, "pass %s: %d steps\n", res.PassID, res.Steps)
}

// resolveProgram loads name from disk, or from the store when no such
// file exists.
func resolveProgram(ctx context.Context, name string, m *manifest.Manifest) (*bytecode.Program, error) {
	if _, err := os.Stat(name); err == nil {
		return loadProgram(name)
	}
	s, err := store.Open(m.StorePath())
	if err != nil {
		return nil, err
	}
	defer s.Close()
	p, err := s.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s is neither a file nor a stored program", name)
	}
	return p, err
}

// symbolCount sizes the root scope to the highest symbol the program
// touches.
func symbolCount(p *bytecode.Program) int {
	n := 0
	for _, in := range p.Code {
		switch in.Op {
		case bytecode.OpGetVariable, bytecode.OpSetVariable, bytecode.OpGetBlock,
			bytecode.OpSetJitBlock, bytecode.OpSetAotBlock:
			n = max(n, int(in.Op1))
		}
	}
	for _, t := range p.Tables {
		for _, s := range t.Parameters {
			n = max(n, int(s))
		}
	}
	return n
}

// plainValue unwraps tracked objects for printing.
func plainValue(v any) any {
	switch v := v.(type) {
	case *data.Object:
		return v.Snapshot()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plainValue(item)
		}
		return out
	case helpers.Callable:
		return "<fn>"
	}
	return v
}

// handleHelpersCommand prints the builtin helper handles for use with
// HELPER in assembly.
func handleHelpersCommand() {
	header("Helpers")
	r := helpers.Builtins()
	for _, name := range helpers.BuiltinNames() {
		h, _ := r.Handle(name)
		fmt.Printf("  %2d  %s\n", h, name)
	}
}

// handleBuildCommand assembles every [programs] entry of reflow.toml into
// the program store.
func handleBuildCommand(m *manifest.Manifest, verbose bool) {
	if len(m.ProgramNames()) == 0 {
		fmt.Fprintln(os.Stderr, "No [programs] configured in reflow.toml")
		os.Exit(1)
	}
	n, err := buildPrograms(context.Background(), m, verbose)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Built %d programs into %s\n", n, m.StorePath())
}

// buildPrograms stores every configured program and returns how many were
// stored. The store is closed before returning on every path.
func buildPrograms(ctx context.Context, m *manifest.Manifest, verbose bool) (int, error) {
	mode, err := m.CompileMode()
	if err != nil {
		return 0, err
	}

	s, err := store.Open(m.StorePath())
	if err != nil {
		return 0, err
	}
	defer s.Close()

	names := m.ProgramNames()
	for _, name := range names {
		path, _ := m.ProgramPath(name)
		p, err := loadProgram(path)
		if err != nil {
			return 0, err
		}
		if p.Mode != mode {
			return 0, fmt.Errorf("%s: program is %s, engine.compile-mode is %s", filepath.Base(path), p.Mode, mode)
		}
		if err := s.Put(ctx, name, p); err != nil {
			return 0, err
		}
		if verbose {
			fmt.Printf("Stored %s from %s\n", name, path)
		}
	}
	return len(names), nil
}
