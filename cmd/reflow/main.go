// Reflow CLI - assemble, inspect, store and run template programs
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/reflow/manifest"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output (debug logging)")
	dir := flag.String("C", ".", "Directory to search for reflow.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: reflow [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  asm [-o out] [-cbor] <file.rfasm>      Assemble a program\n")
		fmt.Fprintf(os.Stderr, "  disasm <file>                          Print a program listing\n")
		fmt.Fprintf(os.Stderr, "  run [-data file.yaml] [-trace] <prog>  Execute a program file or stored program\n")
		fmt.Fprintf(os.Stderr, "  store put|get|ls|rm ...                Manage the program store\n")
		fmt.Fprintf(os.Stderr, "  build                                  Assemble every [programs] entry into the store\n")
		fmt.Fprintf(os.Stderr, "  helpers                                List builtin helper handles\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  reflow asm -o page.rfbc page.rfasm\n")
		fmt.Fprintf(os.Stderr, "  reflow run -data page.yaml page.rfbc\n")
		fmt.Fprintf(os.Stderr, "  reflow store put page page.rfbc && reflow run page\n")
	}
	flag.Parse()

	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		m = manifest.Default()
	}

	configureLogging(m, *verbose)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	switch args[0] {
	case "asm":
		handleAsmCommand(args[1:])
	case "disasm":
		handleDisasmCommand(args[1:])
	case "run":
		handleRunCommand(args[1:], m)
	case "store":
		handleStoreCommand(args[1:], m)
	case "build":
		handleBuildCommand(m, *verbose)
	case "helpers":
		handleHelpersCommand()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
}

func configureLogging(m *manifest.Manifest, verbose bool) {
	verbosity := m.Log.Verbosity
	if verbose && verbosity < 2 {
		verbosity = 2
	}
	var path *string
	if f := m.LogFile(); f != "" {
		path = &f
	}
	commonlog.Configure(verbosity, path)
}

// header prints a section title, bold when stdout is a terminal.
func header(title string) {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		fmt.Printf("\x1b[1m%s\x1b[0m\n", title)
		return
	}
	fmt.Println(title)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
