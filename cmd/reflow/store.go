package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/chazu/reflow/manifest"
	"github.com/chazu/reflow/pkg/bytecode"
	"github.com/chazu/reflow/pkg/store"
)

// handleStoreCommand processes the `reflow store` subcommand.
// Usage:
//
//	reflow store put <name> <file>     Store a program
//	reflow store get [-o out] <name>   Print or export a stored program
//	reflow store ls                    List stored programs
//	reflow store rm <name>             Delete a stored program
func handleStoreCommand(args []string, m *manifest.Manifest) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: reflow store [put|get|ls|rm] ...")
		fmt.Fprintln(os.Stderr, "  put <name> <file>     Store an assembly or encoded program")
		fmt.Fprintln(os.Stderr, "  get [-o out] <name>   Print a listing, or write the binary form with -o")
		fmt.Fprintln(os.Stderr, "  ls                    List stored programs")
		fmt.Fprintln(os.Stderr, "  rm <name>             Delete a stored program")
		os.Exit(2)
	}

	s, err := store.Open(m.StorePath())
	if err != nil {
		fatalf("%v", err)
	}
	err = runStoreCommand(context.Background(), s, args)
	s.Close()
	if errors.Is(err, errUsage) {
		fmt.Fprintf(os.Stderr, "Unknown store subcommand: %s\n", args[0])
		os.Exit(2)
	}
	if err != nil {
		fatalf("%v", err)
	}
}

var errUsage = errors.New("usage")

// runStoreCommand executes one store subcommand against s.
func runStoreCommand(ctx context.Context, s *store.Store, args []string) error {
	switch args[0] {
	case "put":
		if len(args) != 3 {
			return fmt.Errorf("usage: reflow store put <name> <file>")
		}
		p, err := loadProgram(args[2])
		if err != nil {
			return err
		}
		if err := s.Put(ctx, args[1], p); err != nil {
			return err
		}
		fmt.Printf("Stored %s (%s, %d instructions)\n", args[1], p.Mode, len(p.Code))
	case "get":
		return storeGet(ctx, s, args[1:])
	case "ls":
		return storeList(ctx, s)
	case "rm":
		if len(args) != 2 {
			return fmt.Errorf("usage: reflow store rm <name>")
		}
		if err := s.Delete(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[1])
	default:
		return errUsage
	}
	return nil
}

func storeGet(ctx context.Context, s *store.Store, args []string) error {
	fs := flag.NewFlagSet("store get", flag.ContinueOnError)
	output := fs.String("o", "", "Write the binary form to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: reflow store get [-o out] <name>")
	}
	name := fs.Arg(0)

	p, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	if *output == "" {
		fmt.Print(p.DisassembleWithName(name))
		return nil
	}
	if err := writeBinary(*output, p); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", *output)
	return nil
}

func storeList(ctx context.Context, s *store.Store) error {
	entries, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No programs in %s\n", s.Path())
		return nil
	}
	header(fmt.Sprintf("Programs in %s", s.Path()))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\t%s\t%d bytes\t%s\n", e.Name, e.Mode, e.Size, e.Updated.Format(time.RFC3339))
	}
	return w.Flush()
}

func writeBinary(path string, p *bytecode.Program) error {
	data, err := p.Serialize()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
