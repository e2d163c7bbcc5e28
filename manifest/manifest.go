// Package manifest handles reflow.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/chazu/reflow/pkg/bytecode"
	"github.com/chazu/reflow/pkg/reference"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "reflow.toml"

// Manifest represents a reflow.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Engine  Engine  `toml:"engine"`
	Log     Log     `toml:"log"`
	Store   Store   `toml:"store"`

	// Programs maps program names to assembly source files, relative to Dir.
	Programs map[string]string `toml:"programs"`

	// Dir is the directory containing the reflow.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Engine configures the reference graph and the interpreter.
type Engine struct {
	Mode        string `toml:"mode"`
	CompileMode string `toml:"compile-mode"`
	StackSize   int    `toml:"stack-size"`
	Trace       bool   `toml:"trace"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Store configures the program database.
type Store struct {
	Path string `toml:"path"`
}

// Default returns the configuration used when no reflow.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Engine.Mode == "" {
		m.Engine.Mode = reference.Production.String()
	}
	if m.Engine.CompileMode == "" {
		m.Engine.CompileMode = bytecode.ModeAOT.String()
	}
	if m.Engine.StackSize == 0 {
		m.Engine.StackSize = 1024
	}
	if m.Log.Verbosity == 0 {
		m.Log.Verbosity = 1
	}
	if m.Store.Path == "" {
		m.Store.Path = filepath.Join(".reflow", "programs.db")
	}
}

// Load parses a reflow.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a reflow.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the enumerated settings.
func (m *Manifest) Validate() error {
	if _, err := m.ReferenceMode(); err != nil {
		return err
	}
	if _, err := m.CompileMode(); err != nil {
		return err
	}
	if m.Engine.StackSize < 0 {
		return fmt.Errorf("engine.stack-size must not be negative, got %d", m.Engine.StackSize)
	}
	return nil
}

// ReferenceMode parses engine.mode.
func (m *Manifest) ReferenceMode() (reference.Mode, error) {
	switch m.Engine.Mode {
	case "", reference.Production.String():
		return reference.Production, nil
	case reference.Diagnostic.String():
		return reference.Diagnostic, nil
	}
	return 0, fmt.Errorf("engine.mode must be production or diagnostic, got %q", m.Engine.Mode)
}

// CompileMode parses engine.compile-mode.
func (m *Manifest) CompileMode() (bytecode.Mode, error) {
	if m.Engine.CompileMode == "" {
		return bytecode.ModeAOT, nil
	}
	mode, err := bytecode.ParseMode(m.Engine.CompileMode)
	if err != nil {
		return 0, fmt.Errorf("engine.compile-mode: %w", err)
	}
	return mode, nil
}

// StorePath returns the absolute program database path.
func (m *Manifest) StorePath() string {
	return m.path(m.Store.Path)
}

// LogFile returns the absolute log file path, or "" to log to stderr.
func (m *Manifest) LogFile() string {
	if m.Log.File == "" {
		return ""
	}
	return m.path(m.Log.File)
}

// ProgramNames returns the configured program names in sorted order.
func (m *Manifest) ProgramNames() []string {
	names := make([]string, 0, len(m.Programs))
	for name := range m.Programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProgramPath returns the absolute source path of a configured program.
func (m *Manifest) ProgramPath(name string) (string, bool) {
	src, ok := m.Programs[name]
	if !ok {
		return "", false
	}
	return m.path(src), true
}

func (m *Manifest) path(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}
