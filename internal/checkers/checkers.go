// Package checkers loads the per-language checker definitions that describe
// which analysis server to launch for a project. Parsing a tool's output is
// out of scope here; definitions only cover how to start and identify tools.
package checkers

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Checker describes one per-language analysis server
type Checker struct {
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args,omitempty"`
	Extensions []string `yaml:"extensions"`
	Disabled   bool     `yaml:"disabled,omitempty"`
}

// Definitions maps a language identifier to its checker
type Definitions struct {
	Checkers map[string]Checker `yaml:"checkers"`
}

// Default returns the built-in checker set
func Default() *Definitions {
	return &Definitions{
		Checkers: map[string]Checker{
			"typescript": {
				Command:    "typescript-language-server",
				Args:       []string{"--stdio"},
				Extensions: []string{".ts", ".tsx", ".js", ".jsx"},
			},
			"go": {
				Command:    "gopls",
				Extensions: []string{".go"},
			},
			"python": {
				Command:    "pyright-langserver",
				Args:       []string{"--stdio"},
				Extensions: []string{".py"},
			},
			"rust": {
				Command:    "rust-analyzer",
				Extensions: []string{".rs"},
			},
		},
	}
}

// Load reads checker definitions from a YAML file, falling back to the
// defaults when the file does not exist.
func Load(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checker definitions: %w", err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse checker definitions: %w", err)
	}
	if len(defs.Checkers) == 0 {
		return Default(), nil
	}

	return &defs, nil
}

// Languages returns the enabled language identifiers in sorted order
func (d *Definitions) Languages() []string {
	langs := make([]string, 0, len(d.Checkers))
	for lang, c := range d.Checkers {
		if !c.Disabled {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	return langs
}

// LanguageForFile returns the language whose checker covers the file's
// extension, or "" if no enabled checker matches.
func (d *Definitions) LanguageForFile(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	ext := path[idx:]

	for lang, c := range d.Checkers {
		if c.Disabled {
			continue
		}
		for _, e := range c.Extensions {
			if e == ext {
				return lang
			}
		}
	}
	return ""
}
