// Package agentdef loads agent definitions (§3 Agent definition, §6
// Agent definition file) from TOML files discovered under a workspace,
// an extension directory, or a global directory.
package agentdef

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Unicorn/Radium-sub010/internal/workspace"
)

// Sandbox mirrors the agent definition's optional sandbox override
// block (§6), kept as plain fields rather than importing
// internal/sandbox.Config directly so this package has no dependency on
// the execution layer.
type Sandbox struct {
	Variant     string   `toml:"variant"`
	Image       string   `toml:"image"`
	NetworkMode string   `toml:"network_mode"`
	AllowedDirs []string `toml:"allowed_dirs"`
}

// Definition is a loaded, immutable agent configuration (§3). Discovery
// walks configured directories once at startup; definitions are never
// mutated afterward.
type Definition struct {
	ID              string            `toml:"id"`
	Name            string            `toml:"name"`
	Description     string            `toml:"description"`
	PromptPath      string            `toml:"prompt_path"`
	Engine          string            `toml:"engine"`
	Model           string            `toml:"model"`
	ReasoningEffort string            `toml:"reasoning_effort"`
	Category        string            `toml:"category"`
	Capabilities    map[string]bool   `toml:"capabilities"`
	Sandbox         *Sandbox          `toml:"sandbox"`

	// sourcePath is the file this definition was loaded from, used to
	// resolve PromptPath relative to it when PromptPath isn't absolute.
	sourcePath string
}

// PromptTemplate reads the agent's prompt template from disk.
func (d Definition) PromptTemplate() (string, error) {
	path := d.PromptPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(d.sourcePath), path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("agentdef: read prompt for %s: %w", d.ID, err)
	}
	return string(b), nil
}

// Validate checks the invariants §6 requires of an agent definition
// file: non-empty lowercase-kebab id, and a prompt_path that resolves
// under one of the allowed roots.
func Validate(d Definition, allowedRoots []string) error {
	if !workspace.ValidID(d.ID) {
		return fmt.Errorf("agentdef: invalid id %q: must be non-empty lowercase-kebab", d.ID)
	}
	if d.PromptPath == "" {
		return fmt.Errorf("agentdef: %s: prompt_path is required", d.ID)
	}

	resolved := d.PromptPath
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(d.sourcePath), resolved)
	}
	resolved, err := filepath.Abs(resolved)
	if err != nil {
		return fmt.Errorf("agentdef: %s: resolve prompt_path: %w", d.ID, err)
	}
	for _, root := range allowedRoots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absRoot, resolved)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("agentdef: %s: prompt_path %q does not resolve under any allowed root", d.ID, d.PromptPath)
}

// Load parses a single agent definition TOML file.
func Load(path string) (Definition, error) {
	var def Definition
	if _, err := toml.DecodeFile(path, &def); err != nil {
		return def, fmt.Errorf("agentdef: decode %s: %w", path, err)
	}
	def.sourcePath = path
	return def, nil
}

// Discover walks dirs (workspace-local, extension, and global
// directories, in that order) loading every *.toml file it finds into a
// Definition, keyed by id. A later directory's definition with the same
// id overrides an earlier one, matching the precedence the bootstrap
// directories are passed in.
func Discover(dirs []string) (map[string]Definition, error) {
	out := map[string]Definition{}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("agentdef: read dir %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
				continue
			}
			def, err := Load(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, err
			}
			out[def.ID] = def
		}
	}
	return out, nil
}
