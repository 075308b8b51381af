package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// BootstrapFile represents a file seeded into a fresh workspace.
type BootstrapFile struct {
	Name    string
	Content string
}

// BootstrapResult captures which seed files were created or left alone.
type BootstrapResult struct {
	Created []string
	Skipped []string
}

// DefaultBootstrapFiles returns the files seeded into every new workspace.
// Unlike a bot persona workspace, Radium's seed files describe the
// metadata tree itself rather than a conversational identity.
func DefaultBootstrapFiles() []BootstrapFile {
	return []BootstrapFile{
		{
			Name: "AGENTS.md",
			Content: "# AGENTS.md\n\n" +
				"Agent definitions live in this workspace or an extension directory.\n" +
				"Each is a TOML file with id, name, description, prompt_path, and\n" +
				"optional engine/model/reasoning_effort/category/sandbox overrides.\n",
		},
		{
			Name: "PLAYBOOKS.md",
			Content: "# PLAYBOOKS.md\n\n" +
				"Organizational instructions appended to matching agents' prompts.\n" +
				"Tag each entry with applies_to so the context manager can select it.\n",
		},
	}
}

// EnsureWorkspaceFiles creates missing seed files in root, skipping any
// that already exist unless overwrite is set.
func EnsureWorkspaceFiles(root string, files []BootstrapFile, overwrite bool) (BootstrapResult, error) {
	result := BootstrapResult{}
	base := strings.TrimSpace(root)
	if base == "" {
		base = "."
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return result, fmt.Errorf("create workspace dir: %w", err)
	}

	for _, f := range files {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		path := filepath.Join(base, name)
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				result.Skipped = append(result.Skipped, path)
				continue
			} else if !os.IsNotExist(err) {
				return result, fmt.Errorf("stat %s: %w", path, err)
			}
		}
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return result, fmt.Errorf("write %s: %w", path, err)
		}
		result.Created = append(result.Created, path)
	}

	return result, nil
}

var idPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidID reports whether s is a non-empty, lowercase-kebab identifier,
// the rule §6 requires for agent definition ids.
func ValidID(s string) bool {
	return s != "" && idPattern.MatchString(s)
}
