package context

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatterDelimiter marks the start and end of a playbook's YAML
// frontmatter block, the same convention skill/agent documentation
// files in this ecosystem use.
const frontmatterDelimiter = "---"

// playbookFrontmatter is the YAML header every playbook file carries.
type playbookFrontmatter struct {
	AppliesTo string `yaml:"applies_to"`
}

// LoadPlaybooksDir walks dir for *.md files, each carrying a YAML
// frontmatter block naming the agent tag it applies to followed by its
// markdown body, and loads every one it finds into store. A missing
// directory is not an error: playbooks are optional.
func LoadPlaybooksDir(store *PlaybookStore, dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read playbooks dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		tag, body, err := parsePlaybook(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		store.Append(tag, body)
	}
	return nil
}

// parsePlaybook splits a playbook file's YAML frontmatter from its
// markdown body, grounded on the same scan-for-delimiter-lines approach
// used to split SKILL.md frontmatter elsewhere in this ecosystem.
func parsePlaybook(data []byte) (tag, body string, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	if !scanner.Scan() {
		return "", "", fmt.Errorf("empty playbook file")
	}
	if strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return "", "", fmt.Errorf("missing opening frontmatter delimiter")
	}

	var fmLines []string
	closed := false
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == frontmatterDelimiter {
			closed = true
			break
		}
		fmLines = append(fmLines, scanner.Text())
	}
	if !closed {
		return "", "", fmt.Errorf("missing closing frontmatter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", "", err
	}

	var fm playbookFrontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(fmLines, "\n")), &fm); err != nil {
		return "", "", fmt.Errorf("parse frontmatter: %w", err)
	}
	if fm.AppliesTo == "" {
		return "", "", fmt.Errorf("applies_to is required")
	}

	return fm.AppliesTo, strings.TrimSpace(strings.Join(bodyLines, "\n")), nil
}
