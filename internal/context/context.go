// Package context assembles the final prompt string for an agent turn
// (C8): template substitution, injection directives, hierarchical
// context files, playbooks, and plan memory, validated against a size
// cap.
package context

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrSizeCapExceeded is returned when the assembled prompt exceeds the
// configured cap. Truncation is an error, not silent (§4.6).
var ErrSizeCapExceeded = fmt.Errorf("context: assembled prompt exceeds size cap")

// SourceFetcher is the subset of source.Registry the context manager
// needs, kept as an interface so this package never imports source
// directly (agent[input:...] directives name arbitrary URIs).
type SourceFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// HistoryReader supplies the last N messages of a session for
// agent[tail:N] resolution.
type HistoryReader interface {
	TailText(ctx context.Context, sessionID string, n int) ([]string, error)
}

// MemoryReader supplies plan-scoped prior agent output.
type MemoryReader interface {
	Recent(ctx context.Context, planID string, limit int) ([]string, error)
}

// Playbook is organizational guidance appended to matching agents.
type Playbook struct {
	AppliesTo string
	Text      string
}

// PlaybookStore holds playbooks in memory, keyed by the agent tag they
// apply to, with post-hoc append support so a running session can learn
// a new playbook without a daemon restart.
type PlaybookStore struct {
	byTag map[string][]Playbook
}

func NewPlaybookStore() *PlaybookStore {
	return &PlaybookStore{byTag: map[string][]Playbook{}}
}

func (p *PlaybookStore) Append(appliesTo, text string) {
	p.byTag[appliesTo] = append(p.byTag[appliesTo], Playbook{AppliesTo: appliesTo, Text: text})
}

func (p *PlaybookStore) For(tag string) []Playbook {
	return p.byTag[tag]
}

// Request carries everything the manager needs to assemble one prompt.
type Request struct {
	Template     string
	Variables    map[string]string
	SessionID    string
	PlanID       string
	AgentTag     string
	TargetPath   string
	WorkspaceRoot string
	GlobalContextPath string
	SizeCap      int
}

var (
	inputDirective = regexp.MustCompile(`agent\[input:([^\]]+)\]`)
	tailDirective  = regexp.MustCompile(`agent\[tail:(\d+)\]`)
)

// Manager assembles prompts per §4.6's seven-step pipeline.
type Manager struct {
	sources   SourceFetcher
	history   HistoryReader
	memory    MemoryReader
	playbooks *PlaybookStore
}

func NewManager(sources SourceFetcher, history HistoryReader, memory MemoryReader, playbooks *PlaybookStore) *Manager {
	return &Manager{sources: sources, history: history, memory: memory, playbooks: playbooks}
}

// Assemble runs the full pipeline and returns the final prompt string.
func (m *Manager) Assemble(ctx context.Context, req Request) (string, error) {
	// 1-2: load template, substitute scalar variables.
	body := substituteVariables(req.Template, req.Variables)

	// 3: agent[input:a,b] injection via the source registry.
	body = m.resolveInputDirectives(ctx, body)

	// 4: agent[tail:N] injection from session history.
	body = m.resolveTailDirective(ctx, req.SessionID, body)

	var sections []string
	sections = append(sections, body)

	// 5: hierarchical context files, nearest-first, from target path up
	// to the workspace root, then a global path.
	if req.TargetPath != "" && req.WorkspaceRoot != "" {
		sections = append(sections, loadHierarchicalContext(req.TargetPath, req.WorkspaceRoot)...)
	}
	if req.GlobalContextPath != "" {
		if b, err := os.ReadFile(req.GlobalContextPath); err == nil {
			sections = append(sections, string(b))
		}
	}

	// 6: playbooks matching the agent tag.
	if m.playbooks != nil {
		for _, pb := range m.playbooks.For(req.AgentTag) {
			sections = append(sections, pb.Text)
		}
	}

	// 7: plan memory, prepended (placed first among the extra sections
	// here; final ordering is memory, template+directives, hierarchy,
	// playbooks — see join order below).
	var memorySection string
	if m.memory != nil && req.PlanID != "" {
		entries, err := m.memory.Recent(ctx, req.PlanID, 5)
		if err == nil && len(entries) > 0 {
			memorySection = strings.Join(entries, "\n\n")
		}
	}

	final := strings.Join(append([]string{memorySection}, sections...), "\n\n")
	final = strings.TrimSpace(final)

	if req.SizeCap > 0 && len(final) > req.SizeCap {
		return "", fmt.Errorf("%w: %d bytes > cap %d", ErrSizeCapExceeded, len(final), req.SizeCap)
	}
	return final, nil
}

func substituteVariables(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

func (m *Manager) resolveInputDirectives(ctx context.Context, body string) string {
	if m.sources == nil {
		return body
	}
	return inputDirective.ReplaceAllStringFunc(body, func(match string) string {
		uris := inputDirective.FindStringSubmatch(match)[1]
		var out []string
		for _, uri := range strings.Split(uris, ",") {
			uri = strings.TrimSpace(uri)
			data, err := m.sources.Fetch(ctx, uri)
			if err != nil {
				out = append(out, fmt.Sprintf("[could not fetch %s: %v]", uri, err))
				continue
			}
			out = append(out, string(data))
		}
		return strings.Join(out, "\n")
	})
}

func (m *Manager) resolveTailDirective(ctx context.Context, sessionID, body string) string {
	if m.history == nil || sessionID == "" {
		return body
	}
	return tailDirective.ReplaceAllStringFunc(body, func(match string) string {
		nStr := tailDirective.FindStringSubmatch(match)[1]
		n := 0
		fmt.Sscanf(nStr, "%d", &n)
		lines, err := m.history.TailText(ctx, sessionID, n)
		if err != nil {
			return ""
		}
		return strings.Join(lines, "\n")
	})
}

// loadHierarchicalContext walks from target up to root, collecting
// GEMINI.md context files in nearest-first order (§4.6 step 5).
func loadHierarchicalContext(target, root string) []string {
	const fileName = "GEMINI.md"
	var sections []string

	dir := target
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		dir = filepath.Dir(target)
	}

	for {
		path := filepath.Join(dir, fileName)
		if b, err := os.ReadFile(path); err == nil {
			sections = append(sections, string(b))
		}
		if dir == root || dir == filepath.Dir(dir) {
			break
		}
		dir = filepath.Dir(dir)
	}
	return sections
}
