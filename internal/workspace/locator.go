// Package workspace locates and bootstraps the .radium metadata tree that
// anchors every other component's on-disk paths.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// metaDirName is the name of the workspace's private metadata tree.
const metaDirName = ".radium"

// Layout holds canonical paths under a workspace root. All other
// components address their storage relative to these paths rather than
// constructing them independently.
type Layout struct {
	Root string

	Meta         string // <root>/.radium
	Internals    string // .radium/_internals
	Database     string // .radium/_internals/database.sqlite
	SessionsDir  string // .radium/_internals/sessions
	AuthDir      string // .radium/_internals/auth
	Credentials  string // .radium/_internals/auth/credentials.json
	Tokens       string // .radium/_internals/auth/tokens.json
	HistoryDir   string // .radium/_internals/history
	MonitoringDB string // .radium/_internals/monitoring/monitoring.sqlite
	PlanBacklog  string // .radium/plan/backlog
	PlanDev      string // .radium/plan/development
	MemoryDir    string // .radium/memory
	LogsDir      string // .radium/logs
	ArtifactsDir string // .radium/artifacts
	ExtensionsDir string // .radium/extensions (optional)
	PlaybooksDir string // .radium/playbooks (optional, per-agent-tag instructions)
}

// Locate finds or creates the .radium metadata tree rooted at root and
// returns its canonical Layout. Creation is idempotent: calling Locate
// again against an already-initialized workspace re-opens it without
// mutating existing data.
func Locate(root string) (*Layout, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}

	l := layoutFor(absRoot)

	dirs := []string{
		l.Meta,
		l.Internals,
		l.SessionsDir,
		l.AuthDir,
		l.HistoryDir,
		filepath.Dir(l.MonitoringDB),
		l.PlanBacklog,
		l.PlanDev,
		l.MemoryDir,
		l.LogsDir,
		l.ArtifactsDir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}

	// auth directory and its files are owner-only per §6.
	if err := os.Chmod(l.AuthDir, 0o700); err != nil {
		return nil, fmt.Errorf("chmod auth dir: %w", err)
	}

	return l, nil
}

func layoutFor(root string) *Layout {
	meta := filepath.Join(root, metaDirName)
	internals := filepath.Join(meta, "_internals")
	authDir := filepath.Join(internals, "auth")

	return &Layout{
		Root:          root,
		Meta:          meta,
		Internals:     internals,
		Database:      filepath.Join(internals, "database.sqlite"),
		SessionsDir:   filepath.Join(internals, "sessions"),
		AuthDir:       authDir,
		Credentials:   filepath.Join(authDir, "credentials.json"),
		Tokens:        filepath.Join(authDir, "tokens.json"),
		HistoryDir:    filepath.Join(internals, "history"),
		MonitoringDB:  filepath.Join(internals, "monitoring", "monitoring.sqlite"),
		PlanBacklog:   filepath.Join(meta, "plan", "backlog"),
		PlanDev:       filepath.Join(meta, "plan", "development"),
		MemoryDir:     filepath.Join(meta, "memory"),
		LogsDir:       filepath.Join(meta, "logs"),
		ArtifactsDir:  filepath.Join(meta, "artifacts"),
		ExtensionsDir: filepath.Join(meta, "extensions"),
		PlaybooksDir:  filepath.Join(meta, "playbooks"),
	}
}

// SessionArtifactsDir returns the artifact directory for a given session id.
func (l *Layout) SessionArtifactsDir(sessionID string) string {
	return filepath.Join(l.SessionsDir, sessionID+".artifacts")
}

// SessionFile returns the path to a session's JSON document.
func (l *Layout) SessionFile(sessionID string) string {
	return filepath.Join(l.SessionsDir, sessionID+".json")
}

// SessionsDirPath returns the directory holding every session document.
func (l *Layout) SessionsDirPath() string {
	return l.SessionsDir
}

// MemoryFile returns the path to a plan-scoped agent memory file.
func (l *Layout) MemoryFile(planID, agentID string) string {
	return filepath.Join(l.MemoryDir, planID, agentID+".md")
}

// UnderRoot reports whether the given path resolves inside the workspace
// root. Agent-definition validation in internal/agentdef runs its own
// prompt_path check and does not call it.
func (l *Layout) UnderRoot(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(l.Root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}

// Env variable that overrides workspace discovery, per spec §6.
const WorkspaceEnvVar = "RADIUM_WORKSPACE"

// Discover resolves the workspace root from the environment override or
// falls back to the given default (typically the current directory).
func Discover(fallback string) string {
	if v := os.Getenv(WorkspaceEnvVar); v != "" {
		return v
	}
	return fallback
}
