package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocateCreatesLayout(t *testing.T) {
	dir := t.TempDir()

	l, err := Locate(dir)
	require.NoError(t, err)

	for _, d := range []string{l.Meta, l.Internals, l.SessionsDir, l.AuthDir, l.PlanBacklog, l.PlanDev, l.MemoryDir, l.LogsDir, l.ArtifactsDir} {
		info, err := os.Stat(d)
		require.NoError(t, err, d)
		require.True(t, info.IsDir())
	}

	info, err := os.Stat(l.AuthDir)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestLocateIdempotent(t *testing.T) {
	dir := t.TempDir()

	_, err := Locate(dir)
	require.NoError(t, err)

	marker := filepath.Join(dir, ".radium", "_internals", "sessions", "keep.json")
	require.NoError(t, os.WriteFile(marker, []byte("{}"), 0o644))

	_, err = Locate(dir)
	require.NoError(t, err)

	_, err = os.Stat(marker)
	require.NoError(t, err, "re-locating must not disturb existing data")
}

func TestUnderRoot(t *testing.T) {
	dir := t.TempDir()
	l, err := Locate(dir)
	require.NoError(t, err)

	require.True(t, l.UnderRoot(filepath.Join(dir, "prompts", "a.md")))
	require.False(t, l.UnderRoot(filepath.Join(dir, "..", "escaped.md")))
}

func TestDiscoverEnvOverride(t *testing.T) {
	t.Setenv(WorkspaceEnvVar, "/tmp/custom-workspace")
	require.Equal(t, "/tmp/custom-workspace", Discover("/fallback"))

	t.Setenv(WorkspaceEnvVar, "")
	require.Equal(t, "/fallback", Discover("/fallback"))
}
