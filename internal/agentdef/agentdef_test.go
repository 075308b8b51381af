package agentdef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeAgent(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestDiscoverLoadsAndOverrides(t *testing.T) {
	base := t.TempDir()
	override := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "prompt.md"), []byte("hello"), 0o644))

	writeAgent(t, base, "coder.toml", `
id = "coder"
name = "Coder"
prompt_path = "prompt.md"
engine = "anthropic"
`)
	writeAgent(t, override, "coder.toml", `
id = "coder"
name = "Coder v2"
prompt_path = "prompt.md"
engine = "openai"
`)

	defs, err := Discover([]string{base, override})
	require.NoError(t, err)
	require.Contains(t, defs, "coder")
	require.Equal(t, "openai", defs["coder"].Engine)
}

func TestDiscoverMissingDirIsNotError(t *testing.T) {
	defs, err := Discover([]string{filepath.Join(t.TempDir(), "nope")})
	require.NoError(t, err)
	require.Empty(t, defs)
}

func TestPromptTemplateResolvesRelativeToSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.md"), []byte("you are a coder"), 0o644))
	writeAgent(t, dir, "coder.toml", `
id = "coder"
name = "Coder"
prompt_path = "prompt.md"
`)
	defs, err := Discover([]string{dir})
	require.NoError(t, err)
	text, err := defs["coder"].PromptTemplate()
	require.NoError(t, err)
	require.Equal(t, "you are a coder", text)
}

func TestValidateRejectsEscapedPromptPath(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "agents")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeAgent(t, sub, "evil.toml", `
id = "evil"
name = "Evil"
prompt_path = "../../../etc/passwd"
`)
	defs, err := Discover([]string{sub})
	require.NoError(t, err)
	err = Validate(defs["evil"], []string{dir})
	require.Error(t, err)
}

func TestValidateRejectsBadID(t *testing.T) {
	d := Definition{ID: "Not Valid", PromptPath: "x.md"}
	require.Error(t, Validate(d, []string{"."}))
}
