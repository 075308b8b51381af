package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileOpsWriteReadList(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry()
	require.NoError(t, FileOps{Root: root}.Register(reg))

	writeArgs, _ := json.Marshal(writeFileArgs{Path: "notes/a.txt", Content: "hello"})
	res, err := reg.Execute(context.Background(), "write_file", writeArgs)
	require.NoError(t, err)
	require.False(t, res.IsError)

	readArgs, _ := json.Marshal(readFileArgs{Path: "notes/a.txt"})
	res, err = reg.Execute(context.Background(), "read_file", readArgs)
	require.NoError(t, err)
	require.Equal(t, "hello", res.Content)

	listArgs, _ := json.Marshal(listDirArgs{Path: "notes"})
	res, err = reg.Execute(context.Background(), "list_directory", listArgs)
	require.NoError(t, err)
	require.Contains(t, res.Content, "a.txt")
}

func TestFileOpsRejectsEscape(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry()
	require.NoError(t, FileOps{Root: root}.Register(reg))

	readArgs, _ := json.Marshal(readFileArgs{Path: "../../etc/passwd"})
	res, err := reg.Execute(context.Background(), "read_file", readArgs)
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestSearchFindsMatches(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\nfunc main() {}\n"), 0o644))

	reg := NewRegistry()
	require.NoError(t, Search{Root: root}.Register(reg))

	args, _ := json.Marshal(searchArgs{Pattern: "func main"})
	res, err := reg.Execute(context.Background(), "search_files", args)
	require.NoError(t, err)
	require.Contains(t, res.Content, "main.go")
}

func TestSymbolIndexListsDecls(t *testing.T) {
	root := t.TempDir()
	src := "package sample\n\ntype Widget struct{}\n\nfunc DoThing() {}\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "sample.go"), []byte(src), 0o644))

	reg := NewRegistry()
	require.NoError(t, SymbolIndex{Root: root}.Register(reg))

	args, _ := json.Marshal(symbolIndexArgs{})
	res, err := reg.Execute(context.Background(), "symbol_index", args)
	require.NoError(t, err)
	require.Contains(t, res.Content, "Widget")
	require.Contains(t, res.Content, "DoThing")
}

type fakeSpawner struct {
	lastAgentID string
	output      string
}

func (f *fakeSpawner) SpawnAgent(ctx context.Context, agentID, task, seedContext string) (string, error) {
	f.lastAgentID = agentID
	return f.output, nil
}

func TestNestedAgentDelegatesToSpawner(t *testing.T) {
	spawner := &fakeSpawner{output: "done"}
	reg := NewRegistry()
	require.NoError(t, NestedAgent{Spawner: spawner}.Register(reg))

	args, _ := json.Marshal(spawnAgentArgs{AgentID: "reviewer", Task: "check diff"})
	res, err := reg.Execute(context.Background(), "spawn_agent", args)
	require.NoError(t, err)
	require.Equal(t, "done", res.Content)
	require.Equal(t, "reviewer", spawner.lastAgentID)
}

func TestExecuteRejectsInvalidArguments(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry()
	require.NoError(t, FileOps{Root: root}.Register(reg))

	res, err := reg.Execute(context.Background(), "read_file", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestExecuteUnknownTool(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Execute(context.Background(), "does_not_exist", json.RawMessage(`{}`))
	require.Error(t, err)
}
