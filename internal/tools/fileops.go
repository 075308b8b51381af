package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"
)

// schemaFor generates a JSON Schema document for a Go struct using
// reflection, the way nexus's config package derives schemas for its
// settings structs (internal/config/schema.go).
func schemaFor(v any) string {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	doc := reflector.Reflect(v)
	payload, err := json.Marshal(doc)
	if err != nil {
		return `{"type":"object"}`
	}
	return string(payload)
}

type readFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path relative to the workspace root"`
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=Path relative to the workspace root"`
	Content string `json:"content" jsonschema:"required,description=New file contents"`
}

type listDirArgs struct {
	Path string `json:"path" jsonschema:"description=Directory relative to the workspace root; defaults to the root"`
}

// FileOps registers the file-reading/writing/listing tools, each
// confined to a workspace root via UnderRoot-style path checks.
type FileOps struct {
	Root string
}

func (f FileOps) resolve(rel string) (string, error) {
	if rel == "" {
		rel = "."
	}
	abs := filepath.Join(f.Root, rel)
	clean, err := filepath.Abs(abs)
	if err != nil {
		return "", err
	}
	rootAbs, err := filepath.Abs(f.Root)
	if err != nil {
		return "", err
	}
	if clean != rootAbs && !isWithin(rootAbs, clean) {
		return "", fmt.Errorf("fileops: path %q escapes workspace root", rel)
	}
	return clean, nil
}

func isWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Register adds read_file, write_file, and list_directory to reg.
func (f FileOps) Register(reg *Registry) error {
	if err := reg.Register(Tool{
		Name:        "read_file",
		Description: "Read a UTF-8 text file from the workspace.",
		SchemaJSON:  schemaFor(readFileArgs{}),
		Handler:     f.readFile,
	}); err != nil {
		return err
	}
	if err := reg.Register(Tool{
		Name:        "write_file",
		Description: "Write a UTF-8 text file in the workspace, creating parent directories as needed.",
		SchemaJSON:  schemaFor(writeFileArgs{}),
		Handler:     f.writeFile,
	}); err != nil {
		return err
	}
	return reg.Register(Tool{
		Name:        "list_directory",
		Description: "List the immediate entries of a workspace directory.",
		SchemaJSON:  schemaFor(listDirArgs{}),
		Handler:     f.listDir,
	})
}

func (f FileOps) readFile(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args readFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	path, err := f.resolve(args.Path)
	if err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	return Result{Content: string(data)}, nil
}

func (f FileOps) writeFile(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args writeFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	path, err := f.resolve(args.Path)
	if err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	if IsDryRun(ctx) {
		before, readErr := os.ReadFile(path)
		if readErr != nil {
			before = nil
		}
		return Result{Content: fmt.Sprintf(
			"dry run: %s would change from %d to %d bytes\n--- before ---\n%s\n--- after ---\n%s",
			args.Path, len(before), len(args.Content), before, args.Content,
		)}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	return Result{Content: fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path)}, nil
}

func (f FileOps) listDir(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args listDirArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	path, err := f.resolve(args.Path)
	if err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		if e.IsDir() {
			names[i] = e.Name() + "/"
		} else {
			names[i] = e.Name()
		}
	}
	payload, err := json.Marshal(names)
	if err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	return Result{Content: string(payload)}, nil
}
