package tools

import (
	"context"
	"encoding/json"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
)

type symbolIndexArgs struct {
	Path string `json:"path" jsonschema:"description=Directory to index; defaults to the workspace root"`
}

type symbol struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	File string `json:"file"`
	Line int    `json:"line"`
}

// SymbolIndex extracts top-level Go declarations (functions, types,
// methods) from the workspace tree. This is deliberately stdlib-only
// (go/ast, go/parser): a multi-language ctags/LSP client is unjustified
// weight for a single Go-symbol-lookup tool.
type SymbolIndex struct {
	Root string
}

func (s SymbolIndex) Register(reg *Registry) error {
	return reg.Register(Tool{
		Name:        "symbol_index",
		Description: "List top-level Go function, method, and type declarations under a workspace path.",
		SchemaJSON:  schemaFor(symbolIndexArgs{}),
		Handler:     s.run,
	})
}

func (s SymbolIndex) run(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args symbolIndexArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	root := filepath.Join(s.Root, args.Path)

	var symbols []symbol
	fset := token.NewFileSet()
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		file, err := parser.ParseFile(fset, path, nil, 0)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(s.Root, path)
		for _, decl := range file.Decls {
			switch d := decl.(type) {
			case *ast.FuncDecl:
				kind := "func"
				name := d.Name.Name
				if d.Recv != nil && len(d.Recv.List) > 0 {
					kind = "method"
				}
				symbols = append(symbols, symbol{Name: name, Kind: kind, File: rel, Line: fset.Position(d.Pos()).Line})
			case *ast.GenDecl:
				for _, spec := range d.Specs {
					if ts, ok := spec.(*ast.TypeSpec); ok {
						symbols = append(symbols, symbol{Name: ts.Name.Name, Kind: "type", File: rel, Line: fset.Position(ts.Pos()).Line})
					}
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return Result{IsError: true, Content: walkErr.Error()}, nil
	}

	payload, err := json.Marshal(symbols)
	if err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	return Result{Content: string(payload)}, nil
}
