package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

type searchArgs struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Regular expression to search for"`
	Path    string `json:"path" jsonschema:"description=Directory to search under; defaults to the workspace root"`
	MaxHits int    `json:"max_hits" jsonschema:"description=Maximum number of matches to return (default 200)"`
}

type searchHit struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Search implements a grep-style content search confined to the
// workspace, mirroring nexus's preference for narrow, single-purpose
// tools over a combined do-everything search.
type Search struct {
	Root string
}

func (s Search) Register(reg *Registry) error {
	return reg.Register(Tool{
		Name:        "search_files",
		Description: "Search workspace file contents for a regular expression.",
		SchemaJSON:  schemaFor(searchArgs{}),
		Handler:     s.run,
	})
}

func (s Search) run(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args searchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	re, err := regexp.Compile(args.Pattern)
	if err != nil {
		return Result{IsError: true, Content: fmt.Sprintf("invalid pattern: %v", err)}, nil
	}
	maxHits := args.MaxHits
	if maxHits <= 0 {
		maxHits = 200
	}

	root := filepath.Join(s.Root, args.Path)
	var hits []searchHit
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || len(hits) >= maxHits {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		rel, _ := filepath.Rel(s.Root, path)
		scanner := bufio.NewScanner(f)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if re.MatchString(scanner.Text()) {
				hits = append(hits, searchHit{Path: rel, Line: lineNo, Text: strings.TrimSpace(scanner.Text())})
				if len(hits) >= maxHits {
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return Result{IsError: true, Content: walkErr.Error()}, nil
	}

	payload, err := json.Marshal(hits)
	if err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	return Result{Content: string(payload)}, nil
}
