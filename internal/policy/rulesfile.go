package policy

import (
	"fmt"
	"log/slog"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// ruleFile is the on-disk shape of a policy rule file (§6: "Policy rules
// (TOML)"): a flat list of rules, evaluated in priority order regardless
// of the order they're written in.
type ruleFile struct {
	Rules []Rule `toml:"rule"`
}

// LoadRulesFile parses a TOML rule file into the ordered Rule slice
// Resolver.LoadRules expects.
func LoadRulesFile(path string) ([]Rule, error) {
	var doc ruleFile
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("policy: decode rule file %s: %w", path, err)
	}
	return doc.Rules, nil
}

// WatchRulesFile reloads the resolver's rule set whenever path changes on
// disk, so an operator editing the rule file takes effect without a
// restart. It returns a stop function; parse errors on reload are logged
// and the previous rule set is kept in place.
func WatchRulesFile(r *Resolver, path string, logger *slog.Logger) (func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("policy: create rule file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("policy: watch rule file %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				rules, err := LoadRulesFile(path)
				if err != nil {
					logger.Error("policy: reload rule file failed, keeping prior rules", "path", path, "error", err)
					continue
				}
				r.LoadRules(rules)
				logger.Info("policy: reloaded rule file", "path", path, "rules", len(rules))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("policy: rule file watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return watcher.Close()
	}, nil
}
