package filterplugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
	"github.com/fmuellner/telepathy-mission-control/pkg/filterchain"
)

// Loader watches a directory of YAML rule files and keeps a Chain's
// hot-loaded entries in sync with what is on disk.
type Loader struct {
	dir   string
	chain *filterchain.Chain

	mu      sync.Mutex
	loaded  map[string][]*Plugin // file path -> rules currently installed from it
	watcher *fsnotify.Watcher
}

// NewLoader prepares a Loader for dir without starting the watch loop.
func NewLoader(dir string, chain *filterchain.Chain) *Loader {
	return &Loader{
		dir:    dir,
		chain:  chain,
		loaded: make(map[string][]*Plugin),
	}
}

// LoadAll reads every *.yaml/*.yml file already in the directory. Call this
// once before Watch to establish the initial filter set.
func (l *Loader) LoadAll() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read filter plugin directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isRuleFile(entry.Name()) {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		if err := l.loadFile(path); err != nil {
			logger.Warn("failed to load filter rule file", "path", path, "error", err)
		}
	}
	return nil
}

// Watch starts the fsnotify loop, installing/removing rules as files are
// written, created, or removed, until ctx is done.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filter plugin watcher: %w", err)
	}

	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch filter plugin directory: %w", err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isRuleFile(event.Name) {
				continue
			}

			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				if err := l.loadFile(event.Name); err != nil {
					logger.Warn("failed to reload filter rule file", "path", event.Name, "error", err)
				}
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				l.unloadFile(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("filter plugin watcher error", "error", err)
		}
	}
}

func (l *Loader) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	plugins := make([]*Plugin, 0, len(file.Rules))
	for _, rule := range file.Rules {
		predicate, err := rule.compile()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		plugins = append(plugins, &Plugin{
			Name:        rule.Name,
			ChannelType: rule.ChannelType,
			Direction:   filterchain.Direction(rule.Direction),
			Enabled:     rule.enabled(),
			Source:      SourceFile,
			FilePath:    path,
			Predicate:   predicate,
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.unloadFileLocked(path)
	for _, p := range plugins {
		if !p.Enabled {
			continue
		}
		l.chain.Add(p.ChannelType, p.Direction, p.Name, p.Predicate)
	}
	l.loaded[path] = plugins

	logger.Info("filter rule file loaded", "path", path, "rules", len(plugins))
	return nil
}

func (l *Loader) unloadFile(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unloadFileLocked(path)
	logger.Info("filter rule file removed", "path", path)
}

// unloadFileLocked removes every chain entry previously installed from
// path. Caller must hold l.mu.
func (l *Loader) unloadFileLocked(path string) {
	for _, p := range l.loaded[path] {
		if p.Enabled {
			l.chain.Remove(p.ChannelType, p.Direction, p.Name)
		}
	}
	delete(l.loaded, path)
}

// Loaded returns every Plugin currently installed from hot-loaded files,
// across all watched files.
func (l *Loader) Loaded() []*Plugin {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*Plugin
	for _, plugins := range l.loaded {
		out = append(out, plugins...)
	}
	return out
}

// Close stops the watch loop early, if running.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}

func isRuleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
