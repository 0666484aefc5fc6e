// Package loader collects pipeline steps from named modules, either compiled in or loaded
// from Go plugins.
package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/quartictech/quartic/pkg/pipeline"
)

// PluginSymbol is the exported symbol a plugin must provide. Its type must be DefineFunc or
// func(*pipeline.Module) error.
const PluginSymbol = "Define"

// DefineFunc declares the steps of one module.
type DefineFunc func(m *pipeline.Module) error

// Loader maps module names to their definitions.
type Loader struct {
	logger   *slog.Logger
	registry *pipeline.Registry
	modules  map[string]DefineFunc
}

func New(registry *pipeline.Registry, logger *slog.Logger) *Loader {
	return &Loader{
		logger:   logger.With("module", "loader"),
		registry: registry,
		modules:  make(map[string]DefineFunc),
	}
}

// Register makes define available under name.
func (l *Loader) Register(name string, define DefineFunc) error {
	if _, exists := l.modules[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
	}

	l.modules[name] = define

	return nil
}

// Names returns the registered module names, sorted.
func (l *Loader) Names() []string {
	names := make([]string, 0, len(l.modules))
	for name := range l.modules {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// LoadPlugins registers every plugin found under dir. A plugin at dir/a/b.so becomes module
// "a/b".
func (l *Loader) LoadPlugins(dir string) ([]string, error) {
	paths, err := doublestar.Glob(os.DirFS(dir), "**/*.so")
	if err != nil {
		return nil, err
	}

	logger := l.logger.With("path", dir)
	logger.Info("Loading pipeline plugins", "count", len(paths))

	names := make([]string, 0, len(paths))

	for _, p := range paths {
		define, err := openPlugin(filepath.Join(dir, p))
		if err != nil {
			return nil, err
		}

		name := strings.TrimSuffix(p, ".so")
		if err := l.Register(name, define); err != nil {
			return nil, err
		}

		names = append(names, name)

		logger.Info("Loaded pipeline plugin", "plugin", name)
	}

	return names, nil
}

func openPlugin(path string) (DefineFunc, error) {
	plg, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPlugin, path, err)
	}

	sym, err := plg.Lookup(PluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPlugin, path, err)
	}

	switch define := sym.(type) {
	case func(*pipeline.Module) error:
		return define, nil
	case *DefineFunc:
		return *define, nil
	default:
		return nil, fmt.Errorf("%w: %s: %s has type %T", ErrInvalidPlugin, path, PluginSymbol, sym)
	}
}

// Resolve expands doublestar patterns into registered module names, keeping the order the
// patterns were given in. A pattern without a match fails with ModuleNotFoundError.
func (l *Loader) Resolve(patterns ...string) ([]string, error) {
	names := l.Names()

	var out []string

	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid module pattern %q: %w", pattern, doublestar.ErrBadPattern)
		}

		found := false

		for _, name := range names {
			if ok, _ := doublestar.Match(pattern, name); ok {
				found = true

				if !slices.Contains(out, name) {
					out = append(out, name)
				}
			}
		}

		if !found {
			return nil, &ModuleNotFoundError{Module: pattern}
		}
	}

	return out, nil
}

// Load defines the modules matching patterns inside a fresh registration context and returns
// the registered nodes. Errors and panics raised by a definition come back as a DefineError
// wrapping a pipeline.CodeError.
func (l *Loader) Load(patterns ...string) ([]*pipeline.Node, error) {
	names, err := l.Resolve(patterns...)
	if err != nil {
		return nil, err
	}

	var nodes []*pipeline.Node

	_, err = l.registry.Scope(func(c *pipeline.Context) error {
		for _, name := range names {
			define := l.modules[name]
			m := c.Module(name)

			if err := pipeline.Guard(func() error { return define(m) }); err != nil {
				return &DefineError{Module: name, Source: pipeline.SourceOf(define), Err: err}
			}

			l.logger.Debug("Defined module", "name", name)
		}

		nodes = c.Nodes()

		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loaded pipeline", "modules", len(names), "steps", len(nodes))

	return nodes, nil
}
