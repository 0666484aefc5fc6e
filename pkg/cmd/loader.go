package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/quartictech/quartic/examples/weather"
	"github.com/quartictech/quartic/pkg/loader"
	"github.com/quartictech/quartic/pkg/pipeline"
)

func registerNativeModules(l *loader.Loader) error {
	return l.Register("examples/weather", weather.Define)
}

// NewLoader returns a loader with the compiled-in modules and every plugin found under
// pluginsPath. A missing plugins directory is not an error.
func NewLoader(logger *slog.Logger, pluginsPath string) (*loader.Loader, error) {
	l := loader.New(pipeline.NewRegistry(logger), logger)

	if err := registerNativeModules(l); err != nil {
		return nil, err
	}

	if pluginsPath == "" {
		return l, nil
	}

	if _, err := os.Stat(pluginsPath); os.IsNotExist(err) {
		logger.Debug("Plugins directory not found", "path", pluginsPath)

		return l, nil
	}

	if _, err := l.LoadPlugins(pluginsPath); err != nil {
		return nil, fmt.Errorf("failed to load plugins from %s: %w", pluginsPath, err)
	}

	return l, nil
}
