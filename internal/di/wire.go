// Package di provides dependency injection wiring and initialization.
package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/qlbm/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container
// Order of operations:
// 1. Open the calibration store
// 2. Create the results archive (if configured)
// 3. Create the execution backend
// 4. Create the mitigation services
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	if err := InitializeStore(ctx, container, cfg, log); err != nil {
		return nil, fmt.Errorf("failed to initialize calibration store: %w", err)
	}

	if err := InitializeArchive(ctx, container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize results archive: %w", err)
	}

	if err := InitializeBackend(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize backend: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, nil
}
