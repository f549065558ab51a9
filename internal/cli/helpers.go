// Package cli provides API client and store helper functions.
package cli

import (
	"fmt"

	"github.com/canopy-fm/canopy/internal/api"
	"github.com/canopy-fm/canopy/internal/constants"
	"github.com/canopy-fm/canopy/internal/events"
	"github.com/canopy-fm/canopy/internal/state"
)

// getAPIClient loads configuration and creates an API client. This is the
// standard way to get a client in CLI commands.
func getAPIClient() (*api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	return client, nil
}

// getStore creates a store plus its event bus. The caller owns both; close
// the store first, then the bus.
func getStore() (*state.Store, *events.EventBus, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create API client: %w", err)
	}

	bus := events.NewEventBus(constants.SSEBufferSize)
	store := state.New(client, bus)
	if cfg.PageSize > 0 {
		store.SetPageSize(cfg.PageSize)
	}
	return store, bus, nil
}
