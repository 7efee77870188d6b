package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gandretiraghu/gptr-road-safety/internal/config"
	"github.com/gandretiraghu/gptr-road-safety/internal/core/service"
	"github.com/gandretiraghu/gptr-road-safety/internal/logging"
	"github.com/gandretiraghu/gptr-road-safety/internal/store"
)

var globalFlags struct {
	configPath string
	driver     string
	dsn        string
	database   string
	json       bool
}

// storeOptions resolves the store from config file, environment and flags.
func storeOptions() (store.Options, error) {
	cfg := config.Default()
	path := globalFlags.configPath
	if path == "" {
		path = os.Getenv("GPTR_CONFIG")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return store.Options{}, err
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return store.Options{}, err
	}
	opts := cfg.StoreOptions()
	if globalFlags.driver != "" {
		opts.Driver = globalFlags.driver
	}
	if globalFlags.dsn != "" {
		opts.DSN = globalFlags.dsn
	}
	if globalFlags.database != "" {
		opts.Database = globalFlags.database
	}
	if opts.Driver == store.DriverMemory {
		return store.Options{}, fmt.Errorf("the memory store keeps no history to inspect; use --driver=sqlite or --driver=mongo")
	}
	return opts, nil
}

// withQueries opens the store, runs fn and closes the store.
func withQueries(cmd *cobra.Command, fn func(ctx context.Context, q *service.QueryService) error) error {
	opts, err := storeOptions()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	backend, err := store.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open %s store: %w", opts.Driver, err)
	}
	defer backend.Close()
	return fn(ctx, service.NewQueryService(backend, nil, logging.Discard()))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
