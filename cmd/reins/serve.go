// Copyright 2026 The Reins Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/reins-ai/reins/pkg/auth"
	"github.com/reins-ai/reins/pkg/config"
	"github.com/reins-ai/reins/pkg/runtime"
	"github.com/reins-ai/reins/pkg/server"
)

// ServeCmd starts the HTTP API server.
type ServeCmd struct {
	// Zero-config options
	Provider string `help:"LLM provider (gemini, ollama)."`
	Model    string `help:"Model name."`
	APIKey   string `name:"api-key" help:"API key (defaults to environment variable)."`
	BaseURL  string `name:"base-url" help:"Custom API base URL."`

	// Server options
	Host  string `help:"Host to bind to."`
	Port  int    `help:"Port to listen on."`
	Watch bool   `help:"Watch config file for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	if err := ensureZeroConfigFlagsUnused(cli.Config, c.Provider, c.Model, c.APIKey, c.BaseURL); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, loader, err := c.loadConfig(ctx, cli.Config)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	// Flags beat the config file for the listen address.
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	rt, err := runtime.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build runtime: %w", err)
	}
	defer rt.Close()

	validator, err := auth.NewValidatorFromConfig(cfg.Server.Auth)
	if err != nil {
		return fmt.Errorf("failed to configure auth: %w", err)
	}

	srv := server.New(&cfg.Server, rt.Agents(), rt.Runs(), rt.Approvals(),
		server.WithAuthValidator(validator),
		server.WithObservability(rt.Observability()),
	)

	printServerInfo(cfg, srv.Address(), rt)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if c.Watch && loader != nil {
		g.Go(func() error {
			if err := loader.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("config watch failed: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// loadConfig loads configuration from file, or builds the zero-config
// deployment from the command's LLM flags when no file is given.
func (c *ServeCmd) loadConfig(ctx context.Context, configPath string) (*config.Config, *config.Loader, error) {
	if configPath != "" {
		_ = config.LoadDotEnvForConfig(configPath)
		cfg, loader, err := config.LoadConfigFile(ctx, configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		slog.Info("Loaded configuration", "path", configPath)
		return cfg, loader, nil
	}

	cfg := &config.Config{
		LLMs: map[string]*config.LLMConfig{
			"default": {
				Provider: config.LLMProvider(c.Provider),
				APIKey:   c.APIKey,
				BaseURL:  c.BaseURL,
				Model:    c.Model,
			},
		},
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}
	slog.Info("Using zero-config mode")
	return cfg, nil, nil
}

// printServerInfo prints the startup summary to the terminal.
func printServerInfo(cfg *config.Config, addr string, rt *runtime.Runtime) {
	scheme := "http"
	if cfg.Server.TLS != nil && config.BoolValue(cfg.Server.TLS.Enabled, false) {
		scheme = "https"
	}

	fmt.Printf("\n%sreins server ready%s\n", colorBrand, colorReset)
	fmt.Printf("   API:        %s://%s/v1\n", scheme, addr)
	fmt.Printf("   Health:     %s://%s/healthz\n", scheme, addr)

	if obs := cfg.Server.Observability; obs != nil {
		if obs.Metrics.Enabled {
			fmt.Printf("   Metrics:    %s://%s/metrics\n", scheme, addr)
		}
		if obs.Tracing.Enabled {
			fmt.Printf("   Tracing:    stdout spans\n")
		}
	}
	if cfg.Server.Auth.IsEnabled() {
		mode := "optional"
		if cfg.Server.Auth.IsRequireAuth() {
			mode = "required"
		}
		fmt.Printf("   Auth:       JWT (%s)\n", mode)
	}

	fmt.Printf("   Storage:\n")
	fmt.Printf("     - Runs:      %s\n", storageLabel(cfg, cfg.Server.Runs))
	fmt.Printf("     - Sessions:  %s\n", storageLabel(cfg, cfg.Server.Sessions))
	fmt.Printf("     - Approvals: %s\n", storageLabel(cfg, cfg.Server.Approvals))

	names := make([]string, 0, len(rt.Agents()))
	for name := range rt.Agents() {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\n   Agents:")
	for _, name := range names {
		fmt.Printf("     - %s\n", name)
	}
	fmt.Println("\nPress Ctrl+C to stop")
}

func storageLabel(cfg *config.Config, sc *config.StorageConfig) string {
	if !sc.IsSQL() {
		return "in-memory (not persisted)"
	}
	if db, ok := cfg.Databases[sc.Database]; ok {
		return fmt.Sprintf("persistent (%s)", db.Driver)
	}
	return "persistent"
}
