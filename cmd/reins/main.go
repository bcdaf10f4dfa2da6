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

// Command reins is the CLI for the Reins agent runtime.
//
// Usage:
//
//	reins serve --config reins.yaml
//	reins chat --provider gemini --model gemini-2.0-flash
//	reins info --config reins.yaml assistant
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sort"

	"github.com/alecthomas/kong"

	"github.com/reins-ai/reins"
	"github.com/reins-ai/reins/pkg/config"
)

// ANSI colors for user-facing terminal output. Logs go through
// pkg/logger; these only decorate the banner, prompts and the startup
// summary.
const (
	colorBrand = "\033[38;2;217;119;6m"
	colorReset = "\033[0m"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API server."`
	Chat     ChatCmd     `cmd:"" help:"Chat with an agent from the terminal."`
	Info     InfoCmd     `cmd:"" help:"Show agent information."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := reins.GetVersion()
	// A module-aware install carries its own version; prefer it over the
	// compiled-in default.
	if bi, ok := debug.ReadBuildInfo(); ok {
		if bi.Main.Version != "(devel)" && bi.Main.Version != "" {
			info.Version = bi.Main.Version
		}
	}
	fmt.Println(info.String())
	return nil
}

// InfoCmd shows agent information from a configuration file.
type InfoCmd struct {
	Agent string `arg:"" optional:"" help:"Agent name to show info for."`
}

func (c *InfoCmd) Run(cli *CLI) error {
	ctx := context.Background()

	if cli.Config == "" {
		return fmt.Errorf("--config is required for info command")
	}

	_ = config.LoadDotEnvForConfig(cli.Config)
	cfg, loader, err := config.LoadConfigFile(ctx, cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer loader.Close()

	if c.Agent == "" {
		names := cfg.ListAgents()
		sort.Strings(names)
		fmt.Println("Available agents:")
		for _, name := range names {
			agentCfg, _ := cfg.GetAgent(name)
			desc := agentCfg.Description
			if desc == "" {
				desc = "(no description)"
			}
			fmt.Printf("  - %s: %s\n", name, desc)
		}
		return nil
	}

	agentCfg, ok := cfg.GetAgent(c.Agent)
	if !ok {
		return cfg.ValidateAgent(c.Agent)
	}

	fmt.Printf("\nAgent: %s\n", c.Agent)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Name:        %s\n", agentCfg.Name)
	if agentCfg.Description != "" {
		fmt.Printf("Description: %s\n", agentCfg.Description)
	}
	fmt.Printf("LLM:         %s\n", agentCfg.LLM)
	if len(agentCfg.Tools) > 0 {
		fmt.Printf("Tools:       %v\n", agentCfg.Tools)
	}
	if len(agentCfg.Guardrails) > 0 {
		fmt.Printf("Guardrails:  %v\n", agentCfg.Guardrails)
	}
	if agentCfg.Knowledge != "" {
		fmt.Printf("Knowledge:   %s\n", agentCfg.Knowledge)
	}
	if len(agentCfg.AgentTools) > 0 {
		fmt.Printf("Delegates:   %v\n", agentCfg.AgentTools)
	}
	return nil
}

// ensureZeroConfigFlagsUnused rejects mixing --config with the
// zero-config LLM flags, which would otherwise be silently ignored.
func ensureZeroConfigFlagsUnused(configPath string, flags ...string) error {
	if configPath == "" {
		return nil
	}
	for _, f := range flags {
		if f != "" {
			return fmt.Errorf("--provider, --model, --api-key and --base-url configure zero-config mode and cannot be combined with --config")
		}
	}
	return nil
}

// printBanner prints the colored ASCII banner when stdout is a terminal.
func printBanner() {
	info, err := os.Stdout.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return
	}

	banner := `
██████╗ ███████╗██╗███╗   ██╗███████╗
██╔══██╗██╔════╝██║████╗  ██║██╔════╝
██████╔╝█████╗  ██║██╔██╗ ██║███████╗
██╔══██╗██╔══╝  ██║██║╚██╗██║╚════██║
██║  ██║███████╗██║██║ ╚████║███████║
╚═╝  ╚═╝╚══════╝╚═╝╚═╝  ╚═══╝╚══════╝
`
	fmt.Printf("%s%s%s\n", colorBrand, banner, colorReset)
}

// shouldSkipBanner reports whether the invoked command is informational
// and should stay banner-free.
func shouldSkipBanner(args []string) bool {
	if len(args) < 2 {
		return false
	}
	for _, arg := range args[1:] {
		switch arg {
		case "info", "validate", "version":
			return true
		}
	}
	return false
}

func main() {
	if !shouldSkipBanner(os.Args) {
		printBanner()
	}

	_ = config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("reins"),
		kong.Description("Reins - config-first agent runtime with human-in-the-loop tool approval"),
		kong.UsageOnError(),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
