// Command solve points an autonomous coding agent at a single GitHub or
// SourceCraft issue or pull request and drives it to a closing summary
// comment. Grounded on the prior cmd/agentium/main.go: a thin main
// that wires the CLI layer to the engine and blank-imports the provider
// packages for their registration side effects.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andymwolf/solveengine/internal/cliapp"
	"github.com/andymwolf/solveengine/internal/config"
	"github.com/andymwolf/solveengine/internal/engine"
	"github.com/andymwolf/solveengine/internal/obslog"

	_ "github.com/andymwolf/solveengine/internal/provider/github"
	_ "github.com/andymwolf/solveengine/internal/provider/sourcecraft"
)

func main() {
	if err := cliapp.Execute(run); err != nil {
		fmt.Fprintln(os.Stderr, "solve:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, targetURL string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sessionID := cfg.Resume
	logger := obslog.New(ctx, sessionID)
	defer func() {
		if err := logger.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "solve: error closing logger:", err)
		}
	}()

	if cfg.Verbose {
		logger.Info(fmt.Sprintf("starting solve run for %s", targetURL))
		if dump, err := cfg.DebugYAML(); err == nil {
			logger.Info("resolved configuration:\n" + dump)
		}
	}

	eng := engine.New(cfg, logger, sessionID)
	if err := eng.Run(ctx, targetURL); err != nil {
		logger.Error(err.Error())
		return err
	}
	return nil
}
