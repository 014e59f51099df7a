package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/hupe1980/ragmesh"
	"github.com/hupe1980/ragmesh/config"
)

var (
	configPath string
	sessionID  string
)

// newMesh builds the RAGMesh for a command. Tests replace it with an
// offline instance.
var newMesh = func(cfg *config.Config, optFns ...func(o *ragmesh.Options)) (*ragmesh.RAGMesh, error) {
	return ragmesh.NewFromConfig(cfg, optFns...)
}

var rootCmd = &cobra.Command{
	Use:   "ragmesh",
	Short: "Answer questions about people from a self-filling knowledge base",
	Long: `ragmesh answers questions about people. It searches the local knowledge
base first and fetches missing subjects from Wikipedia on demand.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "cli", "conversation session id")
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig resolves the config file (explicit flag, then the default
// search paths) and applies environment overrides. Without any file the
// defaults are used.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	path, err := config.FindConfig(configPath)
	switch {
	case err == nil:
		if cfg, err = config.Load(path); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	case configPath != "":
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
