package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yousuf/tracemap/internal/config"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "tracemap",
	Short:         "Deobfuscate minified JavaScript stack traces with source maps",
	Long:          `tracemap rewrites browser error stack traces to original source locations using source maps that it keeps loaded and fresh.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.Version = version

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("TRACEMAP_CONFIG"), "path to config file (.json, .toml, .yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the --config file, falling back to the default search paths.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{
		ConfigPath:        configPath,
		SearchPaths:       config.DefaultSearchPaths(),
		AllowEnvOverrides: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w\n\nHint: specify a config file with --config or TRACEMAP_CONFIG", err)
	}
	return cfg, nil
}
