package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/bandit-router/router"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate a router config file",
	Run: func(cmd *cobra.Command, args []string) {
		if configPath == "" {
			logrus.Fatalf("--config is required")
		}
		cfg, err := loadConfig(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config OK: algorithm=%s dim=%d arms=%d\n",
			cfg.Policy.Algorithm, cfg.Features.Dim, len(cfg.Arms))
	},
}

// loadConfig loads path (or the defaults when path is empty) and validates it.
func loadConfig(path string) (*router.Config, error) {
	cfg := router.DefaultConfig()
	if path != "" {
		loaded, err := router.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
