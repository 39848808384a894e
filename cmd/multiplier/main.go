// multiplier serves the storage and access API behind the Multiplier
// synthesizer front end.
//
// It reads configuration from multiplier.json (or a YAML file given with
// --config), connects to PostgreSQL or SQLite and serves the
// /multiplier-api/v1 routes.
//
// Usage:
//
//	./multiplier serve                      # reads ./multiplier.json
//	./multiplier migrate --config prod.yaml # bootstrap tables only
//	./multiplier user create --login alice --email alice@example.com
//	./multiplier user set-meta 7 patreon_pledge_amount_cents 500
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/multiplier-synth/multiplier-api/internal/config"
	"github.com/multiplier-synth/multiplier-api/internal/logger"
)

var configPath string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:           "multiplier",
	Short:         "Multiplier synthesizer backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "multiplier.json", "Config file (.json, .yaml or .yml)")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userSetMetaCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and builds the logger it asks for.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}
