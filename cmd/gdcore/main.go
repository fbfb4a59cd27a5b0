// gdcore is the developer harness for the data-safety and
// consistency-validation core: it validates trees of XML game config files,
// watches them for interactive editing, and manages the safety manager's
// versioned backups.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gdcore/internal/config"
	"gdcore/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gdcore",
	Short: "Data-safety and consistency-validation core for game config files",
	Long: `gdcore cross-validates large trees of interlinked XML game config
files (items, drop tables, NPCs, experience tables, skills, learn configs)
and funnels every file mutation through a transactional, backed-up,
integrity-checked safety gateway.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Debug = true
		}
		if err := logging.Initialize(cfg.Logging.Debug); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "gdcore.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
