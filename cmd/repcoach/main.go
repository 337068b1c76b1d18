// Package main provides the CLI entry point for repcoach.
package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ayusman/repcoach/internal/config"
	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/logging"
	"github.com/ayusman/repcoach/internal/store"
)

// Version information (set at build time)
var version = "dev"

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "repcoach",
		Short: "repcoach - camera-based exercise form coach",
		Long: `repcoach watches a camera, tracks arm angles with a pose model and
counts repetitions for the selected exercise.

Use 'repcoach [command] --help' for more information.`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.repcoach/config.yaml)")

	rootCmd.AddCommand(
		newServeCmd(),
		newExercisesCmd(),
		newReplayCmd(),
		newExportCmd(),
		newMigrateCmd(),
	)
	return rootCmd
}

// loadConfig reads the configuration and builds the process logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
	})
	return cfg, log, nil
}

// openStore opens the database without starting any session machinery.
func openStore(cfg *config.Config, log zerolog.Logger) (*store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return store.New(cfg.DBPath(), store.WithLogger(log))
}

func newExercisesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exercises",
		Short: "List the configured exercises",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := exercise.Load(cfg.Exercises.File)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tVIEW\tSHOULDER\tELBOW\tPHASES")
			for _, ex := range registry.List() {
				phases := "-"
				if ex.Tracked() {
					phases = strings.Join(ex.PhaseNames(), ", ")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					ex.ID, ex.Name, ex.View,
					formatRange(ex.ShoulderThreshold), formatRange(ex.ElbowThreshold),
					phases)
			}
			return w.Flush()
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			if down {
				if err := st.MigrateDown(); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "all migrations rolled back")
				return nil
			}

			version, dirty, err := st.MigrateVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d (dirty=%t)\n", st.Path(), version, dirty)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Roll back every migration")
	return cmd
}
