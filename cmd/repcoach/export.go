package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ayusman/repcoach/internal/analysis"
	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/report"
	"github.com/ayusman/repcoach/internal/store"
)

func newExportCmd() *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export SESSION",
		Short: "Export a finished session as a FIT file or an angle chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := exercise.Load(cfg.Exercises.File)
			if err != nil {
				return err
			}
			st, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			if output == "" {
				output = args[0] + "." + format
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}

			if err := export(f, st, registry, args[0], format); err != nil {
				f.Close()
				os.Remove(output)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "fit", "Export format: fit or png")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default SESSION.FORMAT)")
	return cmd
}

// export writes the session sessionID to w in the given format.
func export(w io.Writer, st *store.Store, registry *exercise.Registry, sessionID, format string) error {
	if format != "fit" && format != "png" {
		return fmt.Errorf("unknown format %q (want fit or png)", format)
	}

	row, err := st.Sessions().GetByID(sessionID)
	if err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	if row.Status != store.SessionFinished {
		return report.ErrSessionActive
	}
	ex, err := registry.Get(row.ExerciseID)
	if err != nil {
		return err
	}

	if format == "png" {
		samples, err := st.Samples().GetBySession(row.ID)
		if err != nil {
			return fmt.Errorf("load samples: %w", err)
		}
		chart, err := report.Chart(samples, ex)
		if err != nil {
			return err
		}
		_, err = chart.WriteTo(w)
		return err
	}

	var summary analysis.Summary
	if len(row.Summary) > 0 {
		if err := json.Unmarshal(row.Summary, &summary); err != nil {
			return fmt.Errorf("decode summary: %w", err)
		}
	}
	data, err := report.FIT(row, summary, ex)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
