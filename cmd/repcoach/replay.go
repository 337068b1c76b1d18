package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ayusman/repcoach/internal/analysis"
	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/kinematics"
	"github.com/ayusman/repcoach/internal/pose"
	"github.com/ayusman/repcoach/internal/session"
	"github.com/ayusman/repcoach/internal/tracker"
)

// replayInterval spaces frames that carry no timestamp.
const replayInterval = 33 * time.Millisecond

// replayFrame is one line of a landmark recording. T is milliseconds from the
// start of the recording.
type replayFrame struct {
	T *int64 `json:"t,omitempty"`
	pose.Pose
}

func newReplayCmd() *cobra.Command {
	var (
		exerciseID string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "replay --exercise ID FILE",
		Short: "Run a recorded landmark stream through the rep tracker",
		Long: `Replay reads a JSON-lines landmark recording, one pose per line in the
pose service's output format with an optional "t" field in milliseconds,
and prints every phase transition followed by the session summary.
Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := exercise.Load(cfg.Exercises.File)
			if err != nil {
				return err
			}
			ex, err := registry.Get(exerciseID)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			out := cmd.OutOrStdout()
			var transitions io.Writer = out
			if asJSON {
				transitions = io.Discard
			}

			summary, err := replay(in, ex, transitions, log)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			printSummary(out, summary)
			return nil
		},
	}
	cmd.Flags().StringVarP(&exerciseID, "exercise", "e", "", "Exercise ID to track")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print only the summary as JSON")
	cmd.MarkFlagRequired("exercise")
	return cmd
}

// replay feeds every frame in r through a fresh tracker for ex, writes one line
// per fired transition to w and returns the summary of the recording.
func replay(r io.Reader, ex *exercise.Exercise, w io.Writer, log zerolog.Logger) (analysis.Summary, error) {
	t := tracker.New(ex, log)
	rec := session.NewRecorder("replay", ex.ID, nil, nil, session.DefaultMaxSamples, log)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	base := time.Now()
	line, frame := 0, 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var f replayFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return analysis.Summary{}, fmt.Errorf("line %d: %w", line, err)
		}

		at := time.Duration(frame) * replayInterval
		if f.T != nil {
			at = time.Duration(*f.T) * time.Millisecond
		}
		frame++

		u := t.Process(&f.Pose)
		u.At = base.Add(at)
		rec.Render(u, nil)

		if u.Transition.Fired {
			fmt.Fprintf(w, "%8.2fs  %-8s -> %-8s  %-28s angle=%6.1f reps=%d\n",
				at.Seconds(), u.Transition.From, u.Transition.To, u.Transition.Phase,
				u.TrackedAngle, u.Reps)
		}
	}
	if err := scanner.Err(); err != nil {
		return analysis.Summary{}, fmt.Errorf("read recording: %w", err)
	}

	return analysis.Summarize(rec.Samples()), nil
}

func printSummary(w io.Writer, s analysis.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Reps:            %d\n", s.Reps)
	fmt.Fprintf(w, "Duration:        %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Frames:          %d (%d tracked)\n", s.Frames, s.TrackedFrames)
	fmt.Fprintf(w, "Form accuracy:   %.1f%%\n", s.FormAccuracy*100)
	if s.Reps > 0 {
		fmt.Fprintf(w, "Mean rep time:   %s\n", s.MeanRepDuration.Round(time.Millisecond))
		fmt.Fprintf(w, "Mean ROM:        %.1f°\n", s.MeanROM)
		fmt.Fprintf(w, "Consistency:     %.2f\n", s.Consistency)
	}
}

func formatRange(t *kinematics.Threshold) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%g-%g°", t.Min, t.Max)
}
