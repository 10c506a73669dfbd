package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/mouthtrack/internal/coach"
	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/motion"
	"github.com/kozaktomas/mouthtrack/internal/report"
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Re-run the tracker over recorded landmarks",
	Long: `Feed a landmark recording made with --record back through the tracker.
No face-mesh service is needed. By default the replayed session is not
stored; pass --save to store it in the session database.

Examples:
  # Print statistics of a recorded training session
  mouthtrack replay session.jsonl --kind training --action left

  # Render the measurements as an interactive chart
  mouthtrack replay session.jsonl --chart session.html`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().String("kind", string(database.KindTraining), "Run kind: calibration or training")
	replayCmd.Flags().String("action", string(motion.Open), "Action: open, left or right")
	replayCmd.Flags().String("patient", "", "Patient name; selects the calibration file")
	replayCmd.Flags().Int("repetitions", 0, "Number of training repetitions (0 = TRAINING_REPETITIONS)")
	replayCmd.Flags().Bool("save", false, "Store the replayed session in the session database")
	replayCmd.Flags().String("chart", "", "Write an HTML chart of the measurements to this file")
	replayCmd.Flags().Bool("json", false, "Print the result as JSON")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	kind, ok := database.ParseKind(mustGetString(cmd, "kind"))
	if !ok {
		return fmt.Errorf("invalid --kind %q: expected calibration or training", mustGetString(cmd, "kind"))
	}
	action, err := motion.ParseAction(mustGetString(cmd, "action"))
	if err != nil {
		return err
	}
	if _, err := os.Stat(args[0]); err != nil {
		return fmt.Errorf("cannot read recording: %w", err)
	}

	opts := coach.Options{
		Kind:        kind,
		Action:      action,
		Patient:     strings.TrimSpace(mustGetString(cmd, "patient")),
		Source:      "replay:" + args[0],
		Repetitions: mustGetInt(cmd, "repetitions"),
	}

	var records []motion.Record
	sink := coach.SinkFunc(func(e coach.Event) {
		if e.Type == coach.EventMeasurement && e.Record != nil {
			records = append(records, *e.Record)
		}
	})

	res, runErr := executeRun(cmd, cfg, opts, sink, mustGetBool(cmd, "save"))
	if res == nil {
		return runErr
	}

	if chartPath := mustGetString(cmd, "chart"); chartPath != "" {
		if err := writeChart(chartPath, records, report.ChartOptions{
			Title:    fmt.Sprintf("Replay of %s", args[0]),
			Subtitle: fmt.Sprintf("%s %s, %d frames", kind, action, len(records)),
		}); err != nil {
			return err
		}
	}

	if mustGetBool(cmd, "json") {
		if err := outputJSON(res); err != nil {
			return err
		}
		return runErr
	}
	printResult(res)
	if kind == database.KindTraining {
		printRepetitions(res)
	}
	summary := report.Summarize(records)
	fmt.Printf("\nDisplacement: mean %.4f, stddev %.4f, range %.4f to %.4f\n",
		summary.Displacement.Mean, summary.Displacement.StdDev, summary.Displacement.Min, summary.Displacement.Max)
	return runErr
}

// writeChart renders records to path, or to stdout when path is "-".
func writeChart(path string, records []motion.Record, o report.ChartOptions) error {
	if path == "-" {
		return report.RenderChart(os.Stdout, records, o)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart file: %w", err)
	}
	if err := report.RenderChart(f, records, o); err != nil {
		f.Close()
		return fmt.Errorf("rendering chart: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing chart file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Chart written to %s\n", path)
	return nil
}
