package cmd

import (
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/mouthtrack/internal/coach"
	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/training"
)

var trainCmd = &cobra.Command{
	Use:   "train <open|left|right>",
	Short: "Guide a training exercise scored against the calibrated maximum",
	Long: `Step through the exercise program: alternate between the movement and
rest, one step per interval. While a movement step is active each frame is
scored as a percentage of the calibrated maximum of that direction.

Examples:
  # Five repetitions of mouth opening from a snapshot camera
  mouthtrack train open --patient "Jan Novak" --source http://camera.local/snapshot.jpg --repetitions 5

  # Score a recorded session
  mouthtrack train right --source replay:session.jsonl`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"open", "left", "right"},
	RunE:      runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
	addRunFlags(trainCmd)
	trainCmd.Flags().Int("repetitions", 0, "Number of repetitions (0 = TRAINING_REPETITIONS)")
}

// trainingSink prints each step and shows the score of the current step as
// a progress bar.
type trainingSink struct {
	bar *progressbar.ProgressBar
}

func newTrainingSink() *trainingSink {
	return &trainingSink{}
}

func (s *trainingSink) newBar(step training.Step) {
	s.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(fmt.Sprintf("Rep %d: %s", step.Repetition, step.Instruction)),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowCount(),
		progressbar.OptionFullWidth(),
	)
}

func (s *trainingSink) Emit(e coach.Event) {
	switch e.Type {
	case coach.EventStep:
		if s.bar != nil {
			s.bar.Exit()
			fmt.Fprintln(os.Stderr)
		}
		s.bar = nil
		if e.Step.Directed() {
			s.newBar(*e.Step)
		} else {
			fmt.Fprintf(os.Stderr, "Rep %d: %s\n", e.Step.Repetition, e.Step.Instruction)
		}
	case coach.EventProgress:
		if s.bar != nil && e.Progress.Scored {
			s.bar.Set(int(math.Round(math.Min(e.Progress.Percentage, 100))))
		}
	case coach.EventMaxReached:
		if s.bar != nil {
			s.bar.Describe("Maximum reached!")
		}
	case coach.EventCompleted:
		if s.bar != nil {
			s.bar.Exit()
			fmt.Fprintln(os.Stderr)
		}
	}
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := runOptions(cmd, cfg, database.KindTraining, args[0])
	if err != nil {
		return err
	}
	opts.Repetitions = mustGetInt(cmd, "repetitions")
	jsonOutput := mustGetBool(cmd, "json")

	var sink coach.Sink = coach.Discard
	if !jsonOutput {
		sink = newTrainingSink()
	}

	res, err := executeRun(cmd, cfg, opts, sink, true)
	// A source failure still returns the measurements taken before it.
	if res == nil {
		return err
	}
	if jsonOutput {
		if jerr := outputJSON(res); jerr != nil {
			return jerr
		}
		return err
	}

	printResult(res)
	printRepetitions(res)
	return err
}

// printRepetitions prints the per-repetition scores of a training run.
func printRepetitions(res *coach.Result) {
	if !res.Calibrated {
		fmt.Printf("\nNo calibrated maximum for %q; frames were not scored. Run \"mouthtrack calibrate %s\" first.\n",
			res.Action, res.Action)
		return
	}
	if len(res.Repetitions) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\n  REP\tPEAK\tMAX REACHED\tFRAMES")
	for _, r := range res.Repetitions {
		peak := "-"
		if r.Scored {
			peak = fmt.Sprintf("%.0f%%", r.Peak)
		}
		fmt.Fprintf(w, "  %d\t%s\t%t\t%d\n", r.Repetition, peak, r.MaxReached, r.Frames)
	}
	w.Flush()

	if !res.Completed {
		fmt.Println("\nThe program was stopped before its end.")
	}
}
