package cmd

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/mouthtrack/internal/coach"
	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/motion"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <open|left|right>",
	Short: "Record the largest reachable movement in one direction",
	Long: `Track the mouth and keep the largest movement reached in the given
direction. The calibration file of the patient is updated every time the
maximum grows, so an interrupted run keeps what it measured.

Examples:
  # Calibrate mouth opening from a folder of camera frames
  mouthtrack calibrate open --patient "Jan Novak" --source dir:./frames

  # Calibrate the left shift from a snapshot camera for 30 seconds
  mouthtrack calibrate left --source http://camera.local/snapshot.jpg --duration 30s`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"open", "left", "right"},
	RunE:      runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
	addRunFlags(calibrateCmd)
}

// calibrationSink shows tracked frames and the growing maximum.
type calibrationSink struct {
	bar  *progressbar.ProgressBar
	mode motion.Mode
}

func newCalibrationSink(action motion.State) *calibrationSink {
	return &calibrationSink{
		mode: motion.ModeFor(action),
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(fmt.Sprintf("Calibrating %s", action)),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("frames"),
			progressbar.OptionSpinnerType(14),
		),
	}
}

func (s *calibrationSink) Emit(e coach.Event) {
	switch e.Type {
	case coach.EventMeasurement:
		s.bar.Add(1)
	case coach.EventCalibration:
		s.bar.Describe(fmt.Sprintf("Calibrating %s, max %.3f", s.mode, e.Calibration.Max(s.mode)))
	case coach.EventCompleted:
		s.bar.Finish()
	}
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := runOptions(cmd, cfg, database.KindCalibration, args[0])
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")

	var sink coach.Sink = coach.Discard
	if !jsonOutput {
		sink = newCalibrationSink(opts.Action)
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
	fmt.Printf("\nStored %s maximum: %.3f\n", opts.Action, res.Calibration.Max(motion.ModeFor(opts.Action)))
	return err
}
