package cmd

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/mouthtrack/internal/calibration"
	"github.com/kozaktomas/mouthtrack/internal/motion"
)

var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Show or edit stored calibration maxima",
	Long:  "Read, override or reset the calibration file of a patient.",
}

var calibrationShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored calibration maxima",
	Args:  cobra.NoArgs,
	RunE:  runCalibrationShow,
}

var calibrationSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Override stored calibration maxima",
	Long: `Override one or more stored maxima. Axes without a flag keep their
stored value. The left maximum is a leftward displacement and is negative.

Examples:
  mouthtrack calibration set --patient "Jan Novak" --open 0.42
  mouthtrack calibration set --left=-0.18 --right 0.2`,
	Args: cobra.NoArgs,
	RunE: runCalibrationSet,
}

var calibrationResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the stored calibration maxima",
	Args:  cobra.NoArgs,
	RunE:  runCalibrationReset,
}

func init() {
	rootCmd.AddCommand(calibrationCmd)
	calibrationCmd.AddCommand(calibrationShowCmd, calibrationSetCmd, calibrationResetCmd)

	calibrationCmd.PersistentFlags().String("patient", "", "Patient name; selects the calibration file")
	calibrationShowCmd.Flags().Bool("json", false, "Print the maxima as JSON")
	calibrationSetCmd.Flags().Float64("open", 0, "Maximum mouth opening")
	calibrationSetCmd.Flags().Float64("left", 0, "Maximum leftward displacement (negative)")
	calibrationSetCmd.Flags().Float64("right", 0, "Maximum rightward displacement")
}

func calibrationStore(cmd *cobra.Command) (*calibration.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	patient := strings.TrimSpace(mustGetString(cmd, "patient"))
	return calibration.NewStore(calibration.PathFor(cfg.Calibration.Dir, patient)), nil
}

func runCalibrationShow(cmd *cobra.Command, args []string) error {
	store, err := calibrationStore(cmd)
	if err != nil {
		return err
	}

	res, err := store.Load()
	var perr *calibration.ParseError
	if err != nil && !errors.As(err, &perr) {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(res)
	}

	fmt.Printf("Calibration file: %s\n", store.Path())
	if perr != nil {
		fmt.Printf("Warning: %v\n", perr)
	}
	for _, action := range motion.Actions {
		mode := motion.ModeFor(action)
		value := res.Max(mode)
		if value == 0 {
			fmt.Printf("  %-6s not calibrated\n", action)
			continue
		}
		fmt.Printf("  %-6s %.4f\n", action, value)
	}
	return nil
}

func runCalibrationSet(cmd *cobra.Command, args []string) error {
	changed := map[motion.Mode]float64{}
	for flag, mode := range map[string]motion.Mode{
		"open":  motion.ModeOpen,
		"left":  motion.ModeLeft,
		"right": motion.ModeRight,
	} {
		if cmd.Flags().Changed(flag) {
			changed[mode] = mustGetFloat64(cmd, flag)
		}
	}
	if len(changed) == 0 {
		return errors.New("nothing to set: pass --open, --left or --right")
	}
	for mode, value := range changed {
		if err := validateMaximum(mode, value); err != nil {
			return err
		}
	}

	store, err := calibrationStore(cmd)
	if err != nil {
		return err
	}
	var res motion.CalibrationResults
	for _, mode := range []motion.Mode{motion.ModeOpen, motion.ModeLeft, motion.ModeRight} {
		value, ok := changed[mode]
		if !ok {
			continue
		}
		if res, err = store.Update(mode, value); err != nil {
			return fmt.Errorf("updating calibration: %w", err)
		}
	}

	fmt.Printf("Calibration saved to %s\n", store.Path())
	fmt.Printf("  open %.4f  left %.4f  right %.4f\n", res.MaxOpen, res.MaxLeft, res.MaxRight)
	return nil
}

// validateMaximum rejects values that cannot be reached in mode.
func validateMaximum(mode motion.Mode, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("--%s must be a finite number", mode)
	}
	switch mode {
	case motion.ModeLeft:
		if value > 0 {
			return errors.New("--left is a leftward displacement and must not be positive")
		}
	default:
		if value < 0 {
			return fmt.Errorf("--%s must not be negative", mode)
		}
	}
	return nil
}

func runCalibrationReset(cmd *cobra.Command, args []string) error {
	store, err := calibrationStore(cmd)
	if err != nil {
		return err
	}
	if err := store.Reset(); err != nil {
		return fmt.Errorf("resetting calibration: %w", err)
	}
	fmt.Printf("Calibration reset: %s\n", store.Path())
	return nil
}
