package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/mouthtrack/internal/config"
	"github.com/kozaktomas/mouthtrack/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "mouthtrack",
	Short: "Mouth-motion tracker for facial rehabilitation exercises",
	Long: `mouthtrack follows the mouth of a patient frame by frame, classifies
it as neutral, open, shifted left or shifted right, records the largest
reachable movement per direction (calibration) and guides timed exercises
scored against those maxima (training).

Frames come from an image directory, an HTTP snapshot camera or a recorded
landmark file. Landmarks are detected by the face-mesh service.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this rotating file; overrides LOG_FILE")
	rootCmd.PersistentFlags().String("calibration-dir", "", "Directory of the calibration files; overrides CALIBRATION_DIR")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the configuration and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Load()
	if v := mustGetString(cmd, "log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := mustGetString(cmd, "log-file"); v != "" {
		cfg.Log.File = v
	}
	if v := mustGetString(cmd, "calibration-dir"); v != "" {
		cfg.Calibration.Dir = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	level := cfg.Log.Level
	if v := mustGetString(cmd, "log-level"); v != "" {
		level = v
	}
	file := cfg.Log.File
	if v := mustGetString(cmd, "log-file"); v != "" {
		file = v
	}

	log, err := logging.Setup(logging.Options{Level: level, File: file})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"command": cmd.CommandPath(), "version": Version}).Debug("starting")
	return nil
}
