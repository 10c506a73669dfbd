package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// mustGet reads a flag registered in init(). A lookup error is a programming
// bug, so it panics.
func mustGet[T any](name string, get func(string) (T, error)) T {
	val, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return mustGet(name, cmd.Flags().GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return mustGet(name, cmd.Flags().GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return mustGet(name, cmd.Flags().GetString)
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	return mustGet(name, cmd.Flags().GetFloat64)
}

func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	return mustGet(name, cmd.Flags().GetStringSlice)
}

func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	return mustGet(name, cmd.Flags().GetDuration)
}

// addRunFlags registers the flags shared by commands that run a session.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "Frame source: dir:PATH, replay:PATH, snapshot:URL, a directory or an http(s) URL")
	cmd.Flags().String("patient", "", "Patient name; selects the calibration file")
	cmd.Flags().Int("fps", 0, "Frame rate of directory and snapshot sources (0 = CAPTURE_FPS)")
	cmd.Flags().String("record", "", "Record detected landmarks to this replay file")
	cmd.Flags().Duration("duration", 0, "Stop after this much frame time (0 = until the source ends)")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
}
