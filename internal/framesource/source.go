// Package framesource provides the frame sources a run can read from: image
// directories, HTTP snapshot cameras and landmark replay files.
package framesource

import (
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/mouthtrack/internal/pipeline"
	"github.com/kozaktomas/mouthtrack/internal/timeutil"
)

// Source is a pipeline frame source.
type Source = pipeline.Source

// Open parses a source spec of the form "dir:PATH", "replay:PATH" or
// "snapshot:URL". A bare path is treated as a directory, a bare http(s) URL as
// a snapshot camera.
func Open(spec string, fps int, clock timeutil.Clock) (Source, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if fps <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %d", fps)
	}

	kind, target, ok := strings.Cut(spec, ":")
	if !ok || (kind != "dir" && kind != "replay" && kind != "snapshot") {
		kind, target = "dir", spec
		if strings.HasPrefix(spec, "http://") || strings.HasPrefix(spec, "https://") {
			kind = "snapshot"
		}
	}
	if target == "" {
		return nil, fmt.Errorf("empty source %q", spec)
	}

	switch kind {
	case "replay":
		return OpenReplay(target, clock.Now())
	case "snapshot":
		return NewSnapshotSource(target, fps, clock), nil
	default:
		return OpenDirectory(target, fps, clock.Now())
	}
}

// frameInterval returns the duration between frames at fps.
func frameInterval(fps int) time.Duration {
	return time.Second / time.Duration(fps)
}
