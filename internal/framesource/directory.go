package framesource

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kozaktomas/mouthtrack/internal/pipeline"
)

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".bmp":  "image/bmp",
}

// DirectorySource reads the images of a directory in lexical order. Frame
// times are synthesized from the frame rate, starting at start.
type DirectorySource struct {
	files    []string
	start    time.Time
	interval time.Duration
	pos      int
}

// OpenDirectory lists the images in dir.
func OpenDirectory(dir string, fps int, start time.Time) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := imageTypes[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	slices.Sort(files)

	return &DirectorySource{files: files, start: start, interval: frameInterval(fps)}, nil
}

// Len returns the number of frames.
func (s *DirectorySource) Len() int {
	return len(s.files)
}

func (s *DirectorySource) Next(ctx context.Context) (pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Frame{}, err
	}
	if s.pos >= len(s.files) {
		return pipeline.Frame{}, io.EOF
	}

	path := s.files[s.pos]
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("reading frame %s: %w", path, err)
	}

	f := pipeline.Frame{
		Seq:         s.pos,
		Time:        s.start.Add(time.Duration(s.pos) * s.interval),
		Name:        filepath.Base(path),
		Image:       data,
		ContentType: imageTypes[strings.ToLower(filepath.Ext(path))],
	}
	s.pos++
	return f, nil
}

func (s *DirectorySource) Close() error { return nil }
func (s *DirectorySource) Live() bool   { return false }
