package framesource

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/kozaktomas/mouthtrack/internal/geometry"
	"github.com/kozaktomas/mouthtrack/internal/pipeline"
)

// replayLine is one line of a replay file. A null landmarks value records a
// frame in which no face was found.
type replayLine struct {
	T         float64              `json:"t"`
	Landmarks geometry.LandmarkSet `json:"landmarks"`
}

// ReplaySource reads landmark frames from a JSON-lines file.
// Frame times are offsets in seconds from start.
type ReplaySource struct {
	file    *os.File
	scanner *bufio.Scanner
	start   time.Time
	line    int
	seq     int
}

// OpenReplay opens a replay file.
func OpenReplay(path string, start time.Time) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening replay file: %w", err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &ReplaySource{file: f, scanner: sc, start: start}, nil
}

func (s *ReplaySource) Next(ctx context.Context) (pipeline.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return pipeline.Frame{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return pipeline.Frame{}, fmt.Errorf("reading replay file: %w", err)
			}
			return pipeline.Frame{}, io.EOF
		}
		s.line++

		raw := s.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l replayLine
		if err := json.Unmarshal(raw, &l); err != nil {
			return pipeline.Frame{}, fmt.Errorf("replay line %d: %w", s.line, err)
		}
		if l.T < 0 || math.IsNaN(l.T) {
			return pipeline.Frame{}, fmt.Errorf("replay line %d: invalid time %v", s.line, l.T)
		}

		f := pipeline.Frame{
			Seq:        s.seq,
			Time:       s.start.Add(time.Duration(l.T * float64(time.Second))),
			Name:       fmt.Sprintf("line-%d", s.line),
			Landmarks:  l.Landmarks,
			Prelabeled: true,
		}
		s.seq++
		return f, nil
	}
}

func (s *ReplaySource) Close() error { return s.file.Close() }
func (s *ReplaySource) Live() bool   { return false }

// Recorder writes detected landmarks in the replay format so that a live run
// can be replayed later. It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	file  *os.File
	w     *bufio.Writer
	start time.Time
	err   error
}

// CreateRecorder creates (or truncates) a replay file. Frame times are
// written relative to start.
func CreateRecorder(path string, start time.Time) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating replay file: %w", err)
	}
	return &Recorder{file: f, w: bufio.NewWriter(f), start: start}, nil
}

// Write appends one frame. Only the mouth landmarks are kept; a nil set
// records a frame without a face.
func (r *Recorder) Write(t time.Time, landmarks geometry.LandmarkSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}

	l := replayLine{T: t.Sub(r.start).Seconds()}
	if landmarks != nil {
		l.Landmarks = landmarks.Mouth()
	}
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encoding replay line: %w", err)
	}
	data = append(data, '\n')
	if _, err := r.w.Write(data); err != nil {
		r.err = fmt.Errorf("writing replay file: %w", err)
	}
	return r.err
}

// Close flushes and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.err, r.w.Flush(), r.file.Close())
}
