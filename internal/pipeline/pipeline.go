// Package pipeline moves frames from a source to a single consumer through a
// bounded queue.
//
// The source runs in its own goroutine. The consumer runs on the caller's
// goroutine and handles one frame at a time, so per-run state touched by the
// handler needs no locking.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/mouthtrack/internal/geometry"
)

// DefaultQueueSize is the queue capacity used when none is configured.
const DefaultQueueSize = 8

// DefaultMaxSourceErrors is how many consecutive read errors of a live source
// are tolerated when none is configured.
const DefaultMaxSourceErrors = 10

var (
	// ErrStop may be returned by a Handler to end the run without error.
	ErrStop = errors.New("pipeline stopped")

	// ErrNoDetector is reported for image frames when no detector is configured.
	ErrNoDetector = errors.New("no landmark detector configured")
)

// Frame is one captured frame. Image frames carry encoded image bytes;
// replayed frames carry landmarks and skip detection.
type Frame struct {
	Seq         int
	Time        time.Time
	Name        string
	Image       []byte
	ContentType string

	// Landmarks is set by sources that deliver landmarks directly.
	// Prelabeled distinguishes a replayed "no face" frame (nil landmarks)
	// from an image frame.
	Landmarks  geometry.LandmarkSet
	Prelabeled bool
}

// Source produces frames. Next returns io.EOF when the source is exhausted.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error

	// Live reports whether frames are produced in real time. Live sources
	// drop the oldest queued frame when the consumer falls behind.
	Live() bool
}

// Detector finds face landmarks in an image frame.
type Detector interface {
	Detect(ctx context.Context, frame Frame) (geometry.LandmarkSet, error)
}

// Detection is what the consumer hands to the Handler for every frame.
// Err is set when no landmarks could be obtained for the frame.
type Detection struct {
	Frame     Frame
	Landmarks geometry.LandmarkSet
	Err       error
}

// Handler processes one detection. Returning ErrStop ends the run cleanly;
// any other error aborts it.
type Handler func(ctx context.Context, d Detection) error

// Options configures Run.
type Options struct {
	QueueSize int
	Detector  Detector
	Logger    logrus.FieldLogger

	// MaxSourceErrors is the number of consecutive read errors a live source
	// may return before the run fails. Each failed read is a frame without
	// measurement. File sources fail on the first error.
	MaxSourceErrors int
}

// Stats counts what happened to the frames of a run.
type Stats struct {
	Produced int `json:"produced"`
	Handled  int `json:"handled"`
	Dropped  int `json:"dropped"`
	Failed   int `json:"failed"` // handled frames without landmarks

	SourceErrors int `json:"source_errors"` // failed reads of a live source
}

// Run reads src until it is exhausted, ctx is cancelled or the handler stops,
// and closes src before returning. Cancellation is not an error.
func Run(ctx context.Context, src Source, opts Options, handle Handler) (Stats, error) {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	maxErrors := opts.MaxSourceErrors
	if maxErrors <= 0 {
		maxErrors = DefaultMaxSourceErrors
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan Frame, size)
	var produced, dropped, sourceErrors atomic.Int64
	var produceErr error
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(queue)
		p := producer{
			src:          src,
			queue:        queue,
			log:          log,
			maxErrors:    maxErrors,
			produced:     &produced,
			dropped:      &dropped,
			sourceErrors: &sourceErrors,
		}
		produceErr = p.run(ctx)
	}()

	var stats Stats
	var handleErr error
	for frame := range queue {
		if ctx.Err() != nil {
			continue // drain
		}

		d := Detection{Frame: frame}
		switch {
		case frame.Prelabeled:
			d.Landmarks = frame.Landmarks
			if d.Landmarks == nil {
				d.Err = geometry.ErrIncompleteLandmarks
			}
		case opts.Detector == nil:
			d.Err = ErrNoDetector
		default:
			d.Landmarks, d.Err = opts.Detector.Detect(ctx, frame)
		}

		stats.Handled++
		if d.Err != nil {
			stats.Failed++
			log.WithFields(logrus.Fields{"frame": frame.Seq, "error": d.Err}).Debug("no landmarks for frame")
		}

		if err := handle(ctx, d); err != nil {
			if !errors.Is(err, ErrStop) {
				handleErr = err
			}
			cancel()
		}
	}
	wg.Wait()

	stats.Produced = int(produced.Load())
	stats.Dropped = int(dropped.Load())
	stats.SourceErrors = int(sourceErrors.Load())
	if stats.Dropped > 0 {
		log.WithField("dropped", stats.Dropped).Info("consumer fell behind, frames dropped")
	}

	closeErr := src.Close()

	switch {
	case handleErr != nil:
		return stats, handleErr
	case produceErr != nil:
		return stats, produceErr
	case closeErr != nil:
		return stats, fmt.Errorf("closing frame source: %w", closeErr)
	}
	return stats, nil
}

// producer reads a source into the queue.
type producer struct {
	src       Source
	queue     chan Frame
	log       logrus.FieldLogger
	maxErrors int

	produced, dropped, sourceErrors *atomic.Int64
}

func (p *producer) run(ctx context.Context) error {
	src, queue, produced, dropped := p.src, p.queue, p.produced, p.dropped
	live := src.Live()
	failures := 0
	for {
		frame, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			if !live {
				return fmt.Errorf("reading frame: %w", err)
			}
			failures++
			p.sourceErrors.Add(1)
			if failures >= p.maxErrors {
				return fmt.Errorf("reading frame: %d consecutive failures: %w", failures, err)
			}
			p.log.WithFields(logrus.Fields{"error": err, "consecutive": failures}).Warn("frame source failed, frame skipped")
			continue
		}
		failures = 0
		produced.Add(1)

		if !live {
			select {
			case queue <- frame:
			case <-ctx.Done():
				return nil
			}
			continue
		}

		select {
		case queue <- frame:
			continue
		default:
		}
		// Queue full: make room by discarding the oldest frame. This goroutine
		// is the only sender, so a slot is free afterwards.
		select {
		case <-queue:
			dropped.Add(1)
		default:
		}
		select {
		case queue <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}
