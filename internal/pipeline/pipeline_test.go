package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/mouthtrack/internal/geometry"
	"github.com/kozaktomas/mouthtrack/internal/logging"
)

// sliceSource serves a fixed list of frames.
type sliceSource struct {
	frames []Frame
	live   bool
	err    error // returned after the frames instead of io.EOF

	mu     sync.Mutex
	pos    int
	closed bool
	done   chan struct{}
}

func newSliceSource(n int, live bool) *sliceSource {
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = Frame{Seq: i, Image: []byte{byte(i)}}
	}
	return &sliceSource{frames: frames, live: live, done: make(chan struct{})}
}

func (s *sliceSource) Next(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.frames) {
		select {
		case <-s.done:
		default:
			close(s.done)
		}
		if s.err != nil {
			return Frame{}, s.err
		}
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *sliceSource) Live() bool { return s.live }

type stubDetector struct {
	err error
}

func (d stubDetector) Detect(_ context.Context, f Frame) (geometry.LandmarkSet, error) {
	if d.err != nil {
		return nil, d.err
	}
	x := float64(f.Seq) / 100
	return geometry.LandmarkSet{
		geometry.TopLipCenter:     {X: x, Y: 0.5},
		geometry.BottomLipCenter:  {X: x, Y: 0.6},
		geometry.LeftMouthCorner:  {X: x - 0.1, Y: 0.55},
		geometry.RightMouthCorner: {X: x + 0.1, Y: 0.55},
	}, nil
}

func opts(size int, det Detector) Options {
	return Options{QueueSize: size, Detector: det, Logger: logging.Discard()}
}

func TestRun_FileSourceIsLossless(t *testing.T) {
	src := newSliceSource(20, false)

	var seen []int
	stats, err := Run(context.Background(), src, opts(2, stubDetector{}), func(_ context.Context, d Detection) error {
		require.NoError(t, d.Err)
		seen = append(seen, d.Frame.Seq)
		time.Sleep(time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, Stats{Produced: 20, Handled: 20}, stats)
	for i, seq := range seen {
		assert.Equal(t, i, seq)
	}
	assert.True(t, src.closed)
}

func TestRun_LiveSourceDropsOldest(t *testing.T) {
	src := newSliceSource(50, true)

	var seen []int
	stats, err := Run(context.Background(), src, opts(2, stubDetector{}), func(_ context.Context, d Detection) error {
		if len(seen) == 0 {
			<-src.done // hold the consumer until the source is exhausted
		}
		seen = append(seen, d.Frame.Seq)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 50, stats.Produced)
	assert.Positive(t, stats.Dropped)
	assert.Equal(t, stats.Produced, stats.Handled+stats.Dropped)
	assert.LessOrEqual(t, stats.Handled, 3)
	assert.Equal(t, 49, seen[len(seen)-1], "newest frame is kept")
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1], seen[i])
	}
}

func TestRun_PrelabeledFramesSkipDetector(t *testing.T) {
	lm := geometry.LandmarkSet{geometry.TopLipCenter: {X: 0.5, Y: 0.5}}
	src := &sliceSource{
		frames: []Frame{
			{Seq: 0, Prelabeled: true, Landmarks: lm},
			{Seq: 1, Prelabeled: true},
		},
		done: make(chan struct{}),
	}

	var got []Detection
	stats, err := Run(context.Background(), src, opts(4, stubDetector{err: errors.New("must not be called")}),
		func(_ context.Context, d Detection) error {
			got = append(got, d)
			return nil
		})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.NoError(t, got[0].Err)
	assert.Equal(t, lm, got[0].Landmarks)
	assert.ErrorIs(t, got[1].Err, geometry.ErrIncompleteLandmarks)
	assert.Equal(t, 1, stats.Failed)
}

func TestRun_DetectorErrorsAreHandedOn(t *testing.T) {
	errNoFace := errors.New("no face")
	src := newSliceSource(3, false)

	var errs int
	stats, err := Run(context.Background(), src, opts(1, stubDetector{err: errNoFace}), func(_ context.Context, d Detection) error {
		if errors.Is(d.Err, errNoFace) {
			errs++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, errs)
	assert.Equal(t, 3, stats.Failed)
}

func TestRun_NoDetector(t *testing.T) {
	src := newSliceSource(1, false)
	_, err := Run(context.Background(), src, opts(1, nil), func(_ context.Context, d Detection) error {
		assert.ErrorIs(t, d.Err, ErrNoDetector)
		return nil
	})
	require.NoError(t, err)
}

func TestRun_HandlerStop(t *testing.T) {
	src := newSliceSource(100, false)

	handled := 0
	stats, err := Run(context.Background(), src, opts(4, stubDetector{}), func(_ context.Context, d Detection) error {
		handled++
		if handled == 5 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, handled)
	assert.Equal(t, 5, stats.Handled)
	assert.True(t, src.closed)
}

func TestRun_HandlerError(t *testing.T) {
	boom := errors.New("boom")
	src := newSliceSource(10, false)

	_, err := Run(context.Background(), src, opts(4, stubDetector{}), func(context.Context, Detection) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, src.closed)
}

func TestRun_SourceError(t *testing.T) {
	broken := errors.New("camera unplugged")
	src := newSliceSource(2, false)
	src.err = broken

	stats, err := Run(context.Background(), src, opts(4, stubDetector{}), func(context.Context, Detection) error {
		return nil
	})
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, 2, stats.Handled)
}

// flakySource is a live source whose reads fail at the listed positions.
type flakySource struct {
	frames int
	fail   map[int]bool
	calls  int
	closed bool
}

func (s *flakySource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	call := s.calls
	s.calls++
	if s.fail[call] {
		return Frame{}, errors.New("camera error (status 503)")
	}
	if call >= s.frames {
		return Frame{}, io.EOF
	}
	return Frame{Seq: call, Prelabeled: true}, nil
}

func (s *flakySource) Close() error { s.closed = true; return nil }
func (s *flakySource) Live() bool   { return true }

func TestRun_LiveSourceSkipsTransientErrors(t *testing.T) {
	src := &flakySource{frames: 6, fail: map[int]bool{2: true, 4: true}}

	var seqs []int
	stats, err := Run(context.Background(), src, opts(8, nil), func(_ context.Context, d Detection) error {
		seqs = append(seqs, d.Frame.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3, 5}, seqs)
	assert.Equal(t, 2, stats.SourceErrors)
	assert.True(t, src.closed)
}

func TestRun_LiveSourceErrorBudget(t *testing.T) {
	src := &flakySource{frames: 10, fail: map[int]bool{1: true, 2: true, 3: true}}
	o := opts(8, nil)
	o.MaxSourceErrors = 3

	handled := 0
	stats, err := Run(context.Background(), src, o, func(context.Context, Detection) error {
		handled++
		return nil
	})
	assert.ErrorContains(t, err, "3 consecutive failures")
	assert.Equal(t, 1, handled)
	assert.Equal(t, 3, stats.SourceErrors)
}

// blockingSource produces frames until its context is cancelled.
type blockingSource struct {
	seq    int
	closed bool
}

func (s *blockingSource) Next(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-time.After(time.Millisecond):
	}
	s.seq++
	return Frame{Seq: s.seq, Prelabeled: true}, nil
}

func (s *blockingSource) Close() error { s.closed = true; return nil }
func (s *blockingSource) Live() bool   { return true }

func TestRun_CancelIsNotAnError(t *testing.T) {
	src := &blockingSource{}
	ctx, cancel := context.WithCancel(context.Background())

	handled := 0
	_, err := Run(ctx, src, opts(2, nil), func(context.Context, Detection) error {
		handled++
		if handled == 3 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, handled)
	assert.True(t, src.closed)
}
