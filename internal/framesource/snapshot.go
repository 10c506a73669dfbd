package framesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kozaktomas/mouthtrack/internal/constants"
	"github.com/kozaktomas/mouthtrack/internal/pipeline"
	"github.com/kozaktomas/mouthtrack/internal/timeutil"
)

// SnapshotSource polls a camera's still-image URL at a fixed rate.
type SnapshotSource struct {
	url    string
	clock  timeutil.Clock
	ticker timeutil.Ticker
	client *http.Client
	seq    int
	polls  int
}

// NewSnapshotSource creates a source polling url fps times per second.
func NewSnapshotSource(url string, fps int, clock timeutil.Clock) *SnapshotSource {
	interval := frameInterval(fps)
	return &SnapshotSource{
		url:    url,
		clock:  clock,
		ticker: clock.NewTicker(interval),
		client: &http.Client{Timeout: max(interval*4, time.Second)},
	}
}

// Next fetches a snapshot. The first poll happens immediately, later polls
// on the ticker, including retries after a failed poll.
func (s *SnapshotSource) Next(ctx context.Context) (pipeline.Frame, error) {
	s.polls++
	if s.polls > 1 {
		select {
		case <-ctx.Done():
			return pipeline.Frame{}, ctx.Err()
		case <-s.ticker.C():
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("fetching snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pipeline.Frame{}, fmt.Errorf("camera error (status %d)", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxSnapshotSize+1))
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(data) > constants.MaxSnapshotSize {
		return pipeline.Frame{}, fmt.Errorf("snapshot exceeds %d bytes", constants.MaxSnapshotSize)
	}

	f := pipeline.Frame{
		Seq:         s.seq,
		Time:        s.clock.Now(),
		Name:        fmt.Sprintf("snapshot-%06d", s.seq),
		Image:       data,
		ContentType: resp.Header.Get("Content-Type"),
	}
	s.seq++
	return f, nil
}

func (s *SnapshotSource) Close() error {
	s.ticker.Stop()
	return nil
}

func (s *SnapshotSource) Live() bool { return true }
