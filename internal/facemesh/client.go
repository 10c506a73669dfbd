// Package facemesh is a client for the face-mesh landmark service.
//
// The service accepts an image upload and answers with the normalized 2-D
// landmarks of every face it found. Only the first face is used.
package facemesh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/mouthtrack/internal/geometry"
	"github.com/kozaktomas/mouthtrack/internal/pipeline"
)

const (
	defaultURL          = "http://localhost:8000"
	defaultMaxImageSize = 640
	landmarksEndpoint   = "/landmarks/face"
)

// ErrNoFace is returned when the service found no face in the image.
var ErrNoFace = errors.New("no face found")

// Client calls the face-mesh service.
type Client struct {
	baseURL      string
	maxImageSize int
	client       *http.Client
}

// NewClient creates a client. Images are downscaled so that their longest
// edge is at most maxImageSize before upload; zero selects the default.
func NewClient(baseURL string, maxImageSize int, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultURL
	}
	if maxImageSize <= 0 {
		maxImageSize = defaultMaxImageSize
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		maxImageSize: maxImageSize,
		client:       &http.Client{Timeout: timeout},
	}
}

// Face is one face reported by the service.
type Face struct {
	Landmarks [][]float64 `json:"landmarks"` // [x, y] per mesh index, normalized
	Score     float64     `json:"score"`
}

// Response is the landmark endpoint's reply.
type Response struct {
	FacesCount int    `json:"faces_count"`
	Faces      []Face `json:"faces"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

// LandmarkSet converts the face's landmarks to a set keyed by mesh index.
// Malformed points are left out, which makes the set incomplete.
func (f Face) LandmarkSet() geometry.LandmarkSet {
	set := make(geometry.LandmarkSet, len(f.Landmarks))
	for i, p := range f.Landmarks {
		if len(p) < 2 {
			continue
		}
		set[i] = geometry.Point{X: p[0], Y: p[1]}
	}
	return set
}

// Landmarks detects the landmarks of the first face in imageData.
func (c *Client) Landmarks(ctx context.Context, imageData []byte) (geometry.LandmarkSet, error) {
	resized, err := ResizeImage(imageData, c.maxImageSize)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, landmarksEndpoint, resized)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Faces) == 0 {
		return nil, ErrNoFace
	}
	return resp.Faces[0].LandmarkSet(), nil
}

// Detect implements pipeline.Detector.
func (c *Client) Detect(ctx context.Context, frame pipeline.Frame) (geometry.LandmarkSet, error) {
	return c.Landmarks(ctx, frame.Image)
}

// Health checks that the service answers.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face-mesh service unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// postMultipartImage uploads the image as the "file" form field.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "image/png"
	case data[0] == 'B' && data[1] == 'M':
		return "image/bmp"
	}
	return "application/octet-stream"
}
