// Package calibration persists a patient's calibrated maxima.
//
// The file is line oriented, one "<label>: <value>" pair per line with values
// written to three decimals:
//
//	version: 1
//	max_open: 0.123
//	max_left: -0.045
//	max_right: 0.050
//
// Files without a version line are read with the legacy parser, which also
// understands the labels written by earlier releases.
package calibration

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/mouthtrack/internal/motion"
)

// CurrentVersion is the format version written by Format.
const CurrentVersion = 1

var (
	ErrUnsupportedVersion = errors.New("unsupported calibration file version")
	ErrMissingSeparator   = errors.New("missing ':' separator")
	ErrUnknownLabel       = errors.New("unknown label")
	ErrInvalidValue       = errors.New("invalid value")
	// ErrPositiveLeft marks a left maximum stored with the sign of earlier
	// releases. The value is still returned; recalibrating left replaces it.
	ErrPositiveLeft = errors.New("left maximum is positive, recalibrate left")
)

// LineError describes one malformed line.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// ParseError collects every malformed line of a file. Values from the
// well-formed lines are still returned alongside it.
type ParseError struct {
	Lines []*LineError
}

func (e *ParseError) Error() string {
	parts := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		parts[i] = l.Error()
	}
	return "malformed calibration file: " + strings.Join(parts, "; ")
}

func (e *ParseError) Unwrap() []error {
	errs := make([]error, len(e.Lines))
	for i, l := range e.Lines {
		errs[i] = l
	}
	return errs
}

type field int

const (
	fieldOpen field = iota
	fieldLeft
	fieldRight
)

// labels maps every accepted label to its field.
var labels = map[string]field{
	"max_open":  fieldOpen,
	"max_left":  fieldLeft,
	"max_right": fieldRight,
	"最大张嘴位移":    fieldOpen,
	"最大左侧位移":    fieldLeft,
	"最大右侧位移":    fieldRight,
}

type document struct {
	Version  int      `yaml:"version"`
	MaxOpen  *float64 `yaml:"max_open"`
	MaxLeft  *float64 `yaml:"max_left"`
	MaxRight *float64 `yaml:"max_right"`
}

// Format encodes res in the current file format.
func Format(res motion.CalibrationResults) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "version: %d\n", CurrentVersion)
	fmt.Fprintf(&b, "max_open: %.3f\n", res.MaxOpen)
	fmt.Fprintf(&b, "max_left: %.3f\n", res.MaxLeft)
	fmt.Fprintf(&b, "max_right: %.3f\n", res.MaxRight)
	return b.Bytes()
}

// Parse decodes a calibration file. Fields that are absent or malformed are
// left at zero; malformed lines are reported as a *ParseError.
func Parse(data []byte) (motion.CalibrationResults, error) {
	if hasVersion(data) {
		return parseVersioned(data)
	}
	return parseLegacy(data)
}

func hasVersion(data []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if strings.HasPrefix(strings.TrimSpace(sc.Text()), "version:") {
			return true
		}
	}
	return false
}

func parseVersioned(data []byte) (motion.CalibrationResults, error) {
	var res motion.CalibrationResults

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		// Fall back to line-by-line reading so valid fields survive.
		return parseLegacy(data)
	}
	if doc.Version > CurrentVersion || doc.Version < 1 {
		return res, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}

	var perr ParseError
	assign := func(dst *float64, v *float64, label string) {
		if v == nil {
			return
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			perr.Lines = append(perr.Lines, &LineError{Text: label, Err: ErrInvalidValue})
			return
		}
		*dst = *v
	}
	assign(&res.MaxOpen, doc.MaxOpen, "max_open")
	assign(&res.MaxLeft, doc.MaxLeft, "max_left")
	assign(&res.MaxRight, doc.MaxRight, "max_right")

	if len(perr.Lines) > 0 {
		return res, &perr
	}
	return res, nil
}

func parseLegacy(data []byte) (motion.CalibrationResults, error) {
	var res motion.CalibrationResults
	var perr ParseError

	sc := bufio.NewScanner(bytes.NewReader(data))
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text == "---" || strings.HasPrefix(text, "#") {
			continue
		}

		label, value, ok := cut(text)
		if !ok {
			perr.Lines = append(perr.Lines, &LineError{Line: n, Text: text, Err: ErrMissingSeparator})
			continue
		}
		if label == "version" {
			continue
		}
		f, known := labels[label]
		if !known {
			perr.Lines = append(perr.Lines, &LineError{Line: n, Text: text, Err: ErrUnknownLabel})
			continue
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			perr.Lines = append(perr.Lines, &LineError{Line: n, Text: text, Err: ErrInvalidValue})
			continue
		}

		switch f {
		case fieldOpen:
			res.MaxOpen = v
		case fieldLeft:
			if v > 0 {
				perr.Lines = append(perr.Lines, &LineError{Line: n, Text: text, Err: ErrPositiveLeft})
			}
			res.MaxLeft = v
		case fieldRight:
			res.MaxRight = v
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("reading calibration file: %w", err)
	}

	if len(perr.Lines) > 0 {
		return res, &perr
	}
	return res, nil
}

// cut splits a line on its first ASCII or full-width colon.
func cut(line string) (label, value string, ok bool) {
	i := strings.IndexAny(line, ":：")
	if i < 0 {
		return "", "", false
	}
	sep := ":"
	if strings.HasPrefix(line[i:], "：") {
		sep = "："
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+len(sep):]), true
}
