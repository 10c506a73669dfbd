package calibration

import (
	"errors"
	"testing"

	"github.com/kozaktomas/mouthtrack/internal/motion"
)

func TestFormat(t *testing.T) {
	got := string(Format(motion.CalibrationResults{MaxOpen: 0.12345, MaxLeft: -0.045, MaxRight: 0.05}))
	want := "version: 1\nmax_open: 0.123\nmax_left: -0.045\nmax_right: 0.050\n"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		data string
		want motion.CalibrationResults
	}{
		{
			name: "current format",
			data: "version: 1\nmax_open: 0.123\nmax_left: -0.045\nmax_right: 0.050\n",
			want: motion.CalibrationResults{MaxOpen: 0.123, MaxLeft: -0.045, MaxRight: 0.05},
		},
		{
			name: "current format with missing field",
			data: "version: 1\nmax_open: 0.2\n",
			want: motion.CalibrationResults{MaxOpen: 0.2},
		},
		{
			name: "legacy labels",
			data: "最大张嘴位移: 0.150\n最大左侧位移: -0.060\n最大右侧位移: 0.070\n",
			want: motion.CalibrationResults{MaxOpen: 0.15, MaxLeft: -0.06, MaxRight: 0.07},
		},
		{
			name: "legacy full-width colon",
			data: "最大张嘴位移：0.150\n",
			want: motion.CalibrationResults{MaxOpen: 0.15},
		},
		{
			name: "unversioned english labels",
			data: "max_right: 0.1\n\n",
			want: motion.CalibrationResults{MaxRight: 0.1},
		},
		{
			name: "empty",
			data: "",
			want: motion.CalibrationResults{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.data))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	data := "最大张嘴位移: 0.150\n" +
		"garbage line\n" +
		"最大左侧位移: abc\n" +
		"favourite colour: blue\n" +
		"最大右侧位移: 0.070\n"

	got, err := Parse([]byte(data))
	want := motion.CalibrationResults{MaxOpen: 0.15, MaxRight: 0.07}
	if got != want {
		t.Errorf("Parse() = %+v, want %+v", got, want)
	}

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	if len(perr.Lines) != 3 {
		t.Fatalf("ParseError has %d lines, want 3: %v", len(perr.Lines), perr)
	}

	wantErrs := []struct {
		line int
		err  error
	}{
		{2, ErrMissingSeparator},
		{3, ErrInvalidValue},
		{4, ErrUnknownLabel},
	}
	for i, w := range wantErrs {
		le := perr.Lines[i]
		if le.Line != w.line || !errors.Is(le, w.err) {
			t.Errorf("Lines[%d] = line %d %v, want line %d %v", i, le.Line, le.Err, w.line, w.err)
		}
	}

	for _, sentinel := range []error{ErrMissingSeparator, ErrInvalidValue, ErrUnknownLabel} {
		if !errors.Is(err, sentinel) {
			t.Errorf("errors.Is(err, %v) = false", sentinel)
		}
	}
}

func TestParse_LegacyPositiveLeft(t *testing.T) {
	data := "最大张嘴位移: 0.150\n最大左侧位移: 0.060\n最大右侧位移: 0.070\n"

	got, err := Parse([]byte(data))
	want := motion.CalibrationResults{MaxOpen: 0.15, MaxLeft: 0.06, MaxRight: 0.07}
	if got != want {
		t.Errorf("Parse() = %+v, want %+v", got, want)
	}
	if !errors.Is(err, ErrPositiveLeft) {
		t.Fatalf("Parse() error = %v, want ErrPositiveLeft", err)
	}
	var perr *ParseError
	if !errors.As(err, &perr) || len(perr.Lines) != 1 || perr.Lines[0].Line != 2 {
		t.Errorf("ParseError = %v, want line 2 only", err)
	}
}

func TestParse_NegativeLeftIsClean(t *testing.T) {
	if _, err := Parse([]byte("最大左侧位移: -0.060\n")); err != nil {
		t.Errorf("Parse() error = %v", err)
	}
}

func TestParse_UnsupportedVersion(t *testing.T) {
	_, err := Parse([]byte("version: 2\nmax_open: 0.1\n"))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Parse() error = %v, want ErrUnsupportedVersion", err)
	}
}

func TestParse_FormatRoundTripRounds(t *testing.T) {
	got, err := Parse(Format(motion.CalibrationResults{MaxOpen: 0.1236, MaxLeft: -0.0444}))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := motion.CalibrationResults{MaxOpen: 0.124, MaxLeft: -0.044}
	if got != want {
		t.Errorf("Parse(Format()) = %+v, want %+v", got, want)
	}
}
