// Package report summarizes recorded measurements and renders them as charts.
package report

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kozaktomas/mouthtrack/internal/motion"
)

// AxisSummary describes the distribution of one measured quantity.
type AxisSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summary describes a series of records.
type Summary struct {
	Records      int                  `json:"records"`
	Duration     time.Duration        `json:"duration"`
	States       map[motion.State]int `json:"states"`
	Vertical     AxisSummary          `json:"vertical"`
	Horizontal   AxisSummary          `json:"horizontal"`
	Displacement AxisSummary          `json:"displacement"`
}

// Summarize computes per-state frame counts and per-axis statistics.
// The standard deviation is the sample deviation; it is zero for fewer than
// two records.
func Summarize(records []motion.Record) Summary {
	s := Summary{
		Records: len(records),
		States: map[motion.State]int{
			motion.Neutral: 0,
			motion.Open:    0,
			motion.Left:    0,
			motion.Right:   0,
		},
	}
	if len(records) == 0 {
		return s
	}

	vertical := make([]float64, len(records))
	horizontal := make([]float64, len(records))
	displacement := make([]float64, len(records))
	for i, r := range records {
		vertical[i] = r.Vertical
		horizontal[i] = r.Horizontal
		displacement[i] = r.Displacement
		s.States[r.State]++
	}

	s.Duration = records[len(records)-1].Time.Sub(records[0].Time)
	s.Vertical = summarizeAxis(vertical)
	s.Horizontal = summarizeAxis(horizontal)
	s.Displacement = summarizeAxis(displacement)
	return s
}

func summarizeAxis(values []float64) AxisSummary {
	a := AxisSummary{
		Min: floats.Min(values),
		Max: floats.Max(values),
	}
	if len(values) < 2 {
		a.Mean = values[0]
		return a
	}
	a.Mean, a.StdDev = stat.MeanStdDev(values, nil)
	return a
}
