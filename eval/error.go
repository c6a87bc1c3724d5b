package eval

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Report holds the accuracy statistics of one reconstruction-error pass.
// TotalPoints counts the whole ground-truth set, including points that
// were out of bounds or unknown.
type Report struct {
	Mean            float64
	StdDev          float64
	RMSE            float64
	TotalPoints     int
	UnknownPoints   int
	TruncatedPoints int

	samples []float64
}

// computeReconstructionError queries the map's distance field at every
// ground-truth point and aggregates the absolute errors. Distances beyond
// the requested maximum are clamped and counted as truncated; points in
// unobserved space are counted as unknown and contribute no sample.
func (e *Evaluator) computeReconstructionError() *Report {
	total := len(e.gt)
	maxDist := float64(e.req.MaximumDistance)

	interval := total / 100
	if interval == 0 {
		interval = 1
	}
	e.progress.Reset()

	report := &Report{TotalPoints: total}
	report.samples = make([]float64, 0, total)
	for i, p := range e.gt {
		if i%interval == 0 {
			e.progress.Display(float64(i) / float64(total))
		}
		if !e.bounds.Contains(p) {
			continue
		}
		d, ok := e.submaps.Distance(p)
		if !ok {
			report.UnknownPoints++
			continue
		}
		err := math.Abs(float64(d))
		if err > maxDist {
			err = maxDist
			report.TruncatedPoints++
		}
		report.samples = append(report.samples, err)
	}
	e.progress.Display(1)

	if n := len(report.samples); n > 0 {
		report.Mean = stat.Mean(report.samples, nil)
		report.RMSE = math.Sqrt(floats.Dot(report.samples, report.samples) / float64(n))
		if n > 2 {
			report.StdDev = stat.StdDev(report.samples, nil)
		}
	}
	return report
}

// writeReport emits the one-header, one-row CSV accuracy report.
func writeReport(w io.Writer, r *Report) error {
	if _, err := fmt.Fprintln(w, "MeanError,StdError,RMSE,TotalPoints,UnknownPoints,TruncatedPoints"); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%g,%g,%g,%d,%d,%d\n",
		r.Mean, r.StdDev, r.RMSE, r.TotalPoints, r.UnknownPoints, r.TruncatedPoints)
	return err
}
