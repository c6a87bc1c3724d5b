package eval

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// computeHistogram bins absolute error samples into fixed-width bins over
// [0, maxDist]. Samples equal to maxDist land in the last bin.
func computeHistogram(samples []float64, maxDist float64, bins int) []int {
	counts := make([]int, bins)
	binSize := maxDist / float64(bins)
	for _, v := range samples {
		bin := int(v / binSize)
		if bin >= bins {
			bin = bins - 1
		}
		if bin < 0 {
			bin = 0
		}
		counts[bin]++
	}
	return counts
}

func histogramLabels(counts []int, maxDist float64) []string {
	labels := make([]string, len(counts))
	binSize := maxDist / float64(len(counts))
	for i := range counts {
		labels[i] = fmt.Sprintf("%.4g", float64(i+1)*binSize)
	}
	return labels
}

// writeHistogramCSV writes one row per bin: the bin's upper error bound
// and the number of samples in it.
func writeHistogramCSV(path string, counts []int, maxDist float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, "BinUpper,Count"); err != nil {
		f.Close()
		return err
	}
	labels := histogramLabels(counts, maxDist)
	for i, c := range counts {
		if _, err := fmt.Fprintf(f, "%s,%d\n", labels[i], c); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// renderHistogramHTML renders the error distribution as a standalone HTML
// bar chart.
func renderHistogramHTML(path, mapName string, counts []int, maxDist float64) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Reconstruction error distribution",
			Subtitle: mapName,
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "error upper bound [m]"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ground truth points"}),
	)

	data := make([]opts.BarData, len(counts))
	for i, c := range counts {
		data[i] = opts.BarData{Value: c}
	}
	bar.SetXAxis(histogramLabels(counts, maxDist)).
		AddSeries("points", data)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := bar.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
