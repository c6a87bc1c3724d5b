// Package eval computes reconstruction accuracy of a panoptic multi-TSDF
// map against a ground-truth surface point set, and optionally recolors
// the map by local reconstruction error.
package eval

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/seqsense/pcgol/pc"

	"github.com/seqsense/panmap/submap"
)

// Visualizer publishes a (possibly recolored) map to some display sink.
// Mesh extraction and transport are outside this package.
type Visualizer interface {
	Visualize(c *submap.Collection) error
}

// Evaluator runs one evaluation request start to finish. Stages run
// strictly in sequence; any stage failure aborts the run.
type Evaluator struct {
	req      *Request
	log      *slog.Logger
	bounds   Bounds
	viz      Visualizer
	progress *ProgressBar

	gt        pc.Vec3Slice
	submaps   *submap.Collection
	targetDir string
	mapName   string
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Evaluator) { e.log = log }
}

// WithBounds overrides the evaluation bounds from the request.
func WithBounds(b Bounds) Option {
	return func(e *Evaluator) { e.bounds = b }
}

// WithVisualizer wires a visualization sink for the visualize stage.
func WithVisualizer(v Visualizer) Option {
	return func(e *Evaluator) { e.viz = v }
}

// WithProgressOutput redirects progress reporting; nil disables it.
func WithProgressOutput(w io.Writer) Option {
	return func(e *Evaluator) { e.progress = NewProgressBar(w) }
}

// NewEvaluator creates an evaluator for the given request.
func NewEvaluator(req *Request, opts ...Option) *Evaluator {
	e := &Evaluator{
		req:      req,
		log:      slog.Default(),
		bounds:   req.bounds(),
		progress: NewProgressBar(os.Stderr),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the request. The stage sequence is: validate, load ground
// truth, load map, reconstruction error, error coloring, visualization.
// No stage starts before its dependencies succeeded.
func (e *Evaluator) Run() error {
	if err := e.req.Validate(); err != nil {
		e.log.Error("invalid evaluation request", "error", err)
		return fmt.Errorf("invalid evaluation request: %w", err)
	}

	if e.req.Evaluate || e.req.ComputeColoring {
		gt, err := LoadGroundTruth(e.req.GroundTruthPointcloudFile)
		if err != nil {
			e.log.Error("loading ground truth failed", "file", e.req.GroundTruthPointcloudFile, "error", err)
			return fmt.Errorf("load ground truth: %w", err)
		}
		e.gt = gt
		e.log.Info("loaded ground truth pointcloud", "points", len(gt))
	}

	if e.req.Evaluate || e.req.ComputeColoring || e.req.Visualize {
		c, err := submap.Load(e.req.MapFile)
		if err != nil {
			e.log.Error("loading map failed", "file", e.req.MapFile, "error", err)
			return fmt.Errorf("load map: %w", err)
		}
		e.submaps = c
		e.targetDir = filepath.Dir(e.req.MapFile)
		e.mapName = strings.TrimSuffix(filepath.Base(e.req.MapFile), submap.FileExtension)
		e.log.Info("loaded target map", "submaps", c.Len())
	}

	if e.req.Evaluate {
		if err := e.runEvaluate(); err != nil {
			e.log.Error("reconstruction error stage failed", "error", err)
			return err
		}
	}

	if e.req.ComputeColoring {
		e.log.Info("computing error coloring")
		e.colorReconstructionError()
		out := filepath.Join(e.targetDir, e.mapName+"_evaluated"+submap.FileExtension)
		if err := submap.Save(out, e.submaps); err != nil {
			e.log.Error("saving colored map failed", "file", out, "error", err)
			return err
		}
		e.log.Info("wrote colored map", "file", out)
	}

	if e.req.Visualize {
		if e.viz == nil {
			e.log.Warn("visualization requested but no visualizer is wired; skipping")
		} else if err := e.viz.Visualize(e.submaps); err != nil {
			e.log.Error("visualization stage failed", "error", err)
			return fmt.Errorf("visualize: %w", err)
		}
	}

	e.log.Info("evaluation done")
	return nil
}

func (e *Evaluator) runEvaluate() error {
	out := filepath.Join(e.targetDir, e.mapName+"_evaluation_data.csv")
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("open evaluation output: %w", err)
	}

	e.log.Info("computing reconstruction error")
	report := e.computeReconstructionError()
	if err := writeReport(f, report); err != nil {
		f.Close()
		return fmt.Errorf("write evaluation output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write evaluation output: %w", err)
	}
	e.log.Info("wrote accuracy report", "file", out,
		"mean", report.Mean, "rmse", report.RMSE,
		"unknown", report.UnknownPoints, "truncated", report.TruncatedPoints)

	if e.req.OutputHistogram {
		histPath := filepath.Join(e.targetDir, e.mapName+"_error_histogram.csv")
		counts := computeHistogram(report.samples, float64(e.req.MaximumDistance), e.req.histogramBins())
		if err := writeHistogramCSV(histPath, counts, float64(e.req.MaximumDistance)); err != nil {
			return fmt.Errorf("write error histogram: %w", err)
		}
		if e.req.RenderReport {
			htmlPath := filepath.Join(e.targetDir, e.mapName+"_evaluation_report.html")
			if err := renderHistogramHTML(htmlPath, e.mapName, counts, float64(e.req.MaximumDistance)); err != nil {
				return fmt.Errorf("render evaluation report: %w", err)
			}
		}
	}

	if e.req.ResultsDB != "" {
		store, err := OpenEvaluationStore(e.req.ResultsDB)
		if err != nil {
			return fmt.Errorf("open results store: %w", err)
		}
		defer store.Close()
		rec := &RunRecord{
			MapFile:         e.req.MapFile,
			GroundTruthFile: e.req.GroundTruthPointcloudFile,
			MaximumDistance: float64(e.req.MaximumDistance),
			MeanError:       report.Mean,
			StdError:        report.StdDev,
			RMSE:            report.RMSE,
			TotalPoints:     report.TotalPoints,
			UnknownPoints:   report.UnknownPoints,
			TruncatedPoints: report.TruncatedPoints,
		}
		if err := store.Insert(rec); err != nil {
			return fmt.Errorf("persist run record: %w", err)
		}
		e.log.Info("persisted run record", "run_id", rec.RunID, "db", e.req.ResultsDB)
	}
	return nil
}

// LoadGroundTruth reads a point-only PCD file into a Vec3 slice.
func LoadGroundTruth(path string) (pc.Vec3Slice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pp, err := pc.Unmarshal(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	it, err := pp.Vec3Iterator()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	points := make(pc.Vec3Slice, 0, pp.Points)
	for i := 0; i < pp.Points; i++ {
		points = append(points, it.Vec3())
		it.Incr()
	}
	return points, nil
}
