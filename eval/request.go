package eval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultHistogramBins = 20

// Request configures one evaluation run. It is immutable once validated.
type Request struct {
	Verbosity                 int     `yaml:"verbosity"`
	MapFile                   string  `yaml:"map_file"`
	GroundTruthPointcloudFile string  `yaml:"ground_truth_pointcloud_file"`
	MaximumDistance           float32 `yaml:"maximum_distance"`
	Evaluate                  bool    `yaml:"evaluate"`
	Visualize                 bool    `yaml:"visualize"`
	ComputeColoring           bool    `yaml:"compute_coloring"`

	// Optional extras.
	OutputHistogram bool   `yaml:"output_histogram"`
	HistogramBins   int    `yaml:"histogram_bins"`
	RenderReport    bool   `yaml:"render_report"`
	ResultsDB       string `yaml:"results_db"`

	// BoundsMinZ, when set, restricts evaluation to z >= bounds_min_z.
	BoundsMinZ *float32 `yaml:"bounds_min_z"`
}

// LoadRequest reads and parses a YAML evaluation request.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read evaluation request: %w", err)
	}
	var req Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse evaluation request: %w", err)
	}
	return &req, nil
}

// Validate rejects unusable requests before any file I/O happens.
func (r *Request) Validate() error {
	if r.MaximumDistance <= 0 {
		return fmt.Errorf("maximum_distance must be > 0, got %g", r.MaximumDistance)
	}
	if r.HistogramBins < 0 {
		return fmt.Errorf("histogram_bins must be >= 0, got %d", r.HistogramBins)
	}
	return nil
}

func (r *Request) bounds() Bounds {
	if r.BoundsMinZ != nil {
		return FlatBounds{MinZ: *r.BoundsMinZ}
	}
	return Unbounded{}
}

func (r *Request) histogramBins() int {
	if r.HistogramBins == 0 {
		return defaultHistogramBins
	}
	return r.HistogramBins
}
