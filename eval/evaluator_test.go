package eval

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqsense/panmap/submap"
	"github.com/seqsense/panmap/tsdf"
)

func writeGroundTruthPCD(t *testing.T, path string, points []mat.Vec3) {
	t.Helper()
	pp := &pc.PointCloud{
		PointCloudHeader: pc.PointCloudHeader{
			Fields: []string{"x", "y", "z"},
			Size:   []int{4, 4, 4},
			Type:   []string{"F", "F", "F"},
			Count:  []int{1, 1, 1},
			Width:  len(points),
			Height: 1,
		},
		Points: len(points),
		Data:   make([]byte, len(points)*4*3),
	}
	it, err := pp.Vec3Iterator()
	require.NoError(t, err)
	for _, p := range points {
		it.SetVec3(p)
		it.Incr()
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, pc.Marshal(pp, f))
	require.NoError(t, f.Close())
}

func writeTestMap(t *testing.T, path string, distance float32) {
	t.Helper()
	require.NoError(t, submap.Save(path, singleSubmapCollection(constantField(distance))))
}

func TestLoadGroundTruth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gt.pcd")
	points := []mat.Vec3{{0.4, 0.4, 0.4}, {1, 2, 3}, {-0.5, 0, 0.5}}
	writeGroundTruthPCD(t, path, points)

	gt, err := LoadGroundTruth(path)
	require.NoError(t, err)
	require.Len(t, gt, len(points))
	for i, p := range points {
		assert.Equal(t, p, gt[i])
	}

	_, err = LoadGroundTruth(filepath.Join(t.TempDir(), "missing.pcd"))
	assert.Error(t, err)
}

func TestRunFullPipeline(t *testing.T) {
	dir := t.TempDir()
	gtPath := filepath.Join(dir, "gt.pcd")
	mapPath := filepath.Join(dir, "run1.panmap")
	writeGroundTruthPCD(t, gtPath, []mat.Vec3{
		{0.4, 0.4, 0.4},
		{0.31, 0.52, 0.67},
		{0.45, 0.45, 0.45},
		{0.2, 0.3, 0.4},
		{5, 5, 5},
	})
	writeTestMap(t, mapPath, 0.05)

	req := &Request{
		MapFile:                   mapPath,
		GroundTruthPointcloudFile: gtPath,
		MaximumDistance:           0.2,
		Evaluate:                  true,
		ComputeColoring:           true,
		OutputHistogram:           true,
		RenderReport:              true,
		ResultsDB:                 filepath.Join(dir, "results.db"),
	}
	require.NoError(t, newTestEvaluator(t, req).Run())

	// Accuracy report.
	data, err := os.ReadFile(filepath.Join(dir, "run1_evaluation_data.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "MeanError,StdError,RMSE,TotalPoints,UnknownPoints,TruncatedPoints", lines[0])
	fields := strings.Split(lines[1], ",")
	require.Len(t, fields, 6)
	mean, err := strconv.ParseFloat(fields[0], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, mean, 1e-6)
	rmse, err := strconv.ParseFloat(fields[2], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, rmse, 1e-6)
	assert.Equal(t, []string{"5", "1", "0"}, fields[3:])

	// Error histogram and HTML report.
	hist, err := os.ReadFile(filepath.Join(dir, "run1_error_histogram.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(hist), "BinUpper,Count\n"))
	_, err = os.Stat(filepath.Join(dir, "run1_evaluation_report.html"))
	assert.NoError(t, err)

	// Persisted run record.
	store, err := OpenEvaluationStore(req.ResultsDB)
	require.NoError(t, err)
	defer store.Close()
	recs, err := store.ListByMap(mapPath)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDelta(t, 0.05, recs[0].MeanError, 1e-6)
	assert.Equal(t, 5, recs[0].TotalPoints)
	assert.Equal(t, 1, recs[0].UnknownPoints)

	// Colored map.
	colored, err := submap.Load(filepath.Join(dir, "run1_evaluated.panmap"))
	require.NoError(t, err)
	s, ok := colored.Get(1)
	require.True(t, ok)
	v, ok := s.Layer().VoxelAt(mat.Vec3{0.4, 0.4, 0.4})
	require.True(t, ok)
	assert.Equal(t, errorColor(0.25), v.Color)

	// The input map itself is untouched.
	orig, err := submap.Load(mapPath)
	require.NoError(t, err)
	origSub, ok := orig.Get(1)
	require.True(t, ok)
	ov, _ := origSub.Layer().VoxelAt(mat.Vec3{0.4, 0.4, 0.4})
	assert.Equal(t, tsdf.Color{}, ov.Color)
}

func TestRunInvalidRequest(t *testing.T) {
	dir := t.TempDir()
	req := &Request{
		MapFile:                   filepath.Join(dir, "run1.panmap"),
		GroundTruthPointcloudFile: filepath.Join(dir, "gt.pcd"),
		MaximumDistance:           0, // invalid
		Evaluate:                  true,
	}
	err := newTestEvaluator(t, req).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum_distance")

	// Validation fails before any output is produced.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunMissingInputs(t *testing.T) {
	dir := t.TempDir()
	gtPath := filepath.Join(dir, "gt.pcd")
	writeGroundTruthPCD(t, gtPath, []mat.Vec3{{0.4, 0.4, 0.4}})

	// Missing ground truth aborts before the map is touched.
	req := &Request{
		MapFile:                   filepath.Join(dir, "run1.panmap"),
		GroundTruthPointcloudFile: filepath.Join(dir, "missing.pcd"),
		MaximumDistance:           0.2,
		Evaluate:                  true,
	}
	assert.Error(t, newTestEvaluator(t, req).Run())

	// Missing map.
	req.GroundTruthPointcloudFile = gtPath
	assert.Error(t, newTestEvaluator(t, req).Run())
}

type recordingVisualizer struct {
	calls   int
	submaps int
}

func (v *recordingVisualizer) Visualize(c *submap.Collection) error {
	v.calls++
	v.submaps = c.Len()
	return nil
}

func TestRunVisualize(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "run1.panmap")
	writeTestMap(t, mapPath, 0.05)

	req := &Request{
		MapFile:         mapPath,
		MaximumDistance: 0.2,
		Visualize:       true,
	}

	viz := &recordingVisualizer{}
	require.NoError(t, NewEvaluator(req,
		WithProgressOutput(nil),
		WithVisualizer(viz),
	).Run())
	assert.Equal(t, 1, viz.calls)
	assert.Equal(t, 1, viz.submaps)
}

func TestRunVisualizeWithoutVisualizer(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "run1.panmap")
	writeTestMap(t, mapPath, 0.05)

	var logBuf bytes.Buffer
	req := &Request{
		MapFile:         mapPath,
		MaximumDistance: 0.2,
		Visualize:       true,
	}
	require.NoError(t, NewEvaluator(req,
		WithProgressOutput(nil),
		WithLogger(slog.New(slog.NewTextHandler(&logBuf, nil))),
	).Run())
	assert.Contains(t, logBuf.String(), "no visualizer is wired")
}
