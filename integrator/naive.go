package integrator

import (
	"fmt"
	"log/slog"

	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"

	"github.com/seqsense/panmap/submap"
	"github.com/seqsense/panmap/tsdf"
)

// NaiveIntegrator segments each frame by instance id and integrates every
// partial cloud into its submap, one group at a time. A single fusion
// backend is constructed on first use and rebound to the target layer
// between groups.
type NaiveIntegrator struct {
	cfg    Config
	fusion tsdf.Fusion
	log    *slog.Logger
}

// NewNaive creates an integrator. The backend type must be one of the
// known fusion types.
func NewNaive(cfg Config, log *slog.Logger) (*NaiveIntegrator, error) {
	switch cfg.Backend {
	case tsdf.FusionSimple, tsdf.FusionFast:
	default:
		return nil, fmt.Errorf("unknown fusion backend type %q", cfg.Backend)
	}
	if log == nil {
		log = slog.Default()
	}
	return &NaiveIntegrator{cfg: cfg, log: log}, nil
}

type group struct {
	id     int
	points pc.Vec3Slice
	colors []tsdf.Color
}

// segmentByID partitions a frame into per-instance partial clouds in a
// single pass. Groups appear in first-seen id order and keep the input
// order of their points.
func segmentByID(points pc.Vec3RandomAccessor, colors []tsdf.Color, ids []int) []*group {
	index := make(map[int]int)
	var groups []*group
	for i, id := range ids {
		gi, ok := index[id]
		if !ok {
			gi = len(groups)
			index[id] = gi
			groups = append(groups, &group{id: id})
		}
		g := groups[gi]
		g.points = append(g.points, points.Vec3At(i))
		g.colors = append(g.colors, colors[i])
	}
	return groups
}

// ProcessPointCloud implements Integrator.
func (n *NaiveIntegrator) ProcessPointCloud(submaps *submap.Collection, pose mat.Mat4, points pc.Vec3RandomAccessor, colors []tsdf.Color, ids []int) error {
	if submaps == nil {
		panic("integrator: nil submap collection")
	}
	if points.Len() != len(ids) || len(colors) != len(ids) {
		panic(fmt.Sprintf("integrator: length mismatch: %d points, %d colors, %d ids",
			points.Len(), len(colors), len(ids)))
	}

	for _, g := range segmentByID(points, colors, ids) {
		s, ok := submaps.Get(g.id)
		if !ok {
			// Submaps are allocated upstream; an unknown id is data to skip.
			n.log.Warn("failed to integrate pointcloud: submap does not exist", "id", g.id)
			continue
		}
		if n.fusion == nil {
			fusion, err := tsdf.NewFusion(n.cfg.Backend, n.cfg.BackendConfig, s.Layer())
			if err != nil {
				return fmt.Errorf("construct fusion backend: %w", err)
			}
			n.fusion = fusion
		} else {
			n.fusion.Rebind(s.Layer())
		}
		n.fusion.Integrate(pose, g.points, g.colors)
	}
	return nil
}
