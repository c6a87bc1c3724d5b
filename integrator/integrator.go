// Package integrator routes labeled point observations into per-instance
// submaps: each incoming frame is segmented by instance id and every
// partial cloud is fused into the matching submap's TSDF layer.
package integrator

import (
	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"

	"github.com/seqsense/panmap/submap"
	"github.com/seqsense/panmap/tsdf"
)

// Config selects and parameterizes the fusion backend shared across
// submaps. The backend type set is closed and validated at construction.
type Config struct {
	Backend       tsdf.FusionType `yaml:"backend"`
	BackendConfig tsdf.FusionConfig
}

// Integrator processes one posed, labeled frame at a time.
//
// ProcessPointCloud panics if points, colors and ids disagree in length or
// submaps is nil: those are caller bugs, not runtime conditions. A label
// without a matching submap is skipped with a warning; the integrator
// never creates submaps.
type Integrator interface {
	ProcessPointCloud(submaps *submap.Collection, pose mat.Mat4, points pc.Vec3RandomAccessor, colors []tsdf.Color, ids []int) error
}
