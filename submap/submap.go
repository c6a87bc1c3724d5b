// Package submap provides per-instance TSDF submaps, the collection
// keyed by instance id, and the .panmap on-disk map format.
package submap

import (
	"github.com/seqsense/panmap/tsdf"
)

// Config holds the per-submap volume parameters.
type Config struct {
	VoxelSize          float32 `yaml:"voxel_size"`
	VoxelsPerSide      int     `yaml:"voxels_per_side"`
	TruncationDistance float32 `yaml:"truncation_distance"`
}

// Submap is one instance's independent volumetric reconstruction: a TSDF
// layer plus the instance id and volume parameters. The id is stable for
// the lifetime of the map.
type Submap struct {
	id        int
	config    Config
	layer     *tsdf.Layer
	meshStale bool
}

// New creates an empty submap for the given instance id.
func New(id int, config Config) *Submap {
	return &Submap{
		id:     id,
		config: config,
		layer:  tsdf.NewLayer(config.VoxelSize, config.VoxelsPerSide),
	}
}

// ID returns the instance id.
func (s *Submap) ID() int {
	return s.id
}

// Config returns the volume parameters.
func (s *Submap) Config() Config {
	return s.config
}

// Layer returns the submap's TSDF layer.
func (s *Submap) Layer() *tsdf.Layer {
	return s.layer
}

// MarkMeshStale records that voxel data changed since the surface mesh
// was last generated. Mesh regeneration happens lazily elsewhere.
func (s *Submap) MarkMeshStale() {
	s.meshStale = true
}

// MeshStale reports whether the surface mesh is out of date.
func (s *Submap) MeshStale() bool {
	return s.meshStale
}
