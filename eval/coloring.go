package eval

import (
	"math"

	"github.com/seqsense/panmap/storage/kdtree"
	"github.com/seqsense/panmap/submap"
	"github.com/seqsense/panmap/tsdf"
)

// maxNeighbors bounds every nearest-neighbor query during coloring.
// Radius search over dense ground truth is far slower than a capped kNN
// query followed by a local-distance filter.
const maxNeighbors = 100

// unknownColor marks voxels whose error cannot be determined: out of
// bounds, no nearby ground truth, or no interpolable map value.
var unknownColor = tsdf.Color{R: 128, G: 128, B: 128}

// colorReconstructionError recolors every near-surface voxel of every
// submap on a green(low) to red(high) error ramp. Voxel distances beyond the
// submap's truncation distance can never represent a surface element and
// keep their stored color.
func (e *Evaluator) colorReconstructionError() {
	kdt := kdtree.New(e.gt)
	maxDist := float64(e.req.MaximumDistance)

	var totalBlocks int
	e.submaps.Each(func(s *submap.Submap) {
		totalBlocks += s.Layer().NumAllocatedBlocks()
	})
	e.progress.Reset()

	var doneBlocks int
	e.submaps.Each(func(s *submap.Submap) {
		layer := s.Layer()
		interp := tsdf.NewInterpolator(layer)
		voxelSize := layer.VoxelSize()
		voxelSizeSqr := voxelSize * voxelSize
		trunc := s.Config().TruncationDistance

		for _, index := range layer.AllocatedBlockIndices() {
			block, _ := layer.Block(index)
			for li := 0; li < block.NumVoxels(); li++ {
				v := block.Voxel(li)
				if v.Distance > trunc || v.Distance < -trunc {
					continue
				}
				center := block.VoxelCenter(li)
				if !e.bounds.Contains(center) {
					v.Color = unknownColor
					continue
				}

				neighbors := kdt.SearchKNN(center, maxNeighbors)
				if len(neighbors) == 0 {
					v.Color = unknownColor
					continue
				}

				// The nearest ground-truth point always counts; further
				// ones only within one voxel size of the center.
				var totalError float64
				var counted int
				for i, nb := range neighbors {
					if i != 0 && nb.DistSq > voxelSizeSqr {
						continue
					}
					d, ok := interp.Distance(e.gt[nb.ID], true)
					if !ok {
						continue
					}
					totalError += math.Abs(float64(d))
					counted++
				}
				if counted == 0 {
					v.Color = unknownColor
					continue
				}
				frac := math.Min(totalError/float64(counted), maxDist) / maxDist
				v.Color = errorColor(float32(frac))
			}
			doneBlocks++
			e.progress.Display(float64(doneBlocks) / float64(totalBlocks))
		}
		s.MarkMeshStale()
	})
}

// errorColor maps a normalized error fraction onto the red-green ramp.
// Below 0.5 the green channel follows 190 + 130*frac instead of the
// general (1-frac)*2*255 falloff.
func errorColor(frac float32) tsdf.Color {
	r := minf((frac-0.5)*2+1, 1) * 255
	g := (1 - frac) * 2 * 255
	if frac <= 0.5 {
		g = 190 + 130*frac
	}
	return tsdf.Color{R: uint8(clampChannel(r)), G: uint8(clampChannel(g)), B: 0}
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func clampChannel(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
