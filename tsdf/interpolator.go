package tsdf

import (
	"math"

	"github.com/seqsense/pcgol/mat"
)

// Interpolator answers distance queries against a layer. A query succeeds
// only where the layer has been observed; everywhere else the distance is
// unknown.
type Interpolator struct {
	layer *Layer
}

// NewInterpolator creates an interpolator over the given layer.
func NewInterpolator(layer *Layer) *Interpolator {
	return &Interpolator{layer: layer}
}

// Distance returns the signed distance at the given world point. With
// interpolate set, the result is trilinearly interpolated between the
// eight voxels surrounding the point and requires all of them to be
// observed; otherwise the containing voxel is returned as-is.
func (ip *Interpolator) Distance(p mat.Vec3, interpolate bool) (float32, bool) {
	if !interpolate {
		v, ok := ip.layer.VoxelAt(p)
		if !ok || !v.Observed() {
			return 0, false
		}
		return v.Distance, true
	}

	// Voxel values live at voxel centers; shift by half a voxel so the
	// surrounding eight centers bracket the query point.
	half := ip.layer.voxelSize / 2
	shifted := p.Sub(mat.Vec3{half, half, half})

	var base [3]int32
	var frac [3]float32
	for i := 0; i < 3; i++ {
		f := float64(shifted[i] * ip.layer.voxelSizeInv)
		fl := math.Floor(f)
		base[i] = int32(fl)
		frac[i] = float32(f - fl)
	}

	var distance float32
	for dz := int32(0); dz <= 1; dz++ {
		for dy := int32(0); dy <= 1; dy++ {
			for dx := int32(0); dx <= 1; dx++ {
				v, ok := ip.layer.voxelByGlobalIndex([3]int32{base[0] + dx, base[1] + dy, base[2] + dz})
				if !ok || !v.Observed() {
					return 0, false
				}
				w := lerpWeight(frac[0], dx) * lerpWeight(frac[1], dy) * lerpWeight(frac[2], dz)
				distance += w * v.Distance
			}
		}
	}
	return distance, true
}

func lerpWeight(frac float32, upper int32) float32 {
	if upper == 1 {
		return frac
	}
	return 1 - frac
}
