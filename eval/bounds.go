package eval

import (
	"github.com/seqsense/pcgol/mat"
)

// Bounds restricts which 3D points participate in evaluation.
type Bounds interface {
	Contains(p mat.Vec3) bool
}

// Unbounded accepts every point.
type Unbounded struct{}

// Contains implements Bounds.
func (Unbounded) Contains(mat.Vec3) bool { return true }

// FlatBounds keeps the half-space above a horizontal plane.
type FlatBounds struct {
	MinZ float32
}

// Contains implements Bounds.
func (b FlatBounds) Contains(p mat.Vec3) bool { return p[2] >= b.MinZ }

// BoxBounds keeps points inside an axis-aligned box.
type BoxBounds struct {
	Min, Max mat.Vec3
}

// Contains implements Bounds.
func (b BoxBounds) Contains(p mat.Vec3) bool {
	return !(p[0] < b.Min[0] || p[0] > b.Max[0] ||
		p[1] < b.Min[1] || p[1] > b.Max[1] ||
		p[2] < b.Min[2] || p[2] > b.Max[2])
}
