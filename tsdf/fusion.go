package tsdf

import (
	"fmt"
	"math"

	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"
)

// FusionType selects one of the built-in fusion backends.
type FusionType string

const (
	// FusionSimple marches every measurement ray through the full
	// truncation band.
	FusionSimple FusionType = "simple"
	// FusionFast behaves like FusionSimple but skips points whose
	// surface voxel was already updated within the same call.
	FusionFast FusionType = "fast"
)

// FusionConfig parameterizes a fusion backend.
type FusionConfig struct {
	// TruncationDistance bounds the signed distance band updated around
	// each measured surface point.
	TruncationDistance float32
	// MaxWeight caps the accumulated per-voxel weight.
	MaxWeight float32
	// ConstantWeight uses weight 1 per observation instead of 1/z^2.
	ConstantWeight bool
	// MinRange and MaxRange discard measurements outside the sensor's
	// trusted range. MaxRange of 0 means unlimited.
	MinRange float32
	MaxRange float32
}

func (c *FusionConfig) applyDefaults(voxelSize float32) {
	if c.TruncationDistance <= 0 {
		c.TruncationDistance = 4 * voxelSize
	}
	if c.MaxWeight <= 0 {
		c.MaxWeight = 10000
	}
}

// Fusion integrates posed, colored point observations into exactly one
// target layer at a time. The target is a non-owning reference and may be
// switched between calls with Rebind.
type Fusion interface {
	Rebind(layer *Layer)
	Integrate(pose mat.Mat4, points pc.Vec3RandomAccessor, colors []Color)
}

// NewFusion constructs a fusion backend of the given type bound to layer.
// The set of types is closed; an unknown type is a construction error.
func NewFusion(t FusionType, cfg FusionConfig, layer *Layer) (Fusion, error) {
	cfg.applyDefaults(layer.VoxelSize())
	switch t {
	case FusionSimple:
		return &simpleFusion{cfg: cfg, layer: layer}, nil
	case FusionFast:
		return &fastFusion{simpleFusion{cfg: cfg, layer: layer}}, nil
	default:
		return nil, fmt.Errorf("unknown fusion backend type %q", t)
	}
}

type transformedVec3RandomAccessor struct {
	pc.Vec3RandomAccessor
	trans mat.Mat4
}

func (a *transformedVec3RandomAccessor) Vec3At(i int) mat.Vec3 {
	return a.trans.TransformAffine(a.Vec3RandomAccessor.Vec3At(i))
}

type simpleFusion struct {
	cfg   FusionConfig
	layer *Layer
}

func (f *simpleFusion) Rebind(layer *Layer) {
	f.layer = layer
}

func (f *simpleFusion) Integrate(pose mat.Mat4, points pc.Vec3RandomAccessor, colors []Color) {
	world := &transformedVec3RandomAccessor{Vec3RandomAccessor: points, trans: pose}
	origin := mat.Vec3{pose[12], pose[13], pose[14]}
	for i := 0; i < world.Len(); i++ {
		f.integratePoint(origin, world.Vec3At(i), colors[i])
	}
}

func (f *simpleFusion) integratePoint(origin, p mat.Vec3, color Color) {
	ray := p.Sub(origin)
	dist := ray.Norm()
	if dist < f.cfg.MinRange || (f.cfg.MaxRange > 0 && dist > f.cfg.MaxRange) {
		return
	}
	if dist < f.layer.voxelSize {
		// Measurement inside the origin voxel carries no direction.
		return
	}
	dir := ray.Mul(1 / dist)

	weight := float32(1)
	if !f.cfg.ConstantWeight {
		weight = 1 / (dist * dist)
	}

	trunc := f.cfg.TruncationDistance
	start := dist - trunc
	if start < 0 {
		start = 0
	}
	end := dist + trunc
	step := f.layer.voxelSize
	steps := int(math.Round(float64((end-start)/step))) + 1
	for i := 0; i < steps; i++ {
		t := start + float32(i)*step
		v := f.layer.AllocateVoxelAt(origin.Add(dir.Mul(t)))
		f.updateVoxel(v, dist-t, weight, color)
	}
}

func (f *simpleFusion) updateVoxel(v *Voxel, sdf, weight float32, color Color) {
	newWeight := v.Weight + weight
	v.Distance = (v.Distance*v.Weight + sdf*weight) / newWeight
	// Blend color only near the surface crossing.
	if sdf > -f.layer.voxelSize && sdf < f.layer.voxelSize {
		v.Color = blendColor(v.Color, v.Weight, color, weight)
	}
	if newWeight > f.cfg.MaxWeight {
		newWeight = f.cfg.MaxWeight
	}
	v.Weight = newWeight
}

func blendColor(a Color, wa float32, b Color, wb float32) Color {
	total := wa + wb
	return Color{
		R: uint8((float32(a.R)*wa + float32(b.R)*wb) / total),
		G: uint8((float32(a.G)*wa + float32(b.G)*wb) / total),
		B: uint8((float32(a.B)*wa + float32(b.B)*wb) / total),
	}
}

type fastFusion struct {
	simpleFusion
}

func (f *fastFusion) Integrate(pose mat.Mat4, points pc.Vec3RandomAccessor, colors []Color) {
	world := &transformedVec3RandomAccessor{Vec3RandomAccessor: points, trans: pose}
	origin := mat.Vec3{pose[12], pose[13], pose[14]}
	visited := make(map[[3]int32]struct{}, world.Len())
	for i := 0; i < world.Len(); i++ {
		p := world.Vec3At(i)
		g := f.layer.globalVoxelIndex(p)
		if _, ok := visited[g]; ok {
			continue
		}
		visited[g] = struct{}{}
		f.integratePoint(origin, p, colors[i])
	}
}
