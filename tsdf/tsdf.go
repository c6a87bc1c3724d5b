// Package tsdf implements a block-structured truncated signed distance
// field: a sparse 3D grid of fixed-size voxel blocks, each voxel holding
// a signed distance estimate, an accumulated fusion weight and a color.
package tsdf

import (
	"github.com/seqsense/pcgol/mat"
)

// Color is an 8-bit RGB voxel color.
type Color struct {
	R, G, B uint8
}

// Voxel is a single cell of a TSDF layer. Distance is only meaningful
// within the truncation band; Weight below weightEpsilon means the voxel
// has never been observed.
type Voxel struct {
	Distance float32
	Weight   float32
	Color    Color
}

const weightEpsilon = 1e-6

// Observed reports whether the voxel carries any fused evidence.
func (v *Voxel) Observed() bool {
	return v.Weight >= weightEpsilon
}

// BlockIndex addresses a voxel block in the layer grid.
type BlockIndex [3]int32

// Block is a cube of voxelsPerSide^3 voxels at a fixed grid position.
type Block struct {
	index         BlockIndex
	origin        mat.Vec3
	voxelSize     float32
	voxelsPerSide int
	voxels        []Voxel
}

func newBlock(index BlockIndex, voxelSize float32, voxelsPerSide int) *Block {
	blockSize := voxelSize * float32(voxelsPerSide)
	return &Block{
		index: index,
		origin: mat.Vec3{
			float32(index[0]) * blockSize,
			float32(index[1]) * blockSize,
			float32(index[2]) * blockSize,
		},
		voxelSize:     voxelSize,
		voxelsPerSide: voxelsPerSide,
		voxels:        make([]Voxel, voxelsPerSide*voxelsPerSide*voxelsPerSide),
	}
}

// Index returns the block's position in the layer grid.
func (b *Block) Index() BlockIndex {
	return b.index
}

// Origin returns the world coordinates of the block's minimum corner.
func (b *Block) Origin() mat.Vec3 {
	return b.origin
}

// NumVoxels returns the number of voxels in the block (voxelsPerSide^3).
func (b *Block) NumVoxels() int {
	return len(b.voxels)
}

// Voxel returns a mutable reference to the voxel at the given linear index.
func (b *Block) Voxel(i int) *Voxel {
	return &b.voxels[i]
}

// Voxels returns the block's backing voxel storage in linear-index order.
// Mutations are visible to the layer.
func (b *Block) Voxels() []Voxel {
	return b.voxels
}

// VoxelCenter computes the world coordinates of the center of the voxel
// at the given linear index.
func (b *Block) VoxelCenter(i int) mat.Vec3 {
	n := b.voxelsPerSide
	x := i % n
	y := (i / n) % n
	z := i / (n * n)
	return b.origin.Add(mat.Vec3{
		(float32(x) + 0.5) * b.voxelSize,
		(float32(y) + 0.5) * b.voxelSize,
		(float32(z) + 0.5) * b.voxelSize,
	})
}

func (b *Block) linearIndex(x, y, z int) int {
	n := b.voxelsPerSide
	return x + n*(y+n*z)
}
