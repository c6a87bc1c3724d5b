package tsdf

import (
	"math"
	"sort"

	"github.com/seqsense/pcgol/mat"
)

// Layer is a sparse TSDF volume: voxel blocks allocated on demand,
// addressed by their integer grid position.
type Layer struct {
	voxelSize     float32
	voxelSizeInv  float32
	voxelsPerSide int
	blocks        map[BlockIndex]*Block
}

// NewLayer creates an empty layer with the given voxel size and block
// edge length in voxels.
func NewLayer(voxelSize float32, voxelsPerSide int) *Layer {
	return &Layer{
		voxelSize:     voxelSize,
		voxelSizeInv:  1 / voxelSize,
		voxelsPerSide: voxelsPerSide,
		blocks:        make(map[BlockIndex]*Block),
	}
}

// VoxelSize returns the edge length of one voxel.
func (l *Layer) VoxelSize() float32 {
	return l.voxelSize
}

// VoxelsPerSide returns the edge length of one block in voxels.
func (l *Layer) VoxelsPerSide() int {
	return l.voxelsPerSide
}

// BlockSize returns the edge length of one block.
func (l *Layer) BlockSize() float32 {
	return l.voxelSize * float32(l.voxelsPerSide)
}

// NumAllocatedBlocks returns the number of allocated blocks.
func (l *Layer) NumAllocatedBlocks() int {
	return len(l.blocks)
}

// Block returns the block at the given index if it is allocated.
func (l *Layer) Block(index BlockIndex) (*Block, bool) {
	b, ok := l.blocks[index]
	return b, ok
}

// AllocateBlock returns the block at the given index, allocating it if
// necessary.
func (l *Layer) AllocateBlock(index BlockIndex) *Block {
	if b, ok := l.blocks[index]; ok {
		return b
	}
	b := newBlock(index, l.voxelSize, l.voxelsPerSide)
	l.blocks[index] = b
	return b
}

// AllocatedBlockIndices returns the indices of all allocated blocks in a
// deterministic (lexicographic) order.
func (l *Layer) AllocatedBlockIndices() []BlockIndex {
	indices := make([]BlockIndex, 0, len(l.blocks))
	for index := range l.blocks {
		indices = append(indices, index)
	}
	sort.Slice(indices, func(i, j int) bool {
		a, b := indices[i], indices[j]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
	return indices
}

// BlockIndexFromCoordinates returns the index of the block containing the
// given world point.
func (l *Layer) BlockIndexFromCoordinates(p mat.Vec3) BlockIndex {
	g := l.globalVoxelIndex(p)
	n := int32(l.voxelsPerSide)
	return BlockIndex{floorDiv(g[0], n), floorDiv(g[1], n), floorDiv(g[2], n)}
}

// VoxelAt returns the voxel containing the given world point if its block
// is allocated.
func (l *Layer) VoxelAt(p mat.Vec3) (*Voxel, bool) {
	return l.voxelByGlobalIndex(l.globalVoxelIndex(p))
}

// AllocateVoxelAt returns the voxel containing the given world point,
// allocating its block if necessary.
func (l *Layer) AllocateVoxelAt(p mat.Vec3) *Voxel {
	g := l.globalVoxelIndex(p)
	n := int32(l.voxelsPerSide)
	index := BlockIndex{floorDiv(g[0], n), floorDiv(g[1], n), floorDiv(g[2], n)}
	b := l.AllocateBlock(index)
	return &b.voxels[b.linearIndex(
		int(g[0]-index[0]*n),
		int(g[1]-index[1]*n),
		int(g[2]-index[2]*n),
	)]
}

func (l *Layer) globalVoxelIndex(p mat.Vec3) [3]int32 {
	return [3]int32{
		int32(math.Floor(float64(p[0] * l.voxelSizeInv))),
		int32(math.Floor(float64(p[1] * l.voxelSizeInv))),
		int32(math.Floor(float64(p[2] * l.voxelSizeInv))),
	}
}

func (l *Layer) voxelByGlobalIndex(g [3]int32) (*Voxel, bool) {
	n := int32(l.voxelsPerSide)
	index := BlockIndex{floorDiv(g[0], n), floorDiv(g[1], n), floorDiv(g[2], n)}
	b, ok := l.blocks[index]
	if !ok {
		return nil, false
	}
	return &b.voxels[b.linearIndex(
		int(g[0]-index[0]*n),
		int(g[1]-index[1]*n),
		int(g[2]-index[2]*n),
	)], true
}

// floorDiv divides rounding towards negative infinity.
func floorDiv(a, n int32) int32 {
	q := a / n
	if a%n != 0 && (a < 0) != (n < 0) {
		q--
	}
	return q
}
