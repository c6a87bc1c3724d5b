// Package kdtree provides a k-d tree for nearest-neighbor queries over a
// fixed point set. The tree is built once and read-only afterwards.
// Ties on distance are broken by point index, so query results are
// deterministic for a given input.
package kdtree

import (
	"math"
	"sort"

	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"
)

// Neighbor is one query result: the point's index in the source accessor
// and its squared distance to the query point.
type Neighbor struct {
	ID     int
	DistSq float32
}

type node struct {
	id          int
	axis        int
	left, right *node
}

// KDTree is a static k-d tree over a Vec3RandomAccessor.
type KDTree struct {
	ra   pc.Vec3RandomAccessor
	root *node
}

// New builds a tree over all points of ra.
func New(ra pc.Vec3RandomAccessor) *KDTree {
	ids := make([]int, ra.Len())
	for i := range ids {
		ids[i] = i
	}
	return &KDTree{ra: ra, root: build(ra, ids, 0)}
}

func build(ra pc.Vec3RandomAccessor, ids []int, depth int) *node {
	if len(ids) == 0 {
		return nil
	}
	axis := depth % 3
	sort.Slice(ids, func(i, j int) bool {
		vi, vj := ra.Vec3At(ids[i])[axis], ra.Vec3At(ids[j])[axis]
		if vi != vj {
			return vi < vj
		}
		return ids[i] < ids[j]
	})
	m := len(ids) / 2
	return &node{
		id:    ids[m],
		axis:  axis,
		left:  build(ra, ids[:m], depth+1),
		right: build(ra, ids[m+1:], depth+1),
	}
}

// SearchKNN returns up to k nearest neighbors of p, ordered by squared
// distance (index breaks ties).
func (t *KDTree) SearchKNN(p mat.Vec3, k int) []Neighbor {
	if k <= 0 {
		return nil
	}
	res := make([]Neighbor, 0, k)
	t.search(t.root, p, k, &res)
	return res
}

// Nearest returns the index of the nearest point within maxRange of p and
// its distance. It returns (-1, 0) if no point is in range.
func (t *KDTree) Nearest(p mat.Vec3, maxRange float32) (int, float32) {
	res := t.SearchKNN(p, 1)
	if len(res) == 0 || res[0].DistSq > maxRange*maxRange {
		return -1, 0
	}
	return res[0].ID, sqrt32(res[0].DistSq)
}

func (t *KDTree) search(n *node, p mat.Vec3, k int, res *[]Neighbor) {
	if n == nil {
		return
	}
	insert(res, k, Neighbor{ID: n.id, DistSq: p.Sub(t.ra.Vec3At(n.id)).NormSq()})

	delta := p[n.axis] - t.ra.Vec3At(n.id)[n.axis]
	near, far := n.left, n.right
	if delta > 0 {
		near, far = far, near
	}
	t.search(near, p, k, res)
	if len(*res) < k || delta*delta <= (*res)[len(*res)-1].DistSq {
		t.search(far, p, k, res)
	}
}

// insert keeps res sorted by (DistSq, ID) and bounded to k entries.
func insert(res *[]Neighbor, k int, nb Neighbor) {
	s := *res
	pos := sort.Search(len(s), func(i int) bool {
		if s[i].DistSq != nb.DistSq {
			return s[i].DistSq > nb.DistSq
		}
		return s[i].ID > nb.ID
	})
	if pos >= k {
		return
	}
	if len(s) < k {
		s = append(s, Neighbor{})
	}
	copy(s[pos+1:], s[pos:])
	s[pos] = nb
	*res = s
}

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}
