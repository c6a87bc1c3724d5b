package submap

import (
	"github.com/seqsense/pcgol/mat"

	"github.com/seqsense/panmap/tsdf"
)

// Collection owns zero or more submaps keyed by unique instance id.
// Absence of an id is a normal condition, not an error.
type Collection struct {
	submaps map[int]*Submap
	order   []int
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{submaps: make(map[int]*Submap)}
}

// Add inserts a submap. It reports false if the id is already present,
// leaving the collection unchanged.
func (c *Collection) Add(s *Submap) bool {
	if _, ok := c.submaps[s.id]; ok {
		return false
	}
	c.submaps[s.id] = s
	c.order = append(c.order, s.id)
	return true
}

// Exists reports whether a submap with the given id is present.
func (c *Collection) Exists(id int) bool {
	_, ok := c.submaps[id]
	return ok
}

// Get returns the submap with the given id.
func (c *Collection) Get(id int) (*Submap, bool) {
	s, ok := c.submaps[id]
	return s, ok
}

// Len returns the number of submaps.
func (c *Collection) Len() int {
	return len(c.submaps)
}

// IDs returns the instance ids in insertion order.
func (c *Collection) IDs() []int {
	ids := make([]int, len(c.order))
	copy(ids, c.order)
	return ids
}

// Each calls fn for every submap in insertion order.
func (c *Collection) Each(fn func(*Submap)) {
	for _, id := range c.order {
		fn(c.submaps[id])
	}
}

// Distance returns the signed distance to the nearest surface at the
// given point if any submap has observed it. When several submaps cover
// the point, the one closest to a surface wins.
func (c *Collection) Distance(p mat.Vec3) (float32, bool) {
	var best float32
	var found bool
	for _, id := range c.order {
		s := c.submaps[id]
		d, ok := tsdf.NewInterpolator(s.layer).Distance(p, true)
		if !ok {
			continue
		}
		if !found || abs32(d) < abs32(best) {
			best = d
			found = true
		}
	}
	return best, found
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
