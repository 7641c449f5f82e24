// Package quadtree selects the quadtree nodes a viewer needs.
//
// A Quadtree belongs to one (terrain, viewer) pair. Each traversal walks from
// the root and splits nodes that are closer to the viewer than their level's
// threshold, producing the desired set of leaves and the delta against the
// previous traversal.
package quadtree

import (
	"fmt"
	gomath "math"

	"github.com/samber/lo"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/pkg/math"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// Decision is the refinement outcome of one node.
type Decision uint8

const (
	Coarse Decision = iota // node is a leaf of the desired set
	Split                  // node is replaced by its children
)

func (d Decision) String() string {
	switch d {
	case Coarse:
		return "coarse"
	case Split:
		return "split"
	default:
		return fmt.Sprintf("Decision(%d)", uint8(d))
	}
}

// Node is the record of one visited node in the last traversal.
type Node struct {
	ID        node.NodeID
	Decision  Decision
	Distance  float64
	Threshold float64
}

// Delta is the change of the desired set between two traversals.
type Delta struct {
	Added   []node.NodeID
	Removed []node.NodeID
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Stats describes the last traversal.
type Stats struct {
	Traversals int
	Visited    int
	Desired    int
	FinestLOD  uint8
	Position   math.Vec3
}

// Quadtree holds the traversal state of one viewer on one terrain.
// It is not safe for concurrent use.
type Quadtree struct {
	terrain config.TerrainConfig
	view    config.ViewConfig
	root    node.NodeID
	leaf    float64

	nodes   []Node
	desired []node.NodeID
	spare   []node.NodeID
	set     map[node.NodeID]struct{}

	last       math.Vec3
	traversed  bool
	dirty      bool
	traversals int
}

// New creates a quadtree. Both configs are validated.
func New(terrain config.TerrainConfig, view config.ViewConfig) (*Quadtree, error) {
	if err := terrain.Validate(); err != nil {
		return nil, err
	}
	if err := view.Validate(); err != nil {
		return nil, err
	}
	return &Quadtree{
		terrain: terrain,
		view:    view,
		root:    node.Root(terrain.LODCount),
		leaf:    float64(terrain.LeafSize()),
		set:     make(map[node.NodeID]struct{}),
	}, nil
}

// SetViewConfig replaces the viewer tunables. The next Update traverses again.
func (q *Quadtree) SetViewConfig(view config.ViewConfig) error {
	if err := view.Validate(); err != nil {
		return err
	}
	q.view = view
	q.dirty = true
	return nil
}

// ViewConfig returns the current viewer tunables.
func (q *Quadtree) ViewConfig() config.ViewConfig {
	return q.view
}

// Update traverses when this is the first call, the view config changed, or
// the viewer moved further than the hysteresis distance since the last
// traversal. It reports whether a traversal happened.
func (q *Quadtree) Update(pos math.Vec3) (Delta, bool) {
	if q.traversed && !q.dirty && pos.Distance(q.last) <= q.view.Hysteresis {
		return Delta{}, false
	}
	return q.Traverse(pos), true
}

// Traverse recomputes the desired set for pos and returns the delta.
func (q *Quadtree) Traverse(pos math.Vec3) Delta {
	prev := q.desired
	q.desired = q.spare[:0]
	q.nodes = q.nodes[:0]

	q.visit(pos, q.root, 0)

	added, removed := lo.Difference(q.desired, prev)
	q.spare = prev

	clear(q.set)
	for _, id := range q.desired {
		q.set[id] = struct{}{}
	}

	q.last = pos
	q.traversed = true
	q.dirty = false
	q.traversals++
	return Delta{Added: added, Removed: removed}
}

func (q *Quadtree) visit(pos math.Vec3, id node.NodeID, depth int) {
	box, ok := q.Bounds(id)
	if !ok {
		return
	}

	rec := Node{
		ID:        id,
		Decision:  Coarse,
		Distance:  box.Distance(pos),
		Threshold: q.threshold(id.LOD),
	}
	// Ties stay coarse.
	if rec.Distance < rec.Threshold && id.LOD > 0 && q.canRefine(depth) {
		rec.Decision = Split
	}
	q.nodes = append(q.nodes, rec)

	if rec.Decision == Coarse {
		q.desired = append(q.desired, id)
		return
	}
	for _, child := range id.Children() {
		q.visit(pos, child, depth+1)
	}
}

func (q *Quadtree) threshold(lod uint8) float64 {
	return q.view.ViewDistance * q.view.RefinementBias * gomath.Ldexp(1, int(lod))
}

func (q *Quadtree) canRefine(depth int) bool {
	return q.view.RefinementLimit == 0 || depth < q.view.RefinementLimit
}

// Bounds returns the world box of a node: its footprint on X/Z and the full
// elevation range on Y. Nodes entirely outside the terrain report false.
func (q *Quadtree) Bounds(id node.NodeID) (math.Box, bool) {
	size := q.leaf * gomath.Ldexp(1, int(id.LOD))
	minX := float64(id.X) * size
	minZ := float64(id.Y) * size
	extent := float64(q.terrain.Size)
	if minX >= extent || minZ >= extent {
		return math.Box{}, false
	}
	return math.Box{
		Min: math.Vec3{X: minX, Y: 0, Z: minZ},
		Max: math.Vec3{X: minX + size, Y: q.terrain.Height, Z: minZ + size},
	}, true
}

// Desired returns the desired leaves of the last traversal in traversal order.
// The slice is owned by the quadtree and valid until the next traversal.
func (q *Quadtree) Desired() []node.NodeID {
	return q.desired
}

// Nodes returns the visit records of the last traversal.
// The slice is owned by the quadtree and valid until the next traversal.
func (q *Quadtree) Nodes() []Node {
	return q.nodes
}

// Contains reports whether id is in the desired set.
func (q *Quadtree) Contains(id node.NodeID) bool {
	_, ok := q.set[id]
	return ok
}

// Covering returns the desired node whose footprint contains id, if any.
func (q *Quadtree) Covering(id node.NodeID) (node.NodeID, bool) {
	for cur := id; int(cur.LOD) < q.terrain.LODCount; cur = cur.Parent() {
		if q.Contains(cur) {
			return cur, true
		}
	}
	return node.NodeID{}, false
}

// Stats returns a summary of the last traversal.
func (q *Quadtree) Stats() Stats {
	s := Stats{
		Traversals: q.traversals,
		Visited:    len(q.nodes),
		Desired:    len(q.desired),
		FinestLOD:  q.root.LOD,
		Position:   q.last,
	}
	for _, id := range q.desired {
		s.FinestLOD = min(s.FinestLOD, id.LOD)
	}
	return s
}
