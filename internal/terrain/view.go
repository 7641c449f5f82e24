package terrain

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/Faultbox/midgard-terrain/internal/atlas"
	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/quadtree"
	"github.com/Faultbox/midgard-terrain/pkg/math"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// Key identifies a view: one viewer looking at one terrain.
type Key struct {
	Terrain uuid.UUID
	Viewer  uuid.UUID
}

// View is the per-viewer state on a terrain. Its methods are safe for
// concurrent use, but frames of one view are expected to run in sequence.
type View struct {
	key     Key
	terrain *Terrain

	mu     sync.Mutex
	tree   *quadtree.Quadtree
	closed bool
}

// Key returns the view identity.
func (v *View) Key() Key {
	return v.key
}

// Terrain returns the terrain the view looks at.
func (v *View) Terrain() *Terrain {
	return v.terrain
}

func (v *View) update(pos math.Vec3) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrViewClosed
	}
	delta, ok := v.tree.Update(pos)
	if !ok || delta.Empty() {
		return nil
	}
	// Request first so replaced nodes stay resident while slots are free.
	v.terrain.acquire(delta.Added)
	v.terrain.release(delta.Removed)
	return nil
}

// SetViewConfig replaces the viewer tunables. The next frame traverses again.
func (v *View) SetViewConfig(cfg config.ViewConfig) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.tree.SetViewConfig(cfg)
}

// Desired returns a copy of the nodes the view currently desires.
func (v *View) Desired() []node.NodeID {
	v.mu.Lock()
	defer v.mu.Unlock()

	return slices.Clone(v.tree.Desired())
}

// Stats returns the quadtree stats of the last traversal.
func (v *View) Stats() quadtree.Stats {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.tree.Stats()
}

// Ready counts the desired nodes that are resident in an attachment atlas.
func (v *View) Ready(attachment string) (ready, desired int) {
	a, ok := v.terrain.Atlas(attachment)
	if !ok {
		return 0, 0
	}
	ids := v.Desired()
	for _, id := range ids {
		if a.IsReady(id) {
			ready++
		}
	}
	return ready, len(ids)
}

// Resource returns the best resident data for a node. A node finer than the
// desired set is served by the desired node covering it. Otherwise this is
// the node itself or its nearest resident ancestor. The root is pinned, so
// this only fails before the root finished loading or when the root has no
// artifact.
func (v *View) Resource(attachment string, id node.NodeID) (atlas.Resource, bool) {
	a, ok := v.terrain.Atlas(attachment)
	if !ok {
		return atlas.Resource{}, false
	}

	v.mu.Lock()
	if covering, ok := v.tree.Covering(id); ok {
		id = covering
	}
	v.mu.Unlock()

	return a.Fallback(id)
}

// Close releases every node the view desires. Closing twice is a no-op.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true
	v.terrain.release(v.tree.Desired())
}
