package terrain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

var (
	// ErrTerrainExists is returned when a terrain ID is registered twice.
	ErrTerrainExists = errors.New("terrain already registered")
	// ErrUnknownTerrain is returned for a terrain ID that is not registered.
	ErrUnknownTerrain = errors.New("unknown terrain")
	// ErrUnknownView is returned for a view that was never created or was removed.
	ErrUnknownView = errors.New("unknown view")
)

// Registry holds the terrains of a process and the views created on them.
// A view is created on first use and destroyed when either its terrain or
// its viewer is removed.
type Registry struct {
	terrains *xsync.MapOf[uuid.UUID, *Terrain]
	views    *xsync.MapOf[Key, *View]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		terrains: xsync.NewMapOf[uuid.UUID, *Terrain](),
		views:    xsync.NewMapOf[Key, *View](),
	}
}

// AddTerrain registers a terrain under its ID.
func (r *Registry) AddTerrain(t *Terrain) error {
	if _, loaded := r.terrains.LoadOrStore(t.ID(), t); loaded {
		return fmt.Errorf("%w: %s", ErrTerrainExists, t.ID())
	}
	return nil
}

// Terrain returns a registered terrain.
func (r *Registry) Terrain(id uuid.UUID) (*Terrain, bool) {
	return r.terrains.Load(id)
}

// View returns the view of viewer on a terrain, creating it with cfg on
// first use. cfg is ignored for an existing view.
func (r *Registry) View(terrainID, viewer uuid.UUID, cfg config.ViewConfig) (*View, error) {
	t, ok := r.terrains.Load(terrainID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTerrain, terrainID)
	}

	var err error
	v, ok := r.views.Compute(Key{Terrain: terrainID, Viewer: viewer}, func(old *View, loaded bool) (*View, bool) {
		if loaded {
			return old, false
		}
		var created *View
		created, err = t.NewView(viewer, cfg)
		return created, err != nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownView, terrainID, viewer)
	}
	return v, nil
}

// Frame runs one frame of an existing view.
func (r *Registry) Frame(key Key, pos math.Vec3) []error {
	v, ok := r.views.Load(key)
	if !ok {
		return []error{fmt.Errorf("%w: %s/%s", ErrUnknownView, key.Terrain, key.Viewer)}
	}
	return v.terrain.Frame(v, pos)
}

// RemoveTerrain unregisters a terrain and closes every view on it.
// The terrain's atlases keep running until the caller stops them.
func (r *Registry) RemoveTerrain(id uuid.UUID) bool {
	if _, ok := r.terrains.LoadAndDelete(id); !ok {
		return false
	}
	r.removeViews(func(k Key) bool { return k.Terrain == id })
	return true
}

// RemoveViewer closes the views of a viewer on every terrain and returns how many were closed.
func (r *Registry) RemoveViewer(viewer uuid.UUID) int {
	return r.removeViews(func(k Key) bool { return k.Viewer == viewer })
}

func (r *Registry) removeViews(match func(Key) bool) int {
	var keys []Key
	r.views.Range(func(k Key, _ *View) bool {
		if match(k) {
			keys = append(keys, k)
		}
		return true
	})

	removed := 0
	for _, k := range keys {
		if v, ok := r.views.LoadAndDelete(k); ok {
			v.Close()
			removed++
		}
	}
	return removed
}

// Range calls f for every view until f returns false.
func (r *Registry) Range(f func(Key, *View) bool) {
	r.views.Range(f)
}

// Len returns the number of views.
func (r *Registry) Len() int {
	return r.views.Size()
}
