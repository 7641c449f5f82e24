package terrain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-terrain/internal/config"
)

func TestRegistryViewLifecycle(t *testing.T) {
	requireT := require.New(t)

	st := populate(t, testConfig())
	first := newTerrain(t, st)
	second := newTerrain(t, st)

	r := NewRegistry()
	requireT.NoError(r.AddTerrain(first))
	requireT.NoError(r.AddTerrain(second))
	requireT.ErrorIs(r.AddTerrain(first), ErrTerrainExists)

	got, ok := r.Terrain(first.ID())
	requireT.True(ok)
	requireT.Same(first, got)

	viewer := uuid.New()
	v1, err := r.View(first.ID(), viewer, testView())
	requireT.NoError(err)
	again, err := r.View(first.ID(), viewer, config.ViewConfig{})
	requireT.NoError(err)
	requireT.Same(v1, again)
	requireT.Equal(Key{Terrain: first.ID(), Viewer: viewer}, v1.Key())

	v2, err := r.View(second.ID(), viewer, testView())
	requireT.NoError(err)
	other, err := r.View(first.ID(), uuid.New(), testView())
	requireT.NoError(err)
	requireT.Equal(3, r.Len())

	requireT.Empty(r.Frame(v1.Key(), corner))
	requireT.NotEmpty(v1.Desired())

	requireT.Equal(2, r.RemoveViewer(viewer))
	requireT.Equal(1, r.Len())
	for _, id := range v1.Desired() {
		requireT.Equal(0, first.Refs(id))
	}
	requireT.ErrorIs(first.Frame(v1, corner)[0], ErrViewClosed)
	requireT.ErrorIs(second.Frame(v2, corner)[0], ErrViewClosed)
	requireT.ErrorIs(r.Frame(v1.Key(), corner)[0], ErrUnknownView)

	requireT.True(r.RemoveTerrain(first.ID()))
	requireT.False(r.RemoveTerrain(first.ID()))
	requireT.Equal(0, r.Len())
	requireT.ErrorIs(first.Frame(other, corner)[0], ErrViewClosed)

	_, err = r.View(first.ID(), viewer, testView())
	requireT.ErrorIs(err, ErrUnknownTerrain)
}

func TestRegistryViewInvalidConfig(t *testing.T) {
	requireT := require.New(t)

	tr := newTerrain(t, populate(t, testConfig()))
	r := NewRegistry()
	requireT.NoError(r.AddTerrain(tr))

	_, err := r.View(tr.ID(), uuid.New(), config.ViewConfig{})
	requireT.ErrorIs(err, config.ErrInvalidConfig)
	requireT.Equal(0, r.Len())
}

func TestRegistryRange(t *testing.T) {
	tr := newTerrain(t, populate(t, testConfig()))
	r := NewRegistry()
	require.NoError(t, r.AddTerrain(tr))

	viewers := map[uuid.UUID]bool{}
	for range 3 {
		id := uuid.New()
		viewers[id] = true
		_, err := r.View(tr.ID(), id, testView())
		require.NoError(t, err)
	}

	seen := 0
	r.Range(func(k Key, v *View) bool {
		require.True(t, viewers[k.Viewer])
		require.Same(t, tr, v.Terrain())
		seen++
		return true
	})
	require.Equal(t, 3, seen)
}
