package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/preprocess"
	"github.com/Faultbox/midgard-terrain/internal/store"
	"github.com/Faultbox/midgard-terrain/pkg/formats"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

func synthTerrain(dir string, format formats.FileFormat, target node.Format) config.TerrainConfig {
	return config.TerrainConfig{
		Size:          124,
		LODCount:      1,
		Height:        100,
		NodeAtlasSize: 4,
		Attachments: []config.AttachmentConfig{{
			AttachmentConfig: node.AttachmentConfig{Name: "a", TextureSize: 128, MipLevelCount: 2, Format: target},
			Tiles:            config.TileConfig{Path: dir, Size: 64, FileFormat: format, Scale: 0.01},
		}},
	}
}

func TestSynthTilesDecode(t *testing.T) {
	cases := []struct {
		format formats.FileFormat
		target node.Format
	}{
		{formats.FileFormatDTM, node.FormatR16},
		{formats.FileFormatTIFF, node.FormatR16},
		{formats.FileFormatPNG, node.FormatR16},
		{formats.FileFormatPNG, node.FormatRGB8},
		{formats.FileFormatTGA, node.FormatRGB8},
	}

	for _, tc := range cases {
		t.Run(tc.format.String()+"_"+tc.target.String(), func(t *testing.T) {
			requireT := require.New(t)

			cfg := synthTerrain(t.TempDir(), tc.format, tc.target)
			a := cfg.Attachments[0]
			data, err := synthTile(cfg, a, 1, 0)
			requireT.NoError(err)

			raster, err := formats.Decode(data, tc.format, tc.target, formats.DecodeOptions{
				MaxHeight: cfg.Height,
				Scale:     a.Tiles.Scale,
			})
			requireT.NoError(err)
			requireT.Equal(a.Tiles.Size, raster.Width)
			requireT.Equal(a.Tiles.Size, raster.Height)

			img := node.NewImage(1, tc.target)
			raster.CopyTo(img, 0, 0, 10, 10)
			requireT.False(img.IsNoData(0, 0))
		})
	}
}

func TestSynthThenPreprocess(t *testing.T) {
	requireT := require.New(t)

	dir := t.TempDir()
	cfg := synthTerrain(filepath.Join(dir, "source"), formats.FileFormatDTM, node.FormatR16)
	n, err := synthAttachment(context.Background(), cfg, cfg.Attachments[0])
	requireT.NoError(err)
	requireT.Equal(4, n)

	st, err := store.NewFileStore(filepath.Join(dir, "nodes"))
	requireT.NoError(err)
	p, err := preprocess.FromConfig(st, cfg)
	requireT.NoError(err)
	res, err := p.Preprocess(context.Background(), cfg)
	requireT.NoError(err)
	requireT.Equal([]node.NodeID{{}}, res.Attachments["a"].Index)

	data, err := st.Get("a", node.NodeID{})
	requireT.NoError(err)
	mips, err := cfg.Attachments[0].Layout().DecodeArtifact(data)
	requireT.NoError(err)

	s := inspectMip(mips[0], cfg.Height)
	requireT.Less(s.NoData, s.Size*s.Size)
	requireT.GreaterOrEqual(s.Min, 0.05*cfg.Height-1)
	requireT.LessOrEqual(s.Max, 0.95*cfg.Height+1)
}

func TestRawSampleKeepsNoDataFree(t *testing.T) {
	require.Equal(t, uint16(1), rawSample(-5, 1, 0))
	require.Equal(t, uint16(65535), rawSample(1e9, 1, 0))
	require.Equal(t, uint16(250), rawSample(2.5, 0.01, 0))
}

func TestMissingArtifactsListsDeletedNodes(t *testing.T) {
	requireT := require.New(t)

	st, err := store.NewFileStore(t.TempDir())
	requireT.NoError(err)
	ids := []node.NodeID{{LOD: 0}, {LOD: 0, X: 1}, {LOD: 1}}
	for _, id := range ids {
		requireT.NoError(st.Put("a", id, []byte{1}))
	}

	missing, err := missingArtifacts(st, "a", ids)
	requireT.NoError(err)
	requireT.Empty(missing)

	requireT.NoError(st.Delete("a", ids[1]))
	missing, err = missingArtifacts(st, "a", ids)
	requireT.NoError(err)
	requireT.Equal([]node.NodeID{ids[1]}, missing)
}
