package preprocess

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/store"
	"github.com/Faultbox/midgard-terrain/pkg/formats"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// job preprocesses one attachment. It owns its tile cache and shares nothing
// with jobs of other attachments.
type job struct {
	store   store.Store
	terrain config.TerrainConfig
	cfg     node.AttachmentConfig
	tiles   config.TileConfig
	layout  node.Layout
	log     *zap.Logger

	border int
	center int
	leaf   float64
	pixel  float64 // world units per level 0 pixel

	cache map[tileKey]*formats.Raster
	res   *AttachmentResult
}

type tileKey struct{ x, y int }

// axisSample locates one pixel row or column in the tile grid.
type axisSample struct {
	valid bool    // inside the terrain extent
	tile  int     // tile index along the axis
	frac  float64 // position inside the tile, [0, 1)
}

func newJob(st store.Store, terrain config.TerrainConfig, p pipeline, log *zap.Logger) *job {
	leaf := float64(terrain.LeafSize())
	return &job{
		store:   st,
		terrain: terrain,
		cfg:     p.cfg,
		tiles:   p.tiles,
		layout:  p.cfg.Layout(),
		log:     log,
		border:  p.cfg.BorderSize(),
		center:  p.cfg.CenterSize(),
		leaf:    leaf,
		pixel:   leaf / float64(p.cfg.CenterSize()),
		cache:   make(map[tileKey]*formats.Raster),
		res: &AttachmentResult{
			PerLevel: make([]int, terrain.LODCount),
		},
	}
}

func (j *job) run(ctx context.Context) (*AttachmentResult, error) {
	start := time.Now()
	j.log.Info("preprocessing attachment",
		zap.Int("texture_size", j.cfg.TextureSize),
		zap.Int("mip_levels", j.cfg.MipLevelCount),
		zap.Stringer("format", j.cfg.Format),
		zap.String("tiles", j.tiles.Path))

	level, err := j.leaves(ctx)
	if err != nil {
		return nil, err
	}
	// Source rasters are only needed for level 0.
	j.cache = nil

	for lod := uint8(1); int(lod) < j.terrain.LODCount; lod++ {
		if level, err = j.parents(ctx, level); err != nil {
			return nil, err
		}
		if len(level) == 0 {
			break
		}
	}

	slices.SortFunc(j.res.Index, node.Compare)
	if err := j.store.PutIndex(j.cfg.Name, j.res.Index); err != nil {
		return nil, fmt.Errorf("writing node index: %w", err)
	}
	if err := j.prune(); err != nil {
		return nil, err
	}

	j.res.Duration = time.Since(start)
	j.log.Info("attachment preprocessed",
		zap.Int("nodes", len(j.res.Index)),
		zap.Ints("per_level", j.res.PerLevel),
		zap.Int("tiles_read", j.res.TilesRead),
		zap.Int("tiles_missing", j.res.TilesMissing),
		zap.Int("pruned", j.res.Pruned),
		zap.Duration("duration", j.res.Duration))
	return j.res, nil
}

// leaves writes every level 0 node that intersects the terrain and holds data.
func (j *job) leaves(ctx context.Context) ([]node.NodeID, error) {
	perSide := node.NodesPerSide(j.terrain.LODCount, 0)
	limit := min(uint32(math.Ceil(float64(j.terrain.Size)/j.leaf)), perSide)

	var written []node.NodeID
	for y := uint32(0); y < limit; y++ {
		for x := uint32(0); x < limit; x++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			id := node.NodeID{X: x, Y: y}
			img, err := j.sampleLeaf(id)
			if err != nil {
				return nil, err
			}
			if !img.HasData() {
				j.log.Debug("skipping empty node", zap.Stringer("node", id))
				continue
			}
			if err := j.write(id, img); err != nil {
				return nil, err
			}
			written = append(written, id)
		}
	}
	return written, nil
}

// sampleLeaf resamples the source tiles covering a level 0 node and its border.
// Sampling is nearest neighbour at pixel centres.
func (j *job) sampleLeaf(id node.NodeID) (*node.Image, error) {
	size := j.cfg.TextureSize
	img := node.NewImage(size, j.cfg.Format)

	cols := j.axis(float64(id.X)*j.leaf, float64(j.tiles.OriginX))
	rows := j.axis(float64(id.Y)*j.leaf, float64(j.tiles.OriginY))

	for py, row := range rows {
		if !row.valid {
			continue
		}
		for px, col := range cols {
			if !col.valid {
				continue
			}
			raster, err := j.tile(col.tile, row.tile)
			if err != nil {
				return nil, err
			}
			if raster == nil {
				continue
			}
			sx := min(int(col.frac*float64(raster.Width)), raster.Width-1)
			sy := min(int(row.frac*float64(raster.Height)), raster.Height-1)
			raster.CopyTo(img, px, py, sx, sy)
		}
	}
	return img, nil
}

// axis maps every pixel of one node axis to a tile and a position inside it.
func (j *job) axis(nodeStart, origin float64) []axisSample {
	tileSize := float64(j.tiles.Size)
	extent := float64(j.terrain.Size)

	samples := make([]axisSample, j.cfg.TextureSize)
	for i := range samples {
		w := nodeStart + (float64(i-j.border)+0.5)*j.pixel
		if w < 0 || w >= extent {
			continue
		}
		t := math.Floor((w - origin) / tileSize)
		samples[i] = axisSample{
			valid: true,
			tile:  int(t),
			frac:  (w - origin - t*tileSize) / tileSize,
		}
	}
	return samples
}

// tile returns the decoded tile, or nil when it is missing.
// Malformed tiles fail the attachment.
func (j *job) tile(x, y int) (*formats.Raster, error) {
	key := tileKey{x, y}
	if raster, ok := j.cache[key]; ok {
		return raster, nil
	}

	path := filepath.Join(j.tiles.Path, fmt.Sprintf("%d_%d.%s", x, y, j.tiles.FileFormat.Ext()))
	raster, err := formats.DecodeFile(path, j.tiles.FileFormat, j.cfg.Format, formats.DecodeOptions{
		MaxHeight: j.terrain.Height,
		Scale:     j.tiles.Scale,
		Offset:    j.tiles.Offset,
	})
	switch {
	case errors.Is(err, formats.ErrTileMissing):
		j.res.TilesMissing++
		j.log.Warn("source tile missing, filling with nodata", zap.String("path", path), zap.Error(err))
		raster = nil
	case err != nil:
		return nil, err
	default:
		j.res.TilesRead++
	}

	j.cache[key] = raster
	return raster, nil
}

// parents writes the parents of the given nodes and returns them.
func (j *job) parents(ctx context.Context, children []node.NodeID) ([]node.NodeID, error) {
	ids := lo.Uniq(lo.Map(children, func(id node.NodeID, _ int) node.NodeID {
		return id.Parent()
	}))
	slices.SortFunc(ids, node.Compare)
	current := lo.SliceToMap(children, func(id node.NodeID) (node.NodeID, struct{}) {
		return id, struct{}{}
	})

	written := make([]node.NodeID, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, found, err := j.downsampleChildren(id, current)
		if err != nil {
			return nil, err
		}
		if found == 0 || !img.HasData() {
			continue
		}
		if err := j.write(id, img); err != nil {
			return nil, err
		}
		written = append(written, id)
	}
	return written, nil
}

// downsampleChildren fills the centre of a parent with the 2x2 box downsample
// of its children's centres and clamps the border from that centre.
// Only children written by this run are read; the others leave their
// quadrant as nodata.
func (j *job) downsampleChildren(id node.NodeID, current map[node.NodeID]struct{}) (*node.Image, int, error) {
	img := node.NewImage(j.cfg.TextureSize, j.cfg.Format)
	half := j.center / 2
	found := 0

	for k, child := range id.Children() {
		if _, ok := current[child]; !ok {
			continue
		}
		data, err := j.store.Get(j.cfg.Name, child)
		if err != nil {
			return nil, 0, fmt.Errorf("reading child %s: %w", child, err)
		}
		mips, err := j.layout.DecodeArtifact(data)
		if err != nil {
			return nil, 0, fmt.Errorf("reading child %s: %w", child, err)
		}
		found++

		src := mips[0]
		ox := j.border + (k%2)*half
		oy := j.border + (k/2)*half
		for v := 0; v < half; v++ {
			for u := 0; u < half; u++ {
				src.BoxInto(img, ox+u, oy+v, j.border+2*u, j.border+2*v)
			}
		}
	}

	img.ClampBorder(j.border)
	return img, found, nil
}

// prune deletes stored nodes of the attachment that are not in the new
// index, left over from an earlier run over different tiles.
func (j *job) prune() error {
	stored, err := j.store.Nodes(j.cfg.Name)
	if err != nil {
		return fmt.Errorf("listing stored nodes: %w", err)
	}
	for _, id := range stored {
		if _, ok := j.res.IndexOf(id); ok {
			continue
		}
		if err := j.store.Delete(j.cfg.Name, id); err != nil {
			return fmt.Errorf("pruning %s: %w", id, err)
		}
		j.log.Debug("pruned stale node", zap.Stringer("node", id))
		j.res.Pruned++
	}
	return nil
}

func (j *job) write(id node.NodeID, img *node.Image) error {
	data, err := j.layout.EncodeArtifact(img.MipChain(j.cfg.MipLevelCount))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", id, err)
	}
	if err := j.store.Put(j.cfg.Name, id, data); err != nil {
		return fmt.Errorf("writing %s: %w", id, err)
	}

	j.res.Index = append(j.res.Index, id)
	j.res.PerLevel[id.LOD]++
	return nil
}
