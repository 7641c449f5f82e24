// Package config handles terrain and viewer configuration loading and management.
package config

import (
	"github.com/Faultbox/midgard-terrain/pkg/formats"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// Config holds all settings.
type Config struct {
	Terrain TerrainConfig `yaml:"terrain"`
	View    ViewConfig    `yaml:"view"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Logging LoggingConfig `yaml:"logging"`
}

// TerrainConfig holds per-terrain constants. Immutable once a terrain is built.
type TerrainConfig struct {
	Path          string             `yaml:"path"`            // Root of the preprocessed node store
	Size          int                `yaml:"size"`            // Terrain extent in world units per axis
	LODCount      int                `yaml:"lod_count"`       // Number of quadtree levels
	Height        float64            `yaml:"height"`          // Elevation mapped to the top of the R16 range
	LeafNodeSize  int                `yaml:"leaf_node_size"`  // World units covered by a level 0 node (0 = first attachment's center size)
	NodeAtlasSize int                `yaml:"node_atlas_size"` // Slots per attachment atlas
	Attachments   []AttachmentConfig `yaml:"attachments"`
}

// AttachmentConfig binds an attachment layout to its source tiles.
type AttachmentConfig struct {
	node.AttachmentConfig `yaml:",inline"`
	Tiles                 TileConfig `yaml:"tiles"`
}

// TileConfig describes the source tiles of one attachment.
// Tile (x, y) is <Path>/<x>_<y>.<ext> and covers world
// [OriginX + x*Size, OriginX + (x+1)*Size) on each axis.
type TileConfig struct {
	Path       string             `yaml:"path"`
	Size       int                `yaml:"size"`
	FileFormat formats.FileFormat `yaml:"file_format"`
	OriginX    int                `yaml:"origin_x"`
	OriginY    int                `yaml:"origin_y"`
	Scale      float64            `yaml:"scale"`  // Raw sample to elevation (TIFF/PNG elevation only)
	Offset     float64            `yaml:"offset"` // Added after Scale
}

// ViewConfig holds per-viewer tunables.
type ViewConfig struct {
	ViewDistance    float64 `yaml:"view_distance"`    // Split distance of a level 0 node; doubles per level
	RefinementBias  float64 `yaml:"refinement_bias"`  // Multiplies every split distance
	RefinementLimit int     `yaml:"refinement_limit"` // Max levels below the root (0 = down to level 0)
	GridSize        int     `yaml:"grid_size"`        // Patch grid resolution for the consumer
	Hysteresis      float64 `yaml:"hysteresis"`       // Viewer movement that triggers a new traversal
}

// RuntimeConfig holds process-level settings.
type RuntimeConfig struct {
	Store             string `yaml:"store"`              // "file", "badger" or "memory"
	LoadWorkers       int    `yaml:"load_workers"`       // Concurrent atlas loads per attachment
	PreprocessWorkers int    `yaml:"preprocess_workers"` // Attachments preprocessed concurrently
	Preprocess        bool   `yaml:"preprocess"`         // Run the preprocessor at startup
	MetricsAddr       string `yaml:"metrics_addr"`       // Prometheus listen address, empty disables it
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Store backends.
const (
	StoreFile   = "file"
	StoreBadger = "badger"
	StoreMemory = "memory"
)

const (
	defaultTextureSize = 512
	defaultMipLevels   = 4
	defaultTileSize    = 2000
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Terrain: TerrainConfig{
			Path:          "terrain",
			Size:          4 * defaultTileSize,
			LODCount:      6,
			Height:        1000,
			NodeAtlasSize: 256,
			Attachments: []AttachmentConfig{
				{
					AttachmentConfig: node.AttachmentConfig{
						Name:          "dtm",
						TextureSize:   defaultTextureSize,
						MipLevelCount: defaultMipLevels,
						Format:        node.FormatR16,
					},
					Tiles: TileConfig{
						Path:       "terrain/source/dtm",
						Size:       defaultTileSize,
						FileFormat: formats.FileFormatDTM,
					},
				},
				{
					AttachmentConfig: node.AttachmentConfig{
						Name:          "dop",
						TextureSize:   defaultTextureSize,
						MipLevelCount: defaultMipLevels,
						Format:        node.FormatRGB8,
					},
					Tiles: TileConfig{
						Path:       "terrain/source/dop",
						Size:       defaultTileSize,
						FileFormat: formats.FileFormatPNG,
					},
				},
			},
		},
		View: ViewConfig{
			ViewDistance:   4 * float64(defaultTextureSize-(1<<defaultMipLevels)),
			RefinementBias: 1,
			GridSize:       8,
			Hysteresis:     16,
		},
		Runtime: RuntimeConfig{
			Store:             StoreFile,
			LoadWorkers:       4,
			PreprocessWorkers: 2,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// LeafSize returns the world extent of a level 0 node.
func (t TerrainConfig) LeafSize() int {
	if t.LeafNodeSize > 0 {
		return t.LeafNodeSize
	}
	if len(t.Attachments) > 0 {
		return t.Attachments[0].CenterSize()
	}
	return 0
}

// NodeSize returns the world extent of a node at the given level.
func (t TerrainConfig) NodeSize(lod uint8) float64 {
	return float64(t.LeafSize()) * float64(uint64(1)<<lod)
}

// Attachment returns the attachment with the given name.
func (t TerrainConfig) Attachment(name string) (AttachmentConfig, bool) {
	for _, a := range t.Attachments {
		if a.Name == name {
			return a, true
		}
	}
	return AttachmentConfig{}, false
}
