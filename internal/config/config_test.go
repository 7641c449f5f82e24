package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/midgard-terrain/pkg/formats"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Test terrain defaults
	if cfg.Terrain.LODCount != 6 {
		t.Errorf("expected lod count 6, got %d", cfg.Terrain.LODCount)
	}
	if cfg.Terrain.NodeAtlasSize != 256 {
		t.Errorf("expected atlas size 256, got %d", cfg.Terrain.NodeAtlasSize)
	}
	if len(cfg.Terrain.Attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(cfg.Terrain.Attachments))
	}
	if cfg.Terrain.LeafSize() != 496 {
		t.Errorf("expected leaf size 496, got %d", cfg.Terrain.LeafSize())
	}

	// Test view defaults
	if cfg.View.RefinementBias != 1 {
		t.Errorf("expected refinement bias 1, got %f", cfg.View.RefinementBias)
	}
	if cfg.View.ViewDistance != 4*496 {
		t.Errorf("expected view distance 1984, got %f", cfg.View.ViewDistance)
	}

	// Test logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "terrain.yaml")

	yamlContent := `
terrain:
  path: "/data/saxony"
  size: 248
  lod_count: 2
  height: 1.0
  node_atlas_size: 4
  attachments:
    - name: dsm
      texture_size: 128
      mip_level_count: 2
      format: r16
      tiles:
        path: "/data/saxony/source/dsm"
        size: 124
        file_format: tiff
        scale: 0.01

view:
  view_distance: 248
  refinement_bias: 1.5
  refinement_limit: 3
  grid_size: 16
  hysteresis: 2

runtime:
  store: badger
  load_workers: 8

logging:
  level: "debug"
  log_file: "terrain.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Load config
	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Verify values were loaded
	if cfg.Terrain.Path != "/data/saxony" {
		t.Errorf("expected path /data/saxony, got %s", cfg.Terrain.Path)
	}
	if len(cfg.Terrain.Attachments) != 1 {
		t.Fatalf("expected attachments to be replaced by 1 entry, got %d", len(cfg.Terrain.Attachments))
	}

	a := cfg.Terrain.Attachments[0]
	if a.Name != "dsm" || a.TextureSize != 128 || a.MipLevelCount != 2 {
		t.Errorf("unexpected attachment %+v", a.AttachmentConfig)
	}
	if a.Format != node.FormatR16 {
		t.Errorf("expected format r16, got %s", a.Format)
	}
	if a.Tiles.FileFormat != formats.FileFormatTIFF {
		t.Errorf("expected tiff tiles, got %s", a.Tiles.FileFormat)
	}
	if a.Tiles.Scale != 0.01 {
		t.Errorf("expected tile scale 0.01, got %f", a.Tiles.Scale)
	}
	if cfg.Terrain.LeafSize() != 124 {
		t.Errorf("expected leaf size 124, got %d", cfg.Terrain.LeafSize())
	}

	if cfg.View.RefinementLimit != 3 {
		t.Errorf("expected refinement limit 3, got %d", cfg.View.RefinementLimit)
	}
	if cfg.Runtime.Store != StoreBadger {
		t.Errorf("expected badger store, got %s", cfg.Runtime.Store)
	}
	if cfg.Logging.LogFile != "terrain.log" {
		t.Errorf("expected log file 'terrain.log', got %s", cfg.Logging.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected loaded config to be valid, got %v", err)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	// Create temporary config file with invalid YAML
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
terrain:
  size: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Try to load - should error
	cfg := Default()
	err := loadFromFile(cfg, configPath)
	if err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileUnknownFormat(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "terrain.yaml")

	yamlContent := `
terrain:
  attachments:
    - name: dop
      texture_size: 512
      mip_level_count: 4
      format: bc7
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if err := loadFromFile(Default(), configPath); err == nil {
		t.Error("expected error for unknown pixel format")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	err := loadFromFile(cfg, "/nonexistent/path/terrain.yaml")
	if err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	// Just verify it returns a non-empty path
	// Actual path depends on OS
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}

	// Verify path is absolute
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	// Save current directory
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	// Create temp directory and change to it
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	// No config file exists - should return empty
	path := findConfigFile()
	if path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	// Create terrain.yaml in current directory
	configPath := filepath.Join(tmpDir, "terrain.yaml")
	if err := os.WriteFile(configPath, []byte("terrain:\n  size: 800\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	// Should find it now
	path = findConfigFile()
	if path == "" {
		t.Error("expected to find terrain.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*Config)
		teardown func()
	}{
		{
			name: "debug flag",
			setup: func() {
				*flagDebug = true
			},
			verify: func(cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() {
				*flagDebug = false
			},
		},
		{
			name: "terrain and store flags",
			setup: func() {
				*flagTerrain = "/srv/terrain"
				*flagStore = StoreBadger
			},
			verify: func(cfg *Config) {
				if cfg.Terrain.Path != "/srv/terrain" {
					t.Errorf("expected terrain path /srv/terrain, got %s", cfg.Terrain.Path)
				}
				if cfg.Runtime.Store != StoreBadger {
					t.Errorf("expected store badger, got %s", cfg.Runtime.Store)
				}
			},
			teardown: func() {
				*flagTerrain = ""
				*flagStore = ""
			},
		},
		{
			name: "atlas size and view distance flags",
			setup: func() {
				*flagAtlasSize = 32
				*flagViewDistance = 100
				*flagWorkers = 2
			},
			verify: func(cfg *Config) {
				if cfg.Terrain.NodeAtlasSize != 32 {
					t.Errorf("expected atlas size 32, got %d", cfg.Terrain.NodeAtlasSize)
				}
				if cfg.View.ViewDistance != 100 {
					t.Errorf("expected view distance 100, got %f", cfg.View.ViewDistance)
				}
				if cfg.Runtime.LoadWorkers != 2 {
					t.Errorf("expected 2 load workers, got %d", cfg.Runtime.LoadWorkers)
				}
			},
			teardown: func() {
				*flagAtlasSize = 0
				*flagViewDistance = 0
				*flagWorkers = 0
			},
		},
		{
			name: "preprocess flag",
			setup: func() {
				*flagPreprocess = true
			},
			verify: func(cfg *Config) {
				if !cfg.Runtime.Preprocess {
					t.Error("expected preprocess to be enabled")
				}
			},
			teardown: func() {
				*flagPreprocess = false
			},
		},
		{
			name: "metrics flag",
			setup: func() {
				*flagMetrics = "127.0.0.1:9100"
			},
			verify: func(cfg *Config) {
				if cfg.Runtime.MetricsAddr != "127.0.0.1:9100" {
					t.Errorf("expected metrics addr 127.0.0.1:9100, got %s", cfg.Runtime.MetricsAddr)
				}
			},
			teardown: func() {
				*flagMetrics = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			tt.setup()
			defer tt.teardown()

			// Apply flags to default config
			cfg := Default()
			applyFlags(cfg)

			// Verify
			tt.verify(cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "terrain.yaml")

	yamlContent := `
terrain:
  node_atlas_size: 64
  height: 2500
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Set flag to override config file
	*flagConfig = configPath
	*flagAtlasSize = 128
	defer func() {
		*flagConfig = ""
		*flagAtlasSize = 0
	}()

	// Load config
	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Atlas size should be from flag (128), not file (64)
	if cfg.Terrain.NodeAtlasSize != 128 {
		t.Errorf("expected atlas size 128 from flag, got %d", cfg.Terrain.NodeAtlasSize)
	}

	// Height should be from file since no flag override
	if cfg.Terrain.Height != 2500 {
		t.Errorf("expected height 2500 from file, got %f", cfg.Terrain.Height)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"lod count zero", func(c *Config) { c.Terrain.LODCount = 0 }, "terrain.lod_count"},
		{"root too small", func(c *Config) { c.Terrain.LODCount = 2 }, "terrain.lod_count"},
		{"no attachments", func(c *Config) { c.Terrain.Attachments = nil }, "terrain.attachments"},
		{"border too large", func(c *Config) { c.Terrain.Attachments[0].TextureSize = 32 }, "terrain.attachments[0]"},
		{"duplicate name", func(c *Config) { c.Terrain.Attachments[1].Name = "dtm" }, "terrain.attachments[1]"},
		{"tile format mismatch", func(c *Config) {
			c.Terrain.Attachments[1].Tiles.FileFormat = formats.FileFormatDTM
		}, "terrain.attachments[1].tiles"},
		{"zero atlas", func(c *Config) { c.Terrain.NodeAtlasSize = 0 }, "terrain.node_atlas_size"},
		{"view distance", func(c *Config) { c.View.ViewDistance = 0 }, "view.view_distance"},
		{"negative limit", func(c *Config) { c.View.RefinementLimit = -1 }, "view.refinement_limit"},
		{"store", func(c *Config) { c.Runtime.Store = "s3" }, "runtime.store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var invalidErr *ConfigInvalidError
			if !errors.As(err, &invalidErr) {
				t.Fatalf("expected ConfigInvalidError, got %T", err)
			}
			if invalidErr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, invalidErr.Field)
			}
		})
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "terrain.yaml")

	cfg := Default()
	cfg.Terrain.Height = 4321
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if loaded.Terrain.Height != 4321 {
		t.Errorf("expected height 4321, got %f", loaded.Terrain.Height)
	}
	if loaded.Terrain.Attachments[1].Format != node.FormatRGB8 {
		t.Errorf("expected rgb8 after round trip, got %s", loaded.Terrain.Attachments[1].Format)
	}
	if loaded.Terrain.Attachments[0].Tiles.FileFormat != formats.FileFormatDTM {
		t.Errorf("expected dtm tiles after round trip, got %s", loaded.Terrain.Attachments[0].Tiles.FileFormat)
	}
}
