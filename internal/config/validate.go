package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// ErrInvalidConfig is matched by every ConfigInvalidError.
var ErrInvalidConfig = errors.New("invalid config")

// ConfigInvalidError reports a configuration that cannot be used to build a terrain or view.
type ConfigInvalidError struct {
	Field string
	Err   error
}

func (e *ConfigInvalidError) Error() string {
	return fmt.Sprintf("invalid config: %s: %v", e.Field, e.Err)
}

func (e *ConfigInvalidError) Unwrap() []error {
	return []error{ErrInvalidConfig, e.Err}
}

func invalid(field, format string, args ...any) error {
	return &ConfigInvalidError{Field: field, Err: fmt.Errorf(format, args...)}
}

// Validate checks every section used at runtime.
func (c *Config) Validate() error {
	if err := c.Terrain.Validate(); err != nil {
		return err
	}
	if err := c.View.Validate(); err != nil {
		return err
	}
	switch c.Runtime.Store {
	case StoreFile, StoreBadger, StoreMemory:
	default:
		return invalid("runtime.store", "unknown store %q", c.Runtime.Store)
	}
	if c.Runtime.LoadWorkers < 1 {
		return invalid("runtime.load_workers", "must be at least 1, got %d", c.Runtime.LoadWorkers)
	}
	return nil
}

// Validate checks terrain constants and every attachment.
func (t TerrainConfig) Validate() error {
	if t.LODCount < 1 || t.LODCount > node.MaxLODCount {
		return invalid("terrain.lod_count", "%d outside 1..%d", t.LODCount, node.MaxLODCount)
	}
	if t.Size <= 0 {
		return invalid("terrain.size", "must be positive, got %d", t.Size)
	}
	if t.Height <= 0 {
		return invalid("terrain.height", "must be positive, got %f", t.Height)
	}
	if t.NodeAtlasSize < 1 {
		return invalid("terrain.node_atlas_size", "must be at least 1, got %d", t.NodeAtlasSize)
	}
	if len(t.Attachments) == 0 {
		return invalid("terrain.attachments", "at least one attachment is required")
	}

	names := make(map[string]bool, len(t.Attachments))
	for i, a := range t.Attachments {
		field := fmt.Sprintf("terrain.attachments[%d]", i)
		if err := a.AttachmentConfig.Validate(); err != nil {
			return &ConfigInvalidError{Field: field, Err: err}
		}
		if names[a.Name] {
			return invalid(field, "duplicate attachment %q", a.Name)
		}
		names[a.Name] = true

		// Tiles are only needed by the preprocessor.
		if a.Tiles.Path == "" {
			continue
		}
		if err := a.Tiles.Validate(a.Format); err != nil {
			return &ConfigInvalidError{Field: field + ".tiles", Err: err}
		}
	}

	leaf := t.LeafSize()
	if leaf <= 0 {
		return invalid("terrain.leaf_node_size", "must be positive, got %d", leaf)
	}
	if root := uint64(leaf) << (t.LODCount - 1); root < uint64(t.Size) {
		return invalid("terrain.lod_count", "root node covers %d units, terrain size is %d", root, t.Size)
	}
	return nil
}

// Validate checks viewer tunables.
func (v ViewConfig) Validate() error {
	if v.ViewDistance <= 0 {
		return invalid("view.view_distance", "must be positive, got %f", v.ViewDistance)
	}
	if v.RefinementBias <= 0 {
		return invalid("view.refinement_bias", "must be positive, got %f", v.RefinementBias)
	}
	if v.RefinementLimit < 0 {
		return invalid("view.refinement_limit", "must not be negative, got %d", v.RefinementLimit)
	}
	if v.Hysteresis < 0 {
		return invalid("view.hysteresis", "must not be negative, got %f", v.Hysteresis)
	}
	return nil
}

// Validate checks that tiles can feed an attachment of the given format.
func (t TileConfig) Validate(target node.Format) error {
	if t.Size <= 0 {
		return fmt.Errorf("size must be positive, got %d", t.Size)
	}
	if !t.FileFormat.Supports(target) {
		return fmt.Errorf("%s tiles cannot produce %s", t.FileFormat, target)
	}
	return nil
}
