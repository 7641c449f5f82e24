// Package preprocess turns source tiles into quadtree node artifacts.
//
// For every registered attachment the preprocessor resamples the source tiles
// into level 0 nodes, builds coarser levels by downsampling children, encodes
// each node with its mip chain and writes it to a node store together with a
// node index. Attachments are independent and run concurrently.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/store"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// ErrDuplicateAttachment is returned when an attachment name is registered twice.
var ErrDuplicateAttachment = errors.New("attachment already registered")

// Preprocessor runs the registered attachment pipelines.
type Preprocessor struct {
	store       store.Store
	log         *zap.Logger
	workers     int
	attachments []pipeline
}

type pipeline struct {
	cfg   node.AttachmentConfig
	tiles config.TileConfig
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(p *Preprocessor) {
		p.log = logger.OrNop(log)
	}
}

// WithWorkers bounds how many attachments are processed at once.
func WithWorkers(n int) Option {
	return func(p *Preprocessor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// New creates a preprocessor writing into st.
func New(st store.Store, opts ...Option) *Preprocessor {
	p := &Preprocessor{
		store:   st,
		log:     zap.NewNop(),
		workers: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FromConfig creates a preprocessor with every attachment of terrain that has tiles configured.
func FromConfig(st store.Store, terrain config.TerrainConfig, opts ...Option) (*Preprocessor, error) {
	p := New(st, opts...)
	for _, a := range terrain.Attachments {
		if a.Tiles.Path == "" {
			continue
		}
		if err := p.AddAttachment(a.AttachmentConfig, a.Tiles); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddAttachment registers an attachment pipeline.
func (p *Preprocessor) AddAttachment(cfg node.AttachmentConfig, tiles config.TileConfig) error {
	if err := cfg.Validate(); err != nil {
		return &config.ConfigInvalidError{Field: "attachment", Err: err}
	}
	if err := tiles.Validate(cfg.Format); err != nil {
		return &config.ConfigInvalidError{Field: cfg.Name + ".tiles", Err: err}
	}
	for _, a := range p.attachments {
		if a.cfg.Name == cfg.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateAttachment, cfg.Name)
		}
	}

	p.attachments = append(p.attachments, pipeline{cfg: cfg, tiles: tiles})
	return nil
}

// Result summarizes one run.
type Result struct {
	Attachments map[string]*AttachmentResult
	Duration    time.Duration
}

// AttachmentResult describes the nodes written for one attachment.
type AttachmentResult struct {
	// Index lists stored nodes ordered by (lod, y, x).
	Index []node.NodeID
	// Nodes written per level.
	PerLevel []int
	// Tiles decoded and tiles that were missing.
	TilesRead    int
	TilesMissing int
	// Nodes left over from an earlier run and deleted.
	Pruned   int
	Duration time.Duration
}

// IndexOf returns the position of id in the node index.
func (r *AttachmentResult) IndexOf(id node.NodeID) (int, bool) {
	lo, hi := 0, len(r.Index)
	for lo < hi {
		mid := (lo + hi) / 2
		if r.Index[mid].Less(id) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(r.Index) && r.Index[lo] == id {
		return lo, true
	}
	return 0, false
}

// Preprocess runs every registered attachment against the terrain.
// A failing attachment does not stop the others; all failures are joined
// into the returned error. The result holds every attachment that finished.
func (p *Preprocessor) Preprocess(ctx context.Context, terrain config.TerrainConfig) (*Result, error) {
	if err := terrain.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]*AttachmentResult, len(p.attachments))
	errs := make([]error, len(p.attachments))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, a := range p.attachments {
		g.Go(func() error {
			job := newJob(p.store, terrain, a, p.log.With(zap.String("attachment", a.cfg.Name)))
			res, err := job.run(ctx)
			if err != nil {
				errs[i] = fmt.Errorf("attachment %s: %w", a.cfg.Name, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := &Result{
		Attachments: make(map[string]*AttachmentResult, len(p.attachments)),
		Duration:    time.Since(start),
	}
	for i, a := range p.attachments {
		if results[i] != nil {
			out.Attachments[a.cfg.Name] = results[i]
		}
	}
	return out, errors.Join(errs...)
}
