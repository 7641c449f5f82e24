// Package terrain ties a terrain's configuration, node store and attachment
// atlases together and tracks which nodes its viewers desire.
package terrain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/outofforest/parallel"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/atlas"
	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/quadtree"
	"github.com/Faultbox/midgard-terrain/internal/store"
	"github.com/Faultbox/midgard-terrain/pkg/math"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// ErrViewClosed is returned when a frame is run on a closed view.
var ErrViewClosed = errors.New("view closed")

// Retry delays of failed loads. Missing artifacts wait the maximum delay,
// other failures back off exponentially from the base delay.
const (
	DefaultRetryBase = 250 * time.Millisecond
	DefaultRetryMax  = 30 * time.Second
)

// Terrain owns one atlas per attachment. Nodes desired by any of its views
// are requested from every atlas and released once no view desires them.
// Failed loads of nodes that are still desired are requested again after a
// backoff.
type Terrain struct {
	id      uuid.UUID
	cfg     config.TerrainConfig
	log     *zap.Logger
	root    node.NodeID
	atlases []*atlas.Atlas

	retryBase time.Duration
	retryMax  time.Duration

	mu      sync.Mutex
	refs    map[node.NodeID]int
	retries map[retryKey]*retry
}

type retryKey struct {
	attachment string
	id         node.NodeID
}

type retry struct {
	attempts int
	due      time.Time
	waiting  bool // false once the request went out again
}

type options struct {
	id        uuid.UUID
	log       *zap.Logger
	workers   int
	retryBase time.Duration
	retryMax  time.Duration
}

// Option configures a Terrain.
type Option func(*options)

// WithID sets the terrain identity. The default is a random UUID.
func WithID(id uuid.UUID) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = logger.OrNop(log)
	}
}

// WithLoadWorkers sets the number of concurrent loads per atlas.
func WithLoadWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithRetryBackoff sets the first and the longest delay before a failed
// load is requested again.
func WithRetryBackoff(base, maxDelay time.Duration) Option {
	return func(o *options) {
		o.retryBase = base
		o.retryMax = max(base, maxDelay)
	}
}

// New validates cfg and creates the attachment atlases. The root node of
// every attachment is requested right away and stays pinned as the fallback
// of last resort. Loads start once Run is called.
func New(cfg config.TerrainConfig, st store.Store, opts ...Option) (*Terrain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		id:        uuid.New(),
		log:       zap.NewNop(),
		workers:   1,
		retryBase: DefaultRetryBase,
		retryMax:  DefaultRetryMax,
	}
	for _, opt := range opts {
		opt(&o)
	}

	t := &Terrain{
		id:   o.id,
		cfg:  cfg,
		log:  o.log.With(zap.Stringer("terrain", o.id)),
		root:      node.Root(cfg.LODCount),
		retryBase: o.retryBase,
		retryMax:  o.retryMax,
		refs:      make(map[node.NodeID]int),
		retries:   make(map[retryKey]*retry),
	}
	for _, a := range cfg.Attachments {
		at, err := atlas.New(atlas.Config{
			Attachment: a.AttachmentConfig,
			Capacity:   cfg.NodeAtlasSize,
			Workers:    o.workers,
		}, atlas.NewStoreLoader(st, a.AttachmentConfig), atlas.WithLogger(t.log.Named("atlas."+a.Name)))
		if err != nil {
			return nil, err
		}
		t.atlases = append(t.atlases, at)
	}

	t.acquire([]node.NodeID{t.root})
	return t, nil
}

// ID returns the terrain identity.
func (t *Terrain) ID() uuid.UUID {
	return t.id
}

// Config returns the terrain constants.
func (t *Terrain) Config() config.TerrainConfig {
	return t.cfg
}

// Root returns the pinned root node.
func (t *Terrain) Root() node.NodeID {
	return t.root
}

// Atlas returns the atlas of an attachment.
func (t *Terrain) Atlas(name string) (*atlas.Atlas, bool) {
	for _, a := range t.atlases {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// Atlases returns the atlases in attachment order.
func (t *Terrain) Atlases() []*atlas.Atlas {
	return t.atlases
}

// Run runs the load workers of every atlas until ctx is done.
func (t *Terrain) Run(ctx context.Context) error {
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for _, a := range t.atlases {
			spawn("atlas-"+a.Name(), parallel.Fail, a.Run)
		}
		return nil
	})
}

// NewView creates a view for one viewer. Most callers go through Registry.View.
func (t *Terrain) NewView(viewer uuid.UUID, cfg config.ViewConfig) (*View, error) {
	tree, err := quadtree.New(t.cfg, cfg)
	if err != nil {
		return nil, err
	}
	return &View{
		key:     Key{Terrain: t.id, Viewer: viewer},
		terrain: t,
		tree:    tree,
	}, nil
}

// Frame runs one frame for a view: it traverses the quadtree at pos, requests
// nodes that became desired, releases nodes no view desires any more, and
// then applies finished loads in every atlas. Load failures of this frame are
// returned as *atlas.LoadError.
func (t *Terrain) Frame(v *View, pos math.Vec3) []error {
	if v.terrain != t {
		return []error{fmt.Errorf("view %s does not belong to terrain %s", v.key.Viewer, t.id)}
	}
	if err := v.update(pos); err != nil {
		return []error{err}
	}
	return t.Update()
}

// Update applies finished loads in every atlas without traversing and
// requests failed nodes again once their backoff expired.
func (t *Terrain) Update() []error {
	var errs []error
	for _, a := range t.atlases {
		failed := a.Update()
		for _, err := range failed {
			t.scheduleRetry(a.Name(), err)
		}
		errs = append(errs, failed...)
	}
	t.retryDue(time.Now())
	return errs
}

// Retrying returns how many failed loads wait to be requested again.
func (t *Terrain) Retrying() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, r := range t.retries {
		if r.waiting {
			n++
		}
	}
	return n
}

func (t *Terrain) scheduleRetry(attachment string, err error) {
	var loadErr *atlas.LoadError
	if !errors.As(err, &loadErr) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := loadErr.ID
	if t.refs[id] == 0 {
		return
	}
	key := retryKey{attachment: attachment, id: id}
	r, ok := t.retries[key]
	if !ok {
		r = &retry{}
		t.retries[key] = r
	}
	r.attempts++
	delay := t.backoff(r.attempts, err)
	r.due = time.Now().Add(delay)
	r.waiting = true

	fields := []zap.Field{
		zap.String("attachment", attachment),
		zap.Stringer("node", id),
		zap.Int("attempt", r.attempts),
		zap.Duration("retry_in", delay),
		zap.Error(err),
	}
	if id == t.root {
		// Views fall back to the root, so nothing can be drawn without it.
		t.log.Error("root node load failed", fields...)
		return
	}
	t.log.Debug("scheduling load retry", fields...)
}

func (t *Terrain) backoff(attempts int, err error) time.Duration {
	var missing *atlas.ArtifactMissingError
	if errors.As(err, &missing) {
		return t.retryMax
	}
	delay := t.retryBase
	for i := 1; i < attempts && delay < t.retryMax; i++ {
		delay *= 2
	}
	return min(delay, t.retryMax)
}

// retryDue requests due retries and forgets nodes that loaded or are no
// longer desired.
func (t *Terrain) retryDue(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, r := range t.retries {
		a, ok := t.Atlas(key.attachment)
		switch {
		case !ok || t.refs[key.id] == 0:
			delete(t.retries, key)
		case !r.waiting:
			if a.IsReady(key.id) {
				delete(t.retries, key)
			}
		case !now.Before(r.due):
			r.waiting = false
			status := a.Request(key.id)
			t.log.Debug("retrying node load",
				zap.String("attachment", key.attachment),
				zap.Stringer("node", key.id),
				zap.Int("attempt", r.attempts),
				zap.Stringer("status", status))
		}
	}
}

// Refs returns how many views desire a node, counting the root pin.
func (t *Terrain) Refs(id node.NodeID) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.refs[id]
}

// Stats returns the atlas stats keyed by attachment.
func (t *Terrain) Stats() map[string]atlas.Stats {
	stats := make(map[string]atlas.Stats, len(t.atlases))
	for _, a := range t.atlases {
		stats[a.Name()] = a.Stats()
	}
	return stats
}

func (t *Terrain) acquire(ids []node.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range ids {
		t.refs[id]++
		if t.refs[id] > 1 {
			continue
		}
		for _, a := range t.atlases {
			if status := a.Request(id); status == atlas.StatusDeferred {
				t.log.Debug("node deferred", zap.String("attachment", a.Name()), zap.Stringer("node", id))
			}
		}
	}
}

func (t *Terrain) release(ids []node.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range ids {
		n, ok := t.refs[id]
		if !ok {
			t.log.Warn("releasing node that is not desired", zap.Stringer("node", id))
			continue
		}
		if n > 1 {
			t.refs[id] = n - 1
			continue
		}
		delete(t.refs, id)
		for _, a := range t.atlases {
			a.Release(id)
		}
	}
}
