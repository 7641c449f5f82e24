// Package atlas implements the node atlas: a fixed number of slots holding
// loaded node resources for one terrain attachment.
//
// Request and Release only mark intent and queue work. Loads run on a bounded
// worker pool started by Run, and their results are applied to the slot table
// in Update, the single synchronization point of a frame. Readers therefore
// never observe a slot that is halfway through a load.
package atlas

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// State is the lifecycle state of a slot.
type State uint8

const (
	Unloaded  State = iota // free, or the node is not in the atlas
	Loading                // load in flight
	Loaded                 // resource ready and desired
	Evictable              // resource ready, no longer desired
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Evictable:
		return "evictable"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Status is the outcome of a Request.
type Status uint8

const (
	StatusReady    Status = iota // node is loaded
	StatusLoading                // load in flight
	StatusDeferred               // every slot is desired; queued until one frees
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusLoading:
		return "loading"
	case StatusDeferred:
		return "deferred"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Slot indexes the atlas resource pool.
type Slot int

// Resource is a read-only view of a loaded node. It is valid for the frame
// in which it was obtained and must not be kept past the next Update.
type Resource struct {
	Slot Slot
	ID   node.NodeID
	Mips []*node.Image
}

// Config sizes an atlas.
type Config struct {
	Attachment node.AttachmentConfig
	Capacity   int
	Workers    int
}

// Stats is a snapshot of the slot table and counters.
type Stats struct {
	Frame     uint64
	Capacity  int
	Loading   int
	Loaded    int
	Evictable int
	Pending   int
	Loads     uint64
	Failures  uint64
	Evictions uint64
}

type slot struct {
	id         node.NodeID
	state      State
	desired    bool
	lastUsed   uint64
	generation uint64
	mips       []*node.Image
}

type job struct {
	slot       int
	id         node.NodeID
	generation uint64
}

type completion struct {
	job
	mips []*node.Image
	err  error
}

// Atlas maps nodes to slots. Its methods are safe for concurrent use.
type Atlas struct {
	name    string
	workers int
	loader  Loader
	log     *zap.Logger

	jobs chan job
	done chan completion

	mu         sync.Mutex
	slots      []slot
	index      map[node.NodeID]int
	pending    []node.NodeID
	pendingSet map[node.NodeID]struct{}
	frame      uint64
	loads      uint64
	failures   uint64
	evictions  uint64
}

// Option configures an Atlas.
type Option func(*Atlas)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(a *Atlas) {
		a.log = logger.OrNop(log)
	}
}

// New creates an atlas. Loads start once Run is called.
func New(cfg Config, loader Loader, opts ...Option) (*Atlas, error) {
	if cfg.Capacity < 1 {
		return nil, errors.Errorf("atlas %s: capacity must be at least 1, got %d", cfg.Attachment.Name, cfg.Capacity)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	a := &Atlas{
		name:       cfg.Attachment.Name,
		workers:    cfg.Workers,
		loader:     loader,
		log:        zap.NewNop(),
		jobs:       make(chan job, cfg.Capacity),
		done:       make(chan completion, cfg.Capacity),
		slots:      make([]slot, cfg.Capacity),
		index:      make(map[node.NodeID]int, cfg.Capacity),
		pendingSet: make(map[node.NodeID]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the attachment served by the atlas.
func (a *Atlas) Name() string {
	return a.name
}

// Capacity returns the number of slots.
func (a *Atlas) Capacity() int {
	return len(a.slots)
}

// Run runs the load workers until ctx is done.
func (a *Atlas) Run(ctx context.Context) error {
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i := range a.workers {
			spawn(fmt.Sprintf("worker-%02d", i), parallel.Fail, func(ctx context.Context) error {
				for {
					var j job
					select {
					case <-ctx.Done():
						return errors.WithStack(ctx.Err())
					case j = <-a.jobs:
					}

					mips, err := a.loader.Load(ctx, j.id)
					select {
					case <-ctx.Done():
						return errors.WithStack(ctx.Err())
					case a.done <- completion{job: j, mips: mips, err: err}:
					}
				}
			})
		}
		return nil
	})
}

// Request asks for a node to be resident. Repeated requests are coalesced:
// a node has at most one load in flight and at most one slot.
func (a *Atlas) Request(id node.NodeID) Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	if i, ok := a.index[id]; ok {
		s := &a.slots[i]
		s.desired = true
		s.lastUsed = a.frame
		switch s.state {
		case Loading:
			return StatusLoading
		case Evictable:
			s.state = Loaded
		}
		return StatusReady
	}
	if _, ok := a.pendingSet[id]; ok {
		return StatusDeferred
	}

	i, ok := a.allocate()
	if !ok {
		a.pending = append(a.pending, id)
		a.pendingSet[id] = struct{}{}
		instrumentPending(a.name, 1)
		a.log.Debug("request deferred", zap.Stringer("node", id), zap.Int("pending", len(a.pending)))
		return StatusDeferred
	}
	a.start(i, id)
	return StatusLoading
}

// Release marks a node as no longer desired. Its slot stays resident until
// another request needs it. A release during loading lets the load finish
// and leaves the result evictable.
func (a *Atlas) Release(id node.NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.pendingSet[id]; ok {
		a.dropPending(id)
		return
	}

	i, ok := a.index[id]
	if !ok {
		return
	}
	s := &a.slots[i]
	s.desired = false
	s.lastUsed = a.frame
	if s.state == Loaded {
		s.state = Evictable
	}
}

// Update applies finished loads, advances the frame and services deferred
// requests. It returns the load failures of this frame as *LoadError.
func (a *Atlas) Update() []error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.frame++

	var errs []error
drain:
	for {
		select {
		case c := <-a.done:
			if err := a.complete(c); err != nil {
				errs = append(errs, err)
			}
		default:
			break drain
		}
	}

	for len(a.pending) > 0 {
		i, ok := a.allocate()
		if !ok {
			break
		}
		id := a.pending[0]
		a.dropPending(id)
		a.start(i, id)
	}
	return errs
}

func (a *Atlas) complete(c completion) error {
	s := &a.slots[c.slot]
	if s.generation != c.generation || s.state != Loading || s.id != c.id {
		a.log.Warn("dropping stale load", zap.Stringer("node", c.id), zap.Int("slot", c.slot))
		return nil
	}

	if c.err != nil {
		delete(a.index, s.id)
		*s = slot{generation: s.generation}
		a.failures++
		instrumentOccupied(a.name, -1)

		var missing *ArtifactMissingError
		if errors.As(c.err, &missing) {
			instrumentLoad(a.name, resultMissing)
		} else {
			instrumentLoad(a.name, resultFailed)
		}
		a.log.Warn("node load failed", zap.Stringer("node", c.id), zap.Error(c.err))
		return &LoadError{Attachment: a.name, ID: c.id, Err: c.err}
	}

	s.mips = c.mips
	if s.desired {
		s.state = Loaded
	} else {
		s.state = Evictable
	}
	a.loads++
	instrumentLoad(a.name, resultLoaded)
	return nil
}

// allocate returns a free slot, evicting the least recently used evictable
// slot when none is free. Ties go to the lowest slot index.
func (a *Atlas) allocate() (int, bool) {
	victim := -1
	for i := range a.slots {
		s := &a.slots[i]
		switch s.state {
		case Unloaded:
			return i, true
		case Evictable:
			if victim < 0 || s.lastUsed < a.slots[victim].lastUsed {
				victim = i
			}
		}
	}
	if victim < 0 {
		return 0, false
	}

	s := &a.slots[victim]
	a.log.Debug("evicting node", zap.Stringer("node", s.id), zap.Int("slot", victim))
	delete(a.index, s.id)
	*s = slot{generation: s.generation}
	a.evictions++
	instrumentEviction(a.name)
	instrumentOccupied(a.name, -1)
	return victim, true
}

// start assigns a free slot to id and queues its load.
// The job channel holds one entry per slot, so the send never blocks.
func (a *Atlas) start(i int, id node.NodeID) {
	s := &a.slots[i]
	s.id = id
	s.state = Loading
	s.desired = true
	s.lastUsed = a.frame
	s.generation++
	a.index[id] = i
	instrumentOccupied(a.name, 1)

	a.jobs <- job{slot: i, id: id, generation: s.generation}
}

func (a *Atlas) dropPending(id node.NodeID) {
	delete(a.pendingSet, id)
	a.pending = slices.DeleteFunc(a.pending, func(p node.NodeID) bool { return p == id })
	instrumentPending(a.name, -1)
}

// IsReady reports whether the node's resource is resident. This holds from
// the Update that applied its load until the slot is evicted.
func (a *Atlas) IsReady(id node.NodeID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.ready(id)
	return ok
}

// SlotOf returns the slot of a resident node. The value is stale once the node is evicted.
func (a *Atlas) SlotOf(id node.NodeID) (Slot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i, ok := a.ready(id)
	return Slot(i), ok
}

// Resource returns the mip chain of a resident node.
func (a *Atlas) Resource(id node.NodeID) (Resource, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i, ok := a.ready(id)
	if !ok {
		return Resource{}, false
	}
	return Resource{Slot: Slot(i), ID: id, Mips: a.slots[i].mips}, true
}

// Fallback returns the resource of id or of its nearest resident ancestor.
func (a *Atlas) Fallback(id node.NodeID) (Resource, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for cur := id; cur.LOD < node.MaxLODCount; cur = cur.Parent() {
		if i, ok := a.ready(cur); ok {
			return Resource{Slot: Slot(i), ID: cur, Mips: a.slots[i].mips}, true
		}
	}
	return Resource{}, false
}

func (a *Atlas) ready(id node.NodeID) (int, bool) {
	i, ok := a.index[id]
	if !ok {
		return 0, false
	}
	switch a.slots[i].state {
	case Loaded, Evictable:
		return i, true
	}
	return 0, false
}

// State returns the lifecycle state of a node. Deferred and unknown nodes are Unloaded.
func (a *Atlas) State(id node.NodeID) State {
	a.mu.Lock()
	defer a.mu.Unlock()

	if i, ok := a.index[id]; ok {
		return a.slots[i].state
	}
	return Unloaded
}

// Pending returns how many requests wait for a slot.
func (a *Atlas) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.pending)
}

// Stats returns a snapshot of the atlas.
func (a *Atlas) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Stats{
		Frame:     a.frame,
		Capacity:  len(a.slots),
		Pending:   len(a.pending),
		Loads:     a.loads,
		Failures:  a.failures,
		Evictions: a.evictions,
	}
	for _, s := range a.slots {
		switch s.state {
		case Loading:
			st.Loading++
		case Loaded:
			st.Loaded++
		case Evictable:
			st.Evictable++
		}
	}
	return st
}
