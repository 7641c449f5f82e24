package atlas

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-terrain/internal/store"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// Loader reads the mip chain of one node. It is called from worker goroutines.
type Loader interface {
	Load(ctx context.Context, id node.NodeID) ([]*node.Image, error)
}

// StoreLoader loads artifacts of one attachment from a node store.
type StoreLoader struct {
	store  store.Store
	config node.AttachmentConfig
	layout node.Layout
}

// NewStoreLoader creates a loader for one attachment.
func NewStoreLoader(st store.Store, cfg node.AttachmentConfig) *StoreLoader {
	return &StoreLoader{store: st, config: cfg, layout: cfg.Layout()}
}

// Load reads and verifies an artifact. A node that was never preprocessed
// yields *ArtifactMissingError.
func (l *StoreLoader) Load(ctx context.Context, id node.NodeID) ([]*node.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	data, err := l.store.Get(l.config.Name, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &ArtifactMissingError{Attachment: l.config.Name, ID: id}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading node %s", id)
	}

	mips, err := l.layout.DecodeArtifact(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding node %s", id)
	}
	return mips, nil
}
