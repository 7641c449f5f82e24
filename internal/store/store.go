// Package store persists preprocessed node artifacts and node indexes.
//
// A store holds one keyspace per attachment. Entries are keyed by NodeID and
// hold the encoded artifact; their layout follows from the attachment config.
package store

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// Store errors.
var (
	ErrNotFound    = errors.New("not found in node store")
	ErrUnknownKind = errors.New("unknown store kind")
)

// Store is an on-disk node store.
// Implementations are safe for concurrent use.
type Store interface {
	// Put writes the artifact of a node, replacing any previous one.
	Put(attachment string, id node.NodeID, data []byte) error
	// Get returns the artifact of a node, or an error wrapping ErrNotFound.
	Get(attachment string, id node.NodeID) ([]byte, error)
	// Has reports whether a node artifact exists.
	Has(attachment string, id node.NodeID) (bool, error)
	// Delete removes the artifact of a node. Deleting a missing node is not an error.
	Delete(attachment string, id node.NodeID) error
	// Nodes lists every node artifact stored for an attachment, in no particular order.
	Nodes(attachment string) ([]node.NodeID, error)
	// PutIndex writes the ordered list of stored nodes of an attachment.
	PutIndex(attachment string, ids []node.NodeID) error
	// Index returns the node list written by PutIndex.
	Index(attachment string) ([]node.NodeID, error)
	// Attachments lists attachments that have an index.
	Attachments() ([]string, error)
	// Close releases the store.
	Close() error
}

// Store kinds.
const (
	KindFile   = "file"
	KindBadger = "badger"
	KindMemory = "memory"
)

// Open opens a store of the given kind rooted at path.
// A memory store ignores path and is lost on Close.
func Open(kind, path string, log *zap.Logger) (Store, error) {
	switch kind {
	case KindFile:
		return NewFileStore(path)
	case KindBadger:
		return OpenBadger(path, log)
	case KindMemory:
		return OpenBadgerInMemory(log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func notFound(attachment string, what fmt.Stringer) error {
	return fmt.Errorf("%s %s: %w", attachment, what, ErrNotFound)
}

type indexName struct{}

func (indexName) String() string { return "index" }
