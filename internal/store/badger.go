package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// BadgerStore keeps all attachments in one badger database.
// Node keys are "<attachment>/<lod>/<x>/<y>", index keys "<attachment>/index".
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens or creates a database at path.
func OpenBadger(path string, log *zap.Logger) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(path), log)
}

// OpenBadgerInMemory opens a database that lives only in memory.
func OpenBadgerInMemory(log *zap.Logger) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true), log)
}

func openBadger(opts badger.Options, log *zap.Logger) (*BadgerStore, error) {
	// Artifacts carry their own checksum and are mostly noise to a compressor.
	opts.Compression = options.None
	opts.CompactL0OnClose = true
	opts.Logger = &badgerLogger{log: logger.OrNop(log).Named("badger").Sugar()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func nodeKey(attachment string, id node.NodeID) []byte {
	return fmt.Appendf(nil, "%s/%d/%d/%d", attachment, id.LOD, id.X, id.Y)
}

func indexKey(attachment string) []byte {
	return []byte(attachment + "/index")
}

func (s *BadgerStore) Put(attachment string, id node.NodeID, data []byte) error {
	return s.set(nodeKey(attachment, id), data)
}

func (s *BadgerStore) Get(attachment string, id node.NodeID) ([]byte, error) {
	data, err := s.get(nodeKey(attachment, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(attachment, id)
	}
	return data, err
}

func (s *BadgerStore) Has(attachment string, id node.NodeID) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(nodeKey(attachment, id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *BadgerStore) Delete(attachment string, id node.NodeID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(nodeKey(attachment, id))
	})
}

func (s *BadgerStore) Nodes(attachment string) ([]node.NodeID, error) {
	prefix := []byte(attachment + "/")
	var ids []node.NodeID
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rest := string(it.Item().Key()[len(prefix):])
			// "<lod>/<x>/<y>"; the index key has no slashes left.
			id, err := node.Parse(rest)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

func (s *BadgerStore) PutIndex(attachment string, ids []node.NodeID) error {
	return s.set(indexKey(attachment), EncodeIndex(ids))
}

func (s *BadgerStore) Index(attachment string) ([]node.NodeID, error) {
	data, err := s.get(indexKey(attachment))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(attachment, indexName{})
	}
	if err != nil {
		return nil, err
	}
	return DecodeIndex(data)
}

func (s *BadgerStore) Attachments() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if name, ok := strings.CutSuffix(key, "/index"); ok {
				names = append(names, name)
			}
		}
		return nil
	})
	return names, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *BadgerStore) get(key []byte) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

// badgerLogger routes badger's printf logging into zap.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Errorf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Warnf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.Debugf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.Debugf(strings.TrimSpace(format), args...)
}
