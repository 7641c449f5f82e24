package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Faultbox/midgard-terrain/pkg/node"
)

const indexFile = "index.bin"

// FileStore keeps one directory per attachment:
// <root>/<attachment>/<lod>/<x>_<y>.node and <root>/<attachment>/index.bin.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the store directory.
func (s *FileStore) Root() string {
	return s.root
}

// NodePath returns the artifact path of a node.
func (s *FileStore) NodePath(attachment string, id node.NodeID) string {
	return filepath.Join(s.root, attachment, strconv.Itoa(int(id.LOD)),
		fmt.Sprintf("%d_%d.node", id.X, id.Y))
}

func (s *FileStore) Put(attachment string, id node.NodeID, data []byte) error {
	return writeAtomic(s.NodePath(attachment, id), data)
}

func (s *FileStore) Get(attachment string, id node.NodeID) ([]byte, error) {
	data, err := os.ReadFile(s.NodePath(attachment, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(attachment, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s %s: %w", attachment, id, err)
	}
	return data, nil
}

func (s *FileStore) Has(attachment string, id node.NodeID) (bool, error) {
	_, err := os.Stat(s.NodePath(attachment, id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *FileStore) Delete(attachment string, id node.NodeID) error {
	err := os.Remove(s.NodePath(attachment, id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting %s %s: %w", attachment, id, err)
	}
	return nil
}

func (s *FileStore) Nodes(attachment string) ([]node.NodeID, error) {
	levels, err := os.ReadDir(filepath.Join(s.root, attachment))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", attachment, err)
	}

	var ids []node.NodeID
	for _, level := range levels {
		lod, err := strconv.ParseUint(level.Name(), 10, 8)
		if !level.IsDir() || err != nil {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.root, attachment, level.Name()))
		if err != nil {
			return nil, fmt.Errorf("listing %s lod %d: %w", attachment, lod, err)
		}
		for _, e := range entries {
			xy, ok := strings.CutSuffix(e.Name(), ".node")
			if e.IsDir() || !ok {
				continue
			}
			// Names are "<x>_<y>"; anything else (temp files) is skipped.
			id, err := node.Parse(fmt.Sprintf("%d/%s", lod, strings.Replace(xy, "_", "/", 1)))
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *FileStore) PutIndex(attachment string, ids []node.NodeID) error {
	return writeAtomic(filepath.Join(s.root, attachment, indexFile), EncodeIndex(ids))
}

func (s *FileStore) Index(attachment string) ([]node.NodeID, error) {
	data, err := os.ReadFile(filepath.Join(s.root, attachment, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(attachment, indexName{})
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s index: %w", attachment, err)
	}
	return DecodeIndex(data)
}

func (s *FileStore) Attachments() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing store root: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), indexFile)); err == nil {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Close is a no-op; files are closed after every call.
func (s *FileStore) Close() error {
	return nil
}

// writeAtomic writes data next to path and renames it into place,
// so readers see either the old or the new content.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
