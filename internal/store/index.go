package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// Index format errors.
var (
	ErrInvalidIndexMagic = errors.New("invalid node index magic")
	ErrTruncatedIndex    = errors.New("truncated node index")
)

var indexMagic = [4]byte{'T', 'N', 'I', 'X'}

const (
	indexHeaderSize = 8 // magic + count
	indexEntrySize  = 9 // lod u8 + x u32 + y u32
)

// EncodeIndex serializes a node list sorted by (lod, y, x).
// The input slice is not modified.
func EncodeIndex(ids []node.NodeID) []byte {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, node.Compare)

	buf := make([]byte, indexHeaderSize, indexHeaderSize+len(sorted)*indexEntrySize)
	copy(buf, indexMagic[:])
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(sorted)))
	for _, id := range sorted {
		buf = append(buf, id.LOD)
		buf = binary.LittleEndian.AppendUint32(buf, id.X)
		buf = binary.LittleEndian.AppendUint32(buf, id.Y)
	}
	return buf
}

// DecodeIndex parses data written by EncodeIndex.
func DecodeIndex(data []byte) ([]node.NodeID, error) {
	if len(data) < indexHeaderSize {
		return nil, ErrTruncatedIndex
	}
	if [4]byte(data[:4]) != indexMagic {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIndexMagic, data[:4])
	}

	count := int(binary.LittleEndian.Uint32(data[4:]))
	if len(data) != indexHeaderSize+count*indexEntrySize {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrTruncatedIndex, count, len(data))
	}

	ids := make([]node.NodeID, count)
	for i := range ids {
		e := data[indexHeaderSize+i*indexEntrySize:]
		ids[i] = node.NodeID{
			LOD: e[0],
			X:   binary.LittleEndian.Uint32(e[1:]),
			Y:   binary.LittleEndian.Uint32(e[5:]),
		}
	}
	return ids, nil
}
