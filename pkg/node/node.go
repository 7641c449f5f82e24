// Package node defines quadtree node addressing and the fixed layout of
// preprocessed node artifacts.
package node

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxLODCount bounds the quadtree depth so node coordinates fit in uint32.
const MaxLODCount = 24

// ErrInvalidNodeID is returned when a node string cannot be parsed.
var ErrInvalidNodeID = errors.New("invalid node id")

// NodeID addresses one quadtree node. LOD 0 is the finest level.
type NodeID struct {
	LOD uint8
	X   uint32
	Y   uint32
}

// String returns the node as "LOD/X/Y".
func (n NodeID) String() string {
	return fmt.Sprintf("%d/%d/%d", n.LOD, n.X, n.Y)
}

// Parent returns the node one level coarser that contains n.
func (n NodeID) Parent() NodeID {
	return NodeID{LOD: n.LOD + 1, X: n.X >> 1, Y: n.Y >> 1}
}

// Children returns the four nodes one level finer that tile n.
// Order: (2x,2y), (2x+1,2y), (2x,2y+1), (2x+1,2y+1).
// Children of a level 0 node are meaningless and callers must not ask for them.
func (n NodeID) Children() [4]NodeID {
	lod := n.LOD - 1
	x, y := n.X<<1, n.Y<<1
	return [4]NodeID{
		{LOD: lod, X: x, Y: y},
		{LOD: lod, X: x + 1, Y: y},
		{LOD: lod, X: x, Y: y + 1},
		{LOD: lod, X: x + 1, Y: y + 1},
	}
}

// Less orders nodes by (LOD, Y, X).
func (n NodeID) Less(other NodeID) bool {
	if n.LOD != other.LOD {
		return n.LOD < other.LOD
	}
	if n.Y != other.Y {
		return n.Y < other.Y
	}
	return n.X < other.X
}

// Compare orders nodes like Less, for use with slices.SortFunc.
func Compare(a, b NodeID) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

// Root returns the single node at the coarsest level of a quadtree with lodCount levels.
func Root(lodCount int) NodeID {
	return NodeID{LOD: uint8(lodCount - 1)}
}

// NodesPerSide returns how many nodes span one axis at the given level.
func NodesPerSide(lodCount int, lod uint8) uint32 {
	return 1 << uint32(lodCount-1-int(lod))
}

// Parse parses a node written as "LOD/X/Y".
func Parse(s string) (NodeID, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return NodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
	}
	lod, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || lod >= MaxLODCount {
		return NodeID{}, fmt.Errorf("%w: lod in %q", ErrInvalidNodeID, s)
	}
	x, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return NodeID{}, fmt.Errorf("%w: x in %q", ErrInvalidNodeID, s)
	}
	y, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return NodeID{}, fmt.Errorf("%w: y in %q", ErrInvalidNodeID, s)
	}
	return NodeID{LOD: uint8(lod), X: uint32(x), Y: uint32(y)}, nil
}
