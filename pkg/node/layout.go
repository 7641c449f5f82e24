package node

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash"
)

// ChecksumSize is the length of the xxhash64 trailer of every artifact.
const ChecksumSize = 8

// ErrCorruptArtifact is returned when an artifact fails size or checksum checks.
var ErrCorruptArtifact = errors.New("corrupt node artifact")

// Layout describes how the mip chain of one node is laid out in an artifact.
// It depends only on texture size, mip count and format.
type Layout struct {
	TextureSize   int
	MipLevelCount int
	Format        Format
}

// MipSize returns the side length of mip m.
func (l Layout) MipSize(m int) int {
	return l.TextureSize >> m
}

// MipBytes returns the byte length of mip m.
func (l Layout) MipBytes(m int) int {
	size := l.MipSize(m)
	return size * size * l.Format.BytesPerPixel()
}

// MipOffset returns the byte offset of mip m within the artifact.
func (l Layout) MipOffset(m int) int {
	offset := 0
	for i := 0; i < m; i++ {
		offset += l.MipBytes(i)
	}
	return offset
}

// PayloadSize returns the byte length of all mips.
func (l Layout) PayloadSize() int {
	return l.MipOffset(l.MipLevelCount)
}

// ArtifactSize returns the byte length of an encoded artifact.
func (l Layout) ArtifactSize() int {
	return l.PayloadSize() + ChecksumSize
}

// EncodeArtifact serializes a mip chain and appends its checksum.
func (l Layout) EncodeArtifact(mips []*Image) ([]byte, error) {
	if len(mips) != l.MipLevelCount {
		return nil, fmt.Errorf("expected %d mips, got %d", l.MipLevelCount, len(mips))
	}

	out := make([]byte, 0, l.ArtifactSize())
	for m, img := range mips {
		if img.Size != l.MipSize(m) || img.Format != l.Format {
			return nil, fmt.Errorf("mip %d: expected %dx%d %s, got %dx%d %s",
				m, l.MipSize(m), l.MipSize(m), l.Format, img.Size, img.Size, img.Format)
		}
		out = append(out, img.Pix...)
	}
	return binary.LittleEndian.AppendUint64(out, xxhash.Sum64(out)), nil
}

// DecodeArtifact splits an artifact into its mips after verifying it.
// The returned images share memory with data.
func (l Layout) DecodeArtifact(data []byte) ([]*Image, error) {
	if len(data) != l.ArtifactSize() {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrCorruptArtifact, l.ArtifactSize(), len(data))
	}

	payload := data[:l.PayloadSize()]
	want := binary.LittleEndian.Uint64(data[l.PayloadSize():])
	if got := xxhash.Sum64(payload); got != want {
		return nil, fmt.Errorf("%w: checksum %016x, expected %016x", ErrCorruptArtifact, got, want)
	}

	mips := make([]*Image, l.MipLevelCount)
	for m := range mips {
		offset := l.MipOffset(m)
		mips[m] = &Image{
			Size:   l.MipSize(m),
			Format: l.Format,
			Pix:    payload[offset : offset+l.MipBytes(m) : offset+l.MipBytes(m)],
		}
	}
	return mips, nil
}
