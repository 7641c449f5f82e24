package node

import (
	"bytes"
	"errors"
	"testing"
)

func testLayout() Layout {
	return AttachmentConfig{Name: "dtm", TextureSize: 16, MipLevelCount: 3, Format: FormatR16}.Layout()
}

func TestLayoutSizes(t *testing.T) {
	l := testLayout()

	if l.MipSize(0) != 16 || l.MipSize(1) != 8 || l.MipSize(2) != 4 {
		t.Errorf("unexpected mip sizes %d %d %d", l.MipSize(0), l.MipSize(1), l.MipSize(2))
	}
	if l.MipOffset(1) != 16*16*2 {
		t.Errorf("expected mip 1 offset 512, got %d", l.MipOffset(1))
	}
	want := (16*16 + 8*8 + 4*4) * 2
	if l.PayloadSize() != want {
		t.Errorf("expected payload %d, got %d", want, l.PayloadSize())
	}
	if l.ArtifactSize() != want+ChecksumSize {
		t.Errorf("expected artifact %d, got %d", want+ChecksumSize, l.ArtifactSize())
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	l := testLayout()
	base := NewImage(16, FormatR16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			base.SetR16(x, y, uint16(1+x+y))
		}
	}

	data, err := l.EncodeArtifact(base.MipChain(3))
	if err != nil {
		t.Fatalf("EncodeArtifact failed: %v", err)
	}
	if len(data) != l.ArtifactSize() {
		t.Fatalf("expected %d bytes, got %d", l.ArtifactSize(), len(data))
	}

	mips, err := l.DecodeArtifact(data)
	if err != nil {
		t.Fatalf("DecodeArtifact failed: %v", err)
	}
	if !bytes.Equal(mips[0].Pix, base.Pix) {
		t.Error("mip 0 differs after round trip")
	}
	if mips[2].Size != 4 {
		t.Errorf("expected mip 2 size 4, got %d", mips[2].Size)
	}
}

func TestDecodeArtifactCorrupt(t *testing.T) {
	l := testLayout()
	data, err := l.EncodeArtifact(NewImage(16, FormatR16).MipChain(3))
	if err != nil {
		t.Fatalf("EncodeArtifact failed: %v", err)
	}

	flipped := append([]byte(nil), data...)
	flipped[10] ^= 0xFF
	if _, err := l.DecodeArtifact(flipped); !errors.Is(err, ErrCorruptArtifact) {
		t.Errorf("expected ErrCorruptArtifact for bad checksum, got %v", err)
	}

	if _, err := l.DecodeArtifact(data[:len(data)-1]); !errors.Is(err, ErrCorruptArtifact) {
		t.Errorf("expected ErrCorruptArtifact for short data, got %v", err)
	}
}

func TestEncodeArtifactWrongMips(t *testing.T) {
	l := testLayout()
	if _, err := l.EncodeArtifact(NewImage(16, FormatR16).MipChain(2)); err == nil {
		t.Error("expected error for missing mip")
	}
	if _, err := l.EncodeArtifact(NewImage(16, FormatRGB8).MipChain(3)); err == nil {
		t.Error("expected error for wrong format")
	}
}

func TestDownsampleIgnoresNoData(t *testing.T) {
	img := NewImage(4, FormatR16)
	img.SetR16(0, 0, 100)
	img.SetR16(1, 0, 200)
	// (0,1) and (1,1) stay nodata

	out := img.Downsample()
	if out.Size != 2 {
		t.Fatalf("expected size 2, got %d", out.Size)
	}
	if got := out.R16(0, 0); got != 150 {
		t.Errorf("expected 150, got %d", got)
	}
	if !out.IsNoData(1, 1) {
		t.Error("expected all-nodata block to stay nodata")
	}
}

func TestSetRGBLiftsSentinel(t *testing.T) {
	img := NewImage(2, FormatRGB8)
	if !img.IsNoData(0, 0) {
		t.Error("new image must be nodata")
	}
	img.SetRGB(0, 0, 0, 0, 0)
	if img.IsNoData(0, 0) {
		t.Error("valid black must not read back as nodata")
	}
	r, g, b := img.RGB(0, 0)
	if r != 1 || g != 1 || b != 1 {
		t.Errorf("expected (1,1,1), got (%d,%d,%d)", r, g, b)
	}
}

func TestClampBorder(t *testing.T) {
	img := NewImage(6, FormatR16)
	for y := 1; y < 5; y++ {
		for x := 1; x < 5; x++ {
			img.SetR16(x, y, uint16(10*y+x))
		}
	}
	img.ClampBorder(1)

	if got := img.R16(0, 0); got != 11 {
		t.Errorf("corner: expected 11, got %d", got)
	}
	if got := img.R16(5, 2); got != 24 {
		t.Errorf("right edge: expected 24, got %d", got)
	}
	if got := img.R16(3, 5); got != 43 {
		t.Errorf("bottom edge: expected 43, got %d", got)
	}
}

func TestElevationEncoding(t *testing.T) {
	if EncodeElevation(0, 100) == NoDataR16 {
		t.Error("minimum elevation must not encode as nodata")
	}
	if EncodeElevation(1000, 100) != 65535 {
		t.Error("expected clamp to 65535")
	}

	h, ok := DecodeElevation(EncodeElevation(42.5, 100), 100)
	if !ok {
		t.Fatal("expected valid elevation")
	}
	if h < 42.49 || h > 42.51 {
		t.Errorf("expected ~42.5, got %f", h)
	}
	if _, ok := DecodeElevation(NoDataR16, 100); ok {
		t.Error("expected nodata to decode as invalid")
	}
}
