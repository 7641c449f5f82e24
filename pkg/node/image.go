package node

import "encoding/binary"

// NoDataR16 marks an elevation pixel without source data.
// Valid elevations are always encoded as 1..65535.
const NoDataR16 uint16 = 0

// NoDataRGB marks an imagery pixel without source data.
// Valid black is stored as (1,1,1) so it never collides with the sentinel.
var NoDataRGB = [3]uint8{0, 0, 0}

// Image is one square pixel block in an attachment format.
type Image struct {
	Size   int
	Format Format
	Pix    []byte
}

// NewImage allocates a size x size image filled with nodata.
func NewImage(size int, format Format) *Image {
	return &Image{
		Size:   size,
		Format: format,
		Pix:    make([]byte, size*size*format.BytesPerPixel()),
	}
}

// Offset returns the index of pixel (x, y) in Pix.
func (img *Image) Offset(x, y int) int {
	return (y*img.Size + x) * img.Format.BytesPerPixel()
}

// IsNoData reports whether pixel (x, y) holds the nodata sentinel.
func (img *Image) IsNoData(x, y int) bool {
	i := img.Offset(x, y)
	switch img.Format {
	case FormatR16:
		return binary.LittleEndian.Uint16(img.Pix[i:]) == NoDataR16
	case FormatRGB8:
		return img.Pix[i] == NoDataRGB[0] && img.Pix[i+1] == NoDataRGB[1] && img.Pix[i+2] == NoDataRGB[2]
	}
	return true
}

// R16 returns the raw value of an elevation pixel.
func (img *Image) R16(x, y int) uint16 {
	return binary.LittleEndian.Uint16(img.Pix[img.Offset(x, y):])
}

// SetR16 stores a raw elevation value.
func (img *Image) SetR16(x, y int, v uint16) {
	binary.LittleEndian.PutUint16(img.Pix[img.Offset(x, y):], v)
}

// RGB returns the color of an imagery pixel.
func (img *Image) RGB(x, y int) (r, g, b uint8) {
	i := img.Offset(x, y)
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
}

// SetRGB stores an imagery color. Colors equal to the sentinel are lifted to (1,1,1).
func (img *Image) SetRGB(x, y int, r, g, b uint8) {
	r, g, b = LiftRGB(r, g, b)
	i := img.Offset(x, y)
	img.Pix[i], img.Pix[i+1], img.Pix[i+2] = r, g, b
}

// CopyPixel copies pixel (sx, sy) of src into (x, y). Formats must match.
func (img *Image) CopyPixel(x, y int, src *Image, sx, sy int) {
	bpp := img.Format.BytesPerPixel()
	copy(img.Pix[img.Offset(x, y):img.Offset(x, y)+bpp], src.Pix[src.Offset(sx, sy):])
}

// LiftRGB moves a valid color off the nodata sentinel.
func LiftRGB(r, g, b uint8) (uint8, uint8, uint8) {
	if r == NoDataRGB[0] && g == NoDataRGB[1] && b == NoDataRGB[2] {
		return 1, 1, 1
	}
	return r, g, b
}

// Downsample returns a half size image using a 2x2 box filter.
// Nodata inputs are ignored; a block of only nodata stays nodata.
func (img *Image) Downsample() *Image {
	out := NewImage(img.Size/2, img.Format)
	for y := 0; y < out.Size; y++ {
		for x := 0; x < out.Size; x++ {
			img.BoxInto(out, x, y, 2*x, 2*y)
		}
	}
	return out
}

// BoxInto writes the nodata-aware average of the 2x2 block at (sx, sy)
// into pixel (x, y) of out. An all-nodata block leaves out untouched.
func (img *Image) BoxInto(out *Image, x, y, sx, sy int) {
	var sum [3]uint32
	n := uint32(0)
	for dy := 0; dy < 2; dy++ {
		for dx := 0; dx < 2; dx++ {
			px, py := sx+dx, sy+dy
			if img.IsNoData(px, py) {
				continue
			}
			n++
			switch img.Format {
			case FormatR16:
				sum[0] += uint32(img.R16(px, py))
			case FormatRGB8:
				r, g, b := img.RGB(px, py)
				sum[0] += uint32(r)
				sum[1] += uint32(g)
				sum[2] += uint32(b)
			}
		}
	}
	if n == 0 {
		return
	}

	switch img.Format {
	case FormatR16:
		out.SetR16(x, y, uint16((sum[0]+n/2)/n))
	case FormatRGB8:
		out.SetRGB(x, y, uint8((sum[0]+n/2)/n), uint8((sum[1]+n/2)/n), uint8((sum[2]+n/2)/n))
	}
}

// MipChain returns img followed by count-1 successively downsampled images.
func (img *Image) MipChain(count int) []*Image {
	mips := make([]*Image, 0, count)
	mips = append(mips, img)
	for len(mips) < count {
		mips = append(mips, mips[len(mips)-1].Downsample())
	}
	return mips
}

// ClampBorder overwrites the outer border pixels with the nearest pixel of
// the inner (Size-2*border) square, so the image does not depend on neighbours.
func (img *Image) ClampBorder(border int) {
	last := img.Size - border - 1
	for y := 0; y < img.Size; y++ {
		sy := clampInt(y, border, last)
		for x := 0; x < img.Size; x++ {
			if x >= border && x <= last && y >= border && y <= last {
				continue
			}
			img.CopyPixel(x, y, img, clampInt(x, border, last), sy)
		}
	}
}

// HasData reports whether any pixel holds valid data.
func (img *Image) HasData() bool {
	for y := 0; y < img.Size; y++ {
		for x := 0; x < img.Size; x++ {
			if !img.IsNoData(x, y) {
				return true
			}
		}
	}
	return false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
