package formats

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/tiff"

	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// Raster is a decoded source tile in attachment pixel layout.
// Pixels without data hold the format's nodata sentinel.
type Raster struct {
	Width  int
	Height int
	Format node.Format
	Pix    []byte
}

// NewRaster allocates a raster filled with nodata.
func NewRaster(width, height int, format node.Format) *Raster {
	return &Raster{
		Width:  width,
		Height: height,
		Format: format,
		Pix:    make([]byte, width*height*format.BytesPerPixel()),
	}
}

// Offset returns the index of pixel (x, y) in Pix.
func (r *Raster) Offset(x, y int) int {
	return (y*r.Width + x) * r.Format.BytesPerPixel()
}

// CopyTo copies pixel (x, y) into pixel (dx, dy) of img.
func (r *Raster) CopyTo(img *node.Image, dx, dy, x, y int) {
	bpp := r.Format.BytesPerPixel()
	i := r.Offset(x, y)
	copy(img.Pix[img.Offset(dx, dy):], r.Pix[i:i+bpp])
}

// DecodeOptions controls how elevation samples are quantized.
type DecodeOptions struct {
	// MaxHeight is the terrain height mapped to the top of the R16 range.
	MaxHeight float64
	// Scale and Offset convert raw image samples to elevation for TIFF and PNG tiles.
	Scale  float64
	Offset float64
}

// Decode decodes tile bytes into a raster of the target format.
func Decode(data []byte, format FileFormat, target node.Format, opts DecodeOptions) (*Raster, error) {
	if !format.Supports(target) {
		return nil, fmt.Errorf("%w: %s to %s", ErrFormatMismatch, format, target)
	}

	switch format {
	case FileFormatDTM:
		dtm, err := ParseDTM(data)
		if err != nil {
			return nil, err
		}
		return dtm.Raster(opts.MaxHeight), nil
	case FileFormatTIFF:
		img, err := tiff.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding tiff: %w", err)
		}
		return FromImage(img, target, opts), nil
	case FileFormatPNG:
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding png: %w", err)
		}
		return FromImage(img, target, opts), nil
	case FileFormatTGA:
		img, err := DecodeTGA(data)
		if err != nil {
			return nil, err
		}
		return FromImage(img, target, opts), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFileFormat, uint8(format))
	}
}

// DecodeFile reads and decodes one tile.
// A missing or unreadable file yields ErrTileMissing; a malformed one yields *SourceReadError.
func DecodeFile(path string, format FileFormat, target node.Format, opts DecodeOptions) (*Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTileMissing, err)
	}

	raster, err := Decode(data, format, target, opts)
	if err != nil {
		return nil, &SourceReadError{Path: path, Err: err}
	}
	return raster, nil
}

// FromImage converts a decoded image into a raster.
// For R16 targets, gray value 0 is nodata and other values are scaled to elevation.
// For RGB8 targets, fully transparent pixels are nodata.
func FromImage(img image.Image, target node.Format, opts DecodeOptions) *Raster {
	bounds := img.Bounds()
	raster := NewRaster(bounds.Dx(), bounds.Dy(), target)
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}

	for y := 0; y < raster.Height; y++ {
		for x := 0; x < raster.Width; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			i := raster.Offset(x, y)

			switch target {
			case node.FormatR16:
				g := color.Gray16Model.Convert(c).(color.Gray16).Y
				if g == 0 {
					continue
				}
				v := node.EncodeElevation(float64(g)*scale+opts.Offset, opts.MaxHeight)
				raster.Pix[i] = byte(v)
				raster.Pix[i+1] = byte(v >> 8)
			case node.FormatRGB8:
				r16, g16, b16, a16 := c.RGBA()
				if a16 == 0 {
					continue
				}
				r, g, b := node.LiftRGB(uint8(r16>>8), uint8(g16>>8), uint8(b16>>8))
				raster.Pix[i], raster.Pix[i+1], raster.Pix[i+2] = r, g, b
			}
		}
	}
	return raster
}
