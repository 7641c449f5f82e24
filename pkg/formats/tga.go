package formats

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// TGA image type constants.
const (
	TGATypeUncompressed = 2  // Uncompressed true-color
	TGATypeRLE          = 10 // RLE compressed true-color
)

// ErrTruncatedTGAData is returned when pixel data ends early.
var ErrTruncatedTGAData = errors.New("truncated TGA data")

const tgaHeaderSize = 18

// tgaPixels walks TGA pixel data in file order.
type tgaPixels struct {
	img           *image.RGBA
	width, height int
	bytesPerPixel int
	topToBottom   bool
	index         int
}

func (p *tgaPixels) done() bool {
	return p.index >= p.width*p.height
}

func (p *tgaPixels) read(data []byte) color.RGBA {
	c := color.RGBA{R: data[2], G: data[1], B: data[0], A: 255}
	if p.bytesPerPixel == 4 {
		c.A = data[3]
	}
	return c
}

func (p *tgaPixels) put(c color.RGBA) {
	x := p.index % p.width
	y := p.index / p.width
	if !p.topToBottom {
		y = p.height - 1 - y
	}
	p.img.SetRGBA(x, y, c)
	p.index++
}

// DecodeTGA decodes uncompressed (type 2) and RLE (type 10) true-color TGA data.
func DecodeTGA(data []byte) (image.Image, error) {
	if len(data) < tgaHeaderSize {
		return nil, fmt.Errorf("%w: header", ErrTruncatedTGAData)
	}

	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	descriptor := data[17]

	if colorMapType != 0 {
		return nil, fmt.Errorf("color-mapped TGA not supported")
	}
	if imageType != TGATypeUncompressed && imageType != TGATypeRLE {
		return nil, fmt.Errorf("unsupported TGA type %d (only uncompressed/RLE true-color supported)", imageType)
	}
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("unsupported TGA bit depth %d (only 24/32 supported)", bpp)
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("invalid TGA dimensions: %dx%d", width, height)
	}

	offset := tgaHeaderSize + idLength
	if offset > len(data) {
		return nil, fmt.Errorf("%w: id field", ErrTruncatedTGAData)
	}

	p := &tgaPixels{
		img:           image.NewRGBA(image.Rect(0, 0, width, height)),
		width:         width,
		height:        height,
		bytesPerPixel: bpp / 8,
		topToBottom:   descriptor&0x20 != 0,
	}

	var err error
	if imageType == TGATypeUncompressed {
		err = p.decodeRaw(data[offset:])
	} else {
		err = p.decodeRLE(data[offset:])
	}
	if err != nil {
		return nil, err
	}
	return p.img, nil
}

func (p *tgaPixels) decodeRaw(data []byte) error {
	if len(data) < p.width*p.height*p.bytesPerPixel {
		return fmt.Errorf("%w: pixel data", ErrTruncatedTGAData)
	}
	for i := 0; !p.done(); i += p.bytesPerPixel {
		p.put(p.read(data[i:]))
	}
	return nil
}

func (p *tgaPixels) decodeRLE(data []byte) error {
	i := 0
	for !p.done() {
		if i >= len(data) {
			return fmt.Errorf("%w: rle packet", ErrTruncatedTGAData)
		}
		packet := data[i]
		i++
		count := int(packet&0x7F) + 1

		if packet&0x80 != 0 {
			// RLE packet: one pixel repeated count times
			if i+p.bytesPerPixel > len(data) {
				return fmt.Errorf("%w: rle pixel", ErrTruncatedTGAData)
			}
			c := p.read(data[i:])
			i += p.bytesPerPixel
			for n := 0; n < count && !p.done(); n++ {
				p.put(c)
			}
			continue
		}

		for n := 0; n < count && !p.done(); n++ {
			if i+p.bytesPerPixel > len(data) {
				return fmt.Errorf("%w: raw pixel", ErrTruncatedTGAData)
			}
			p.put(p.read(data[i:]))
			i += p.bytesPerPixel
		}
	}
	return nil
}

// EncodeTGA writes img as an uncompressed 24-bit top-to-bottom TGA.
func EncodeTGA(img image.Image) []byte {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	out := make([]byte, tgaHeaderSize, tgaHeaderSize+w*h*3)
	out[2] = TGATypeUncompressed
	out[12], out[13] = byte(w), byte(w>>8)
	out[14], out[15] = byte(h), byte(h>>8)
	out[16] = 24
	out[17] = 0x20

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out = append(out, byte(b>>8), byte(g>>8), byte(r>>8))
		}
	}
	return out
}
