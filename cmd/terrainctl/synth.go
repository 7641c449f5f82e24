package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	gomath "math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/image/tiff"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/pkg/formats"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// synthHeight is a smooth rolling landscape in [0.05, 0.95] of maxHeight.
func synthHeight(x, z, maxHeight float64) float64 {
	const period = 700.0
	v := gomath.Sin(x/period)*gomath.Cos(z/period)*0.6 + gomath.Sin((x+z)/(period/3))*0.3
	return maxHeight * (0.5 + 0.45*v/0.9)
}

// synthColor shades by height with a slight tint per axis.
func synthColor(x, z, maxHeight float64) color.RGBA {
	h := synthHeight(x, z, maxHeight) / maxHeight
	return color.RGBA{
		R: uint8(60 + 150*h),
		G: uint8(90 + 120*h + 20*gomath.Sin(x/300)),
		B: uint8(40 + 80*h + 20*gomath.Cos(z/300)),
		A: 0xff,
	}
}

func cmdSynth(ctx context.Context, cfg *config.Config, _ []string) error {
	log := logger.Named("synth")
	for _, a := range cfg.Terrain.Attachments {
		if a.Tiles.Path == "" {
			log.Info("attachment has no tiles, skipping", zap.String("attachment", a.Name))
			continue
		}
		n, err := synthAttachment(ctx, cfg.Terrain, a)
		if err != nil {
			return fmt.Errorf("attachment %s: %w", a.Name, err)
		}
		fmt.Printf("%s: %d %s tiles in %s\n", a.Name, n, a.Tiles.FileFormat, a.Tiles.Path)
	}
	return nil
}

// synthAttachment writes every tile covering the terrain and returns how many it wrote.
func synthAttachment(ctx context.Context, t config.TerrainConfig, a config.AttachmentConfig) (int, error) {
	if err := os.MkdirAll(a.Tiles.Path, 0755); err != nil {
		return 0, err
	}

	perSide := (t.Size + a.Tiles.Size - 1) / a.Tiles.Size
	for ty := 0; ty < perSide; ty++ {
		for tx := 0; tx < perSide; tx++ {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			data, err := synthTile(t, a, tx, ty)
			if err != nil {
				return 0, err
			}
			path := filepath.Join(a.Tiles.Path, fmt.Sprintf("%d_%d.%s", tx, ty, a.Tiles.FileFormat.Ext()))
			if err := os.WriteFile(path, data, 0644); err != nil {
				return 0, err
			}
		}
	}
	return perSide * perSide, nil
}

// synthTile renders tile (tx, ty) at one pixel per world unit.
func synthTile(t config.TerrainConfig, a config.AttachmentConfig, tx, ty int) ([]byte, error) {
	size := a.Tiles.Size
	worldX := func(px int) float64 { return float64(a.Tiles.OriginX+tx*size+px) + 0.5 }
	worldZ := func(py int) float64 { return float64(a.Tiles.OriginY+ty*size+py) + 0.5 }

	if a.Format == node.FormatRGB8 {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for py := 0; py < size; py++ {
			for px := 0; px < size; px++ {
				img.SetRGBA(px, py, synthColor(worldX(px), worldZ(py), t.Height))
			}
		}
		return encodeImage(img, a.Tiles.FileFormat)
	}

	if a.Tiles.FileFormat == formats.FileFormatDTM {
		dtm := &formats.DTM{
			Width:   uint32(size),
			Height:  uint32(size),
			Scale:   float32(t.Height / 65534),
			Samples: make([]uint16, size*size),
		}
		for py := 0; py < size; py++ {
			for px := 0; px < size; px++ {
				h := synthHeight(worldX(px), worldZ(py), t.Height)
				dtm.Samples[py*size+px] = rawSample(h, float64(dtm.Scale), 0)
			}
		}
		return formats.EncodeDTM(dtm), nil
	}

	scale := a.Tiles.Scale
	if scale == 0 {
		scale = 1
	}
	img := image.NewGray16(image.Rect(0, 0, size, size))
	for py := 0; py < size; py++ {
		for px := 0; px < size; px++ {
			h := synthHeight(worldX(px), worldZ(py), t.Height)
			img.SetGray16(px, py, color.Gray16{Y: rawSample(h, scale, a.Tiles.Offset)})
		}
	}
	return encodeImage(img, a.Tiles.FileFormat)
}

// rawSample inverts elevation = offset + sample*scale, keeping 0 free for nodata.
func rawSample(h, scale, offset float64) uint16 {
	s := gomath.Round((h - offset) / scale)
	return uint16(max(1, min(s, gomath.MaxUint16)))
}

func encodeImage(img image.Image, format formats.FileFormat) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case formats.FileFormatPNG:
		err = png.Encode(&buf, img)
	case formats.FileFormatTIFF:
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	case formats.FileFormatTGA:
		return formats.EncodeTGA(img), nil
	default:
		return nil, fmt.Errorf("cannot synthesize %s tiles", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
