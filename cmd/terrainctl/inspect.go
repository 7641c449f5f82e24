package main

import (
	"context"
	"errors"
	"fmt"
	gomath "math"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

var errUsage = errors.New("usage: terrainctl inspect <attachment> <L/X/Y>")

// mipStats summarizes one mip level.
type mipStats struct {
	Size   int
	NoData int
	// Elevation range for R16, mean color for RGB8.
	Min, Max float64
	Mean     [3]float64
}

func cmdInspect(_ context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	a, ok := cfg.Terrain.Attachment(args[0])
	if !ok {
		return fmt.Errorf("attachment %q is not configured", args[0])
	}
	id, err := node.Parse(args[1])
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := st.Get(a.Name, id)
	if err != nil {
		return err
	}
	mips, err := a.Layout().DecodeArtifact(data)
	if err != nil {
		return err
	}

	fmt.Printf("Node:      %s/%s\n", a.Name, id)
	fmt.Printf("Footprint: %.0f units at (%.0f, %.0f)\n",
		cfg.Terrain.NodeSize(id.LOD), float64(id.X)*cfg.Terrain.NodeSize(id.LOD), float64(id.Y)*cfg.Terrain.NodeSize(id.LOD))
	fmt.Printf("Artifact:  %d bytes, checksum ok\n", len(data))
	fmt.Println()

	for m, img := range mips {
		s := inspectMip(img, cfg.Terrain.Height)
		total := s.Size * s.Size
		fmt.Printf("Mip %d: %dx%d, %d/%d nodata", m, s.Size, s.Size, s.NoData, total)
		switch {
		case s.NoData == total:
		case img.Format == node.FormatR16:
			fmt.Printf(", elevation %.2f..%.2f", s.Min, s.Max)
		default:
			fmt.Printf(", mean rgb (%.0f, %.0f, %.0f)", s.Mean[0], s.Mean[1], s.Mean[2])
		}
		fmt.Println()
	}
	return nil
}

func inspectMip(img *node.Image, maxHeight float64) mipStats {
	s := mipStats{Size: img.Size, Min: gomath.Inf(1), Max: gomath.Inf(-1)}
	valid := 0
	for y := 0; y < img.Size; y++ {
		for x := 0; x < img.Size; x++ {
			if img.IsNoData(x, y) {
				s.NoData++
				continue
			}
			valid++
			switch img.Format {
			case node.FormatR16:
				h, _ := node.DecodeElevation(img.R16(x, y), maxHeight)
				s.Min = min(s.Min, h)
				s.Max = max(s.Max, h)
			case node.FormatRGB8:
				r, g, b := img.RGB(x, y)
				s.Mean[0] += float64(r)
				s.Mean[1] += float64(g)
				s.Mean[2] += float64(b)
			}
		}
	}
	if valid > 0 {
		for i := range s.Mean {
			s.Mean[i] /= float64(valid)
		}
	}
	return s
}
