package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// DTM format errors.
var (
	ErrInvalidDTMMagic       = errors.New("invalid DTM magic: expected 'TDTM'")
	ErrUnsupportedDTMVersion = errors.New("unsupported DTM version")
	ErrTruncatedDTMData      = errors.New("truncated DTM data")
)

const (
	dtmMagic      = "TDTM"
	dtmHeaderSize = 4 + 2 + 4 + 4 + 4 + 4
	dtmMaxSide    = 1 << 14
)

// DTMVersion represents the DTM file version.
type DTMVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v DTMVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// DTM is a fixed-point digital terrain model grid.
// Elevation of a sample s is Offset + s*Scale; s == 0 marks nodata.
type DTM struct {
	Version DTMVersion
	Width   uint32
	Height  uint32
	Scale   float32
	Offset  float32
	Samples []uint16
}

// Sample returns the raw value at (x, y), or 0 when out of bounds.
func (d *DTM) Sample(x, y int) uint16 {
	if x < 0 || y < 0 || x >= int(d.Width) || y >= int(d.Height) {
		return 0
	}
	return d.Samples[y*int(d.Width)+x]
}

// Elevation returns the elevation at (x, y). ok is false for nodata.
func (d *DTM) Elevation(x, y int) (h float64, ok bool) {
	s := d.Sample(x, y)
	if s == 0 {
		return 0, false
	}
	return float64(d.Offset) + float64(s)*float64(d.Scale), true
}

// Raster quantizes the grid into an R16 raster relative to maxHeight.
func (d *DTM) Raster(maxHeight float64) *Raster {
	raster := NewRaster(int(d.Width), int(d.Height), node.FormatR16)
	for y := 0; y < raster.Height; y++ {
		for x := 0; x < raster.Width; x++ {
			h, ok := d.Elevation(x, y)
			if !ok {
				continue
			}
			binary.LittleEndian.PutUint16(raster.Pix[raster.Offset(x, y):], node.EncodeElevation(h, maxHeight))
		}
	}
	return raster
}

// ParseDTM parses a DTM file from raw bytes.
func ParseDTM(data []byte) (*DTM, error) {
	if len(data) < dtmHeaderSize {
		return nil, ErrTruncatedDTMData
	}

	if string(data[0:4]) != dtmMagic {
		return nil, ErrInvalidDTMMagic
	}

	// Version is stored as [minor, major]
	version := DTMVersion{
		Major: data[5],
		Minor: data[4],
	}
	if version.Major != 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDTMVersion, version)
	}

	r := bytes.NewReader(data[6:])

	dtm := &DTM{Version: version}
	header := []any{&dtm.Width, &dtm.Height, &dtm.Scale, &dtm.Offset}
	for _, field := range header {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("%w: reading header", ErrTruncatedDTMData)
		}
	}

	if dtm.Width == 0 || dtm.Height == 0 || dtm.Width > dtmMaxSide || dtm.Height > dtmMaxSide {
		return nil, fmt.Errorf("invalid DTM dimensions: %dx%d", dtm.Width, dtm.Height)
	}
	if dtm.Scale <= 0 {
		return nil, fmt.Errorf("invalid DTM scale: %f", dtm.Scale)
	}

	dtm.Samples = make([]uint16, int(dtm.Width)*int(dtm.Height))
	if err := binary.Read(r, binary.LittleEndian, dtm.Samples); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: reading samples", ErrTruncatedDTMData)
		}
		return nil, fmt.Errorf("reading samples: %w", err)
	}

	return dtm, nil
}

// EncodeDTM serializes a DTM as version 1.0.
func EncodeDTM(d *DTM) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(dtmHeaderSize + 2*len(d.Samples))

	buf.WriteString(dtmMagic)
	buf.WriteByte(0) // minor
	buf.WriteByte(1) // major

	_ = binary.Write(buf, binary.LittleEndian, d.Width)
	_ = binary.Write(buf, binary.LittleEndian, d.Height)
	_ = binary.Write(buf, binary.LittleEndian, d.Scale)
	_ = binary.Write(buf, binary.LittleEndian, d.Offset)
	_ = binary.Write(buf, binary.LittleEndian, d.Samples)

	return buf.Bytes()
}
