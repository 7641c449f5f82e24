// Package formats decodes source terrain tiles into rasters in attachment layout.
package formats

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// Source tile errors.
var (
	ErrTileMissing       = errors.New("source tile missing")
	ErrUnknownFileFormat = errors.New("unknown source file format")
	ErrFormatMismatch    = errors.New("source file format cannot produce attachment format")
)

// FileFormat identifies the encoding of source tiles on disk.
type FileFormat uint8

// Supported source file formats.
const (
	FileFormatDTM  FileFormat = iota + 1 // fixed-point elevation grid
	FileFormatTIFF                       // 16-bit grayscale or RGB TIFF
	FileFormatPNG                        // lossless RGB or 16-bit grayscale PNG
	FileFormatTGA                        // uncompressed or RLE true-color TGA
)

// String returns the format name used in configuration files.
func (f FileFormat) String() string {
	switch f {
	case FileFormatDTM:
		return "dtm"
	case FileFormatTIFF:
		return "tiff"
	case FileFormatPNG:
		return "png"
	case FileFormatTGA:
		return "tga"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
}

// Ext returns the file extension of tiles in this format, without the dot.
func (f FileFormat) Ext() string {
	if f == FileFormatTIFF {
		return "tif"
	}
	return f.String()
}

// Supports reports whether tiles of this format can feed an attachment of the given pixel format.
func (f FileFormat) Supports(target node.Format) bool {
	switch f {
	case FileFormatDTM:
		return target == node.FormatR16
	case FileFormatTIFF, FileFormatPNG:
		return target == node.FormatR16 || target == node.FormatRGB8
	case FileFormatTGA:
		return target == node.FormatRGB8
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
// The zero value marshals as an empty string.
func (f FileFormat) MarshalText() ([]byte, error) {
	if f == 0 {
		return nil, nil
	}
	if f > FileFormatTGA {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFileFormat, uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FileFormat) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*f = 0
		return nil
	}
	format, err := ParseFileFormat(string(text))
	if err != nil {
		return err
	}
	*f = format
	return nil
}

// ParseFileFormat converts a format name to a FileFormat.
func ParseFileFormat(s string) (FileFormat, error) {
	switch strings.ToLower(s) {
	case "dtm":
		return FileFormatDTM, nil
	case "tiff", "tif":
		return FileFormatTIFF, nil
	case "png":
		return FileFormatPNG, nil
	case "tga":
		return FileFormatTGA, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFileFormat, s)
	}
}

// SourceReadError reports a malformed source tile.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("reading source tile %s: %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error {
	return e.Err
}
