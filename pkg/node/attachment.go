package node

import (
	"errors"
	"fmt"
	"strings"
)

// Attachment configuration errors.
var (
	ErrUnknownFormat     = errors.New("unknown attachment format")
	ErrInvalidAttachment = errors.New("invalid attachment config")
)

// Format is the pixel layout of an attachment.
type Format uint8

// Supported attachment formats.
const (
	FormatR16  Format = iota + 1 // 16-bit single channel, little endian
	FormatRGB8                   // 8-bit red, green, blue
)

// String returns the format name used in configuration files.
func (f Format) String() string {
	switch f {
	case FormatR16:
		return "r16"
	case FormatRGB8:
		return "rgb8"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
}

// BytesPerPixel returns the size of one pixel.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR16:
		return 2
	case FormatRGB8:
		return 3
	default:
		return 0
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	if f.BytesPerPixel() == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	format, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = format
	return nil
}

// ParseFormat converts a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "r16":
		return FormatR16, nil
	case "rgb8":
		return FormatRGB8, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// AttachmentConfig describes one data channel of a terrain.
// It is set when the terrain config is built and never changed afterwards.
type AttachmentConfig struct {
	Name          string `yaml:"name"`
	TextureSize   int    `yaml:"texture_size"`
	MipLevelCount int    `yaml:"mip_level_count"`
	Format        Format `yaml:"format"`
}

// BorderSize returns the padding on each side of the finest mip.
// The total padding per axis is 1 << MipLevelCount.
func (c AttachmentConfig) BorderSize() int {
	return 1 << (c.MipLevelCount - 1)
}

// CenterSize returns the unpadded pixel extent of the finest mip.
func (c AttachmentConfig) CenterSize() int {
	return c.TextureSize - 2*c.BorderSize()
}

// Layout returns the artifact layout for this attachment.
func (c AttachmentConfig) Layout() Layout {
	return Layout{TextureSize: c.TextureSize, MipLevelCount: c.MipLevelCount, Format: c.Format}
}

// Validate checks that texture size, mip count and border are consistent.
func (c AttachmentConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAttachment)
	}
	if strings.ContainsAny(c.Name, `/\`) {
		return fmt.Errorf("%w: name %q contains a path separator", ErrInvalidAttachment, c.Name)
	}
	if c.Format.BytesPerPixel() == 0 {
		return fmt.Errorf("%w: %s: %w", ErrInvalidAttachment, c.Name, ErrUnknownFormat)
	}
	if c.MipLevelCount < 1 || c.MipLevelCount > 8 {
		return fmt.Errorf("%w: %s: mip level count %d outside 1..8", ErrInvalidAttachment, c.Name, c.MipLevelCount)
	}
	if c.TextureSize <= 0 || c.TextureSize%(1<<(c.MipLevelCount-1)) != 0 {
		return fmt.Errorf("%w: %s: texture size %d not divisible by %d",
			ErrInvalidAttachment, c.Name, c.TextureSize, 1<<(c.MipLevelCount-1))
	}
	if c.TextureSize%2 != 0 {
		return fmt.Errorf("%w: %s: texture size %d is odd", ErrInvalidAttachment, c.Name, c.TextureSize)
	}
	if 2*c.BorderSize() >= c.TextureSize/2 {
		return fmt.Errorf("%w: %s: border %d is not below half the texture size %d",
			ErrInvalidAttachment, c.Name, 2*c.BorderSize(), c.TextureSize)
	}
	return nil
}
