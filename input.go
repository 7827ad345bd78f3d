package darkroom

import "fmt"

// PixelFormat identifies the channel layout of a pixel buffer.
type PixelFormat int

const (
	// FormatRGB is 3 bytes per pixel, row-major, no padding.
	FormatRGB PixelFormat = iota

	// FormatRGBA is 4 bytes per pixel, row-major, no padding.
	FormatRGBA
)

// Channels returns the number of bytes per pixel for the format.
func (f PixelFormat) Channels() int {
	if f == FormatRGBA {
		return 4
	}
	return 3
}

// String returns the human-readable name of the pixel format.
func (f PixelFormat) String() string {
	switch f {
	case FormatRGB:
		return "rgb"
	case FormatRGBA:
		return "rgba"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// EditInput is a decoded image handed to the pipeline. The pixel buffer
// is treated as immutable for the duration of the call; the pipeline
// never writes to it.
type EditInput struct {
	// Pixels holds the raw pixel data, row-major, no row padding.
	Pixels []byte

	// Width and Height are the image dimensions in pixels.
	Width, Height int

	// Format describes the channel layout of Pixels.
	Format PixelFormat
}

// validate checks dimensions and buffer length.
func (in *EditInput) validate() error {
	if in.Width < 1 || in.Height < 1 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, in.Width, in.Height)
	}
	need := in.Width * in.Height * in.Format.Channels()
	if len(in.Pixels) < need {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrBufferTooSmall, len(in.Pixels), need)
	}
	return nil
}
