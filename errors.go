package darkroom

import "errors"

// Pipeline errors.
var (
	// ErrNotInitialized is returned by Process before a successful Initialize
	// or after Destroy.
	ErrNotInitialized = errors.New("darkroom: pipeline not initialized")

	// ErrProcessing is returned when Initialize or Destroy is called while a
	// Process call is in flight.
	ErrProcessing = errors.New("darkroom: pipeline is processing")

	// ErrInvalidDimensions is returned when input width or height is < 1.
	ErrInvalidDimensions = errors.New("darkroom: invalid image dimensions")

	// ErrBufferTooSmall is returned when the input pixel buffer is shorter
	// than width * height * channels.
	ErrBufferTooSmall = errors.New("darkroom: pixel buffer too small")

	// ErrNoSurfaceTarget is returned by ProcessToTexture when the target is
	// not a hal.TextureView or no GPU device is available.
	ErrNoSurfaceTarget = errors.New("darkroom: target is not a GPU texture view")
)
