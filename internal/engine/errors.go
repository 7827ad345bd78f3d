package engine

import "errors"

// Engine errors.
var (
	// ErrNotInitialized is returned when dispatching before Init.
	ErrNotInitialized = errors.New("engine: processor not initialized")

	// ErrPoolClosed is returned when acquiring from a closed pool.
	ErrPoolClosed = errors.New("engine: image pool closed")

	// ErrImagesHeld is returned by ImagePool.Clear while acquired images
	// are still outstanding.
	ErrImagesHeld = errors.New("engine: images still held")

	// ErrRingClosed is returned when beginning a readback on a closed ring.
	ErrRingClosed = errors.New("engine: staging ring closed")

	// ErrReadback wraps failures while reading results back from the GPU.
	ErrReadback = errors.New("engine: readback failed")

	// ErrGPUTimeout is returned when the device does not signal the fence
	// within the timeout.
	ErrGPUTimeout = errors.New("engine: GPU timeout")

	// ErrNoDevice is returned by GPU-only operations without a device.
	ErrNoDevice = errors.New("engine: no GPU device")
)
