package engine

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Working images live in GPU storage buffers holding one packed RGBA8
// u32 per pixel (R in the low byte). Compute kernels read and write the
// packed form directly; channel conversion happens only at the CPU
// boundary.

// usageWorking is the usage class for intermediate stage images.
var usageWorking = gputypes.BufferUsageStorage |
	gputypes.BufferUsageCopyDst |
	gputypes.BufferUsageCopySrc

// imageKey is the pool bucket key. Images are only reused on an exact
// match of dimensions and usage class.
type imageKey struct {
	width, height int
	usage         gputypes.BufferUsage
}

// Image is a pooled GPU image resource.
type Image struct {
	Buf           hal.Buffer
	Width, Height int

	key  imageKey
	pool *ImagePool
}

// SizeBytes returns the packed byte size (4 bytes per pixel).
func (img *Image) SizeBytes() uint64 {
	return uint64(img.Width) * uint64(img.Height) * 4
}

// packPixels widens an input buffer to the packed RGBA working layout.
// 3-channel input gains an opaque alpha byte.
func packPixels(pixels []byte, w, h, channels int) []byte {
	n := w * h
	out := make([]byte, n*4)
	if channels == 4 {
		copy(out, pixels[:n*4])
		return out
	}
	for i := 0; i < n; i++ {
		out[i*4+0] = pixels[i*3+0]
		out[i*4+1] = pixels[i*3+1]
		out[i*4+2] = pixels[i*3+2]
		out[i*4+3] = 0xFF
	}
	return out
}

// unpackPixels narrows the packed RGBA working layout to the requested
// output channel count.
func unpackPixels(packed []byte, w, h, channels int) []byte {
	n := w * h
	if channels == 4 {
		out := make([]byte, n*4)
		copy(out, packed[:n*4])
		return out
	}
	out := make([]byte, n*3)
	for i := 0; i < n; i++ {
		out[i*3+0] = packed[i*4+0]
		out[i*3+1] = packed[i*4+1]
		out[i*3+2] = packed[i*4+2]
	}
	return out
}

// convertChannels copies pixels between channel layouts without any
// processing. Used by the identity short-circuit.
func convertChannels(pixels []byte, w, h, srcChannels, dstChannels int) []byte {
	if srcChannels == dstChannels {
		out := make([]byte, w*h*srcChannels)
		copy(out, pixels[:w*h*srcChannels])
		return out
	}
	return unpackPixels(packPixels(pixels, w, h, srcChannels), w, h, dstChannels)
}
