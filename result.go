package darkroom

import "time"

// StageTiming reports how long one pipeline stage took. CPU is always
// populated; GPU is only valid when the device supports timestamp
// queries, indicated by GPUValid.
type StageTiming struct {
	// Stage is the stage name ("rotate", "adjust", "tone_curve",
	// "tone_fused", "masks", "downsample", "histogram", "submit").
	Stage string

	// CPU is the wall-clock time spent on the host for this stage.
	CPU time.Duration

	// GPU is the device execution time, when available.
	GPU time.Duration

	// GPUValid reports whether GPU holds a measured value.
	GPUValid bool
}

// Histogram is a 256-bin luminance histogram (Rec. 709 weights) of the
// final image.
type Histogram [256]uint32

// Total returns the sum of all bins, which equals the number of pixels
// in the image the histogram was computed over.
func (h *Histogram) Total() uint64 {
	var n uint64
	for _, v := range h {
		n += uint64(v)
	}
	return n
}

// EditResult is the output of one Process call.
type EditResult struct {
	// Pixels is the edited image, row-major, no row padding, in Format.
	Pixels []byte

	// Width and Height are the output dimensions. They differ from the
	// input dimensions when rotation or draft-resolution scaling ran.
	Width, Height int

	// Format is the channel layout of Pixels.
	Format PixelFormat

	// Stages holds per-stage timings in execution order.
	Stages []StageTiming

	// Histogram is set when EditParams.ComputeHistogram was requested.
	Histogram *Histogram
}

// TextureResult is the output of ProcessToTexture. The pixels stay on
// the GPU; only dimensions and timings come back.
type TextureResult struct {
	Width, Height int
	Stages        []StageTiming
}
