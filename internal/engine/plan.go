// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"time"

	"github.com/chewxy/math32"
)

// Input is a decoded image handed to the processor. Pixels are row-major
// with Channels bytes per pixel (3 = RGB, 4 = RGBA) and no row padding.
// The buffer is never written to.
type Input struct {
	Pixels        []byte
	Width, Height int
	Channels      int
}

// Adjustments mirrors the public adjustment set. All fields are identity
// at 0.
type Adjustments struct {
	Temperature float32
	Tint        float32
	Exposure    float32
	Contrast    float32
	Highlights  float32
	Shadows     float32
	Whites      float32
	Blacks      float32
	Vibrance    float32
	Saturation  float32
}

// fields returns the adjustments in wire order, matching the Adjust
// struct in the WGSL sources.
func (a Adjustments) fields() [10]float32 {
	return [10]float32{
		a.Temperature, a.Tint, a.Exposure, a.Contrast, a.Highlights,
		a.Shadows, a.Whites, a.Blacks, a.Vibrance, a.Saturation,
	}
}

// scaled returns the adjustments scaled by a mask weight t in [0, 1].
func (a Adjustments) scaled(t float32) Adjustments {
	return Adjustments{
		Temperature: a.Temperature * t,
		Tint:        a.Tint * t,
		Exposure:    a.Exposure * t,
		Contrast:    a.Contrast * t,
		Highlights:  a.Highlights * t,
		Shadows:     a.Shadows * t,
		Whites:      a.Whites * t,
		Blacks:      a.Blacks * t,
		Vibrance:    a.Vibrance * t,
		Saturation:  a.Saturation * t,
	}
}

// MaskKind selects the mask geometry.
type MaskKind int

const (
	// MaskLinear ramps from 0 at (X0, Y0) to 1 at (X1, Y1).
	MaskLinear MaskKind = iota

	// MaskRadial is 1 inside the ellipse, falling to 0 over the feather
	// band at the boundary.
	MaskRadial
)

// Mask is one resolved local adjustment mask. Coordinates are in
// normalized image space.
type Mask struct {
	Kind             MaskKind
	X0, Y0, X1, Y1   float32
	CenterX, CenterY float32
	RadiusX, RadiusY float32
	Feather          float32
	Invert           bool
	Adjust           Adjustments
}

// Plan is a fully resolved edit: every identity stage has already been
// stripped by the caller. The processor executes exactly what the plan
// says, in fixed order: downsample, rotate, tone, masks, histogram.
type Plan struct {
	// RotationActive enables the rotation stage.
	RotationActive bool

	// Rotation is the normalized angle in degrees, in (0, 360).
	Rotation float32

	// Quarter is 1, 2 or 3 for exact quarter turns, -1 for arbitrary
	// angles. Only meaningful when RotationActive.
	Quarter int

	// Adjust enables the tonal adjustment stage when non-nil.
	Adjust *Adjustments

	// CurveLUT enables the tone curve stage when non-nil.
	CurveLUT *[256]uint8

	// Masks enables the mask stage when non-empty.
	Masks []Mask

	// Scale in (0, 1] selects draft-resolution processing; 1 disables it.
	Scale float32

	// Histogram requests a luminance histogram of the final image.
	Histogram bool

	// OutputChannels is 3 or 4.
	OutputChannels int
}

// downsampleActive reports whether the draft-resolution stage runs.
func (p *Plan) downsampleActive() bool { return p.Scale > 0 && p.Scale < 1 }

// downsampleBlock is the averaging block edge N = round(1/scale).
func (p *Plan) downsampleBlock() int {
	n := int(math32.Round(1 / p.Scale))
	if n < 1 {
		n = 1
	}
	return n
}

// fused reports whether adjustments and tone curve run as one kernel.
func (p *Plan) fused() bool { return p.Adjust != nil && p.CurveLUT != nil }

// empty reports whether the plan is a pure identity edit: no stage runs
// and no auxiliary output is requested.
func (p *Plan) empty() bool {
	return !p.RotationActive && p.Adjust == nil && p.CurveLUT == nil &&
		len(p.Masks) == 0 && !p.downsampleActive() && !p.Histogram
}

// StageTiming is a per-stage duration record.
type StageTiming struct {
	Stage    string
	CPU      time.Duration
	GPU      time.Duration
	GPUValid bool
}

// Output is the processor result. Pixels are row-major in the requested
// channel count.
type Output struct {
	Pixels        []byte
	Width, Height int
	Stages        []StageTiming
	Histogram     *[256]uint32
}

// RotatedDimensions returns the bounding-box dimensions of a w x h image
// rotated by degrees (normalized to [0, 360)). Quarter turns are exact.
func RotatedDimensions(w, h int, degrees float32) (int, int) {
	const eps = 0.001
	switch {
	case degrees <= eps || degrees >= 360-eps:
		return w, h
	case math32.Abs(degrees-90) <= eps, math32.Abs(degrees-270) <= eps:
		return h, w
	case math32.Abs(degrees-180) <= eps:
		return w, h
	}
	rad := degrees * math32.Pi / 180
	c := math32.Abs(math32.Cos(rad))
	s := math32.Abs(math32.Sin(rad))
	rw := int(math32.Round(float32(w)*c + float32(h)*s))
	rh := int(math32.Round(float32(w)*s + float32(h)*c))
	if rw < 1 {
		rw = 1
	}
	if rh < 1 {
		rh = 1
	}
	return rw, rh
}

// downsampledDimensions returns floor-scaled dimensions with a 1x1 floor.
func downsampledDimensions(w, h int, scale float32) (int, int) {
	dw := int(math32.Floor(float32(w) * scale))
	dh := int(math32.Floor(float32(h) * scale))
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	return dw, dh
}
