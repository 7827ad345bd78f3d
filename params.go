package darkroom

import (
	"sort"

	"github.com/chewxy/math32"

	"github.com/gogpu/darkroom/internal/engine"
)

// identityEpsilon is the threshold below which a parameter is treated as
// identity and its stage is skipped.
const identityEpsilon = 0.001

// Adjustments holds the ten global tonal adjustments. All fields default
// to 0, which is identity. Nominal range is [-1, 1] for every field;
// values outside the range are not clamped.
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

// active reports whether any field differs from identity by more than
// identityEpsilon.
func (a Adjustments) active() bool {
	for _, v := range [...]float32{
		a.Temperature, a.Tint, a.Exposure, a.Contrast, a.Highlights,
		a.Shadows, a.Whites, a.Blacks, a.Vibrance, a.Saturation,
	} {
		if math32.Abs(v) > identityEpsilon {
			return true
		}
	}
	return false
}

// CurvePoint is a tone curve control point. Both coordinates are in
// normalized [0, 1] space.
type CurvePoint struct {
	X, Y float32
}

// LinearMask is a linear gradient mask. The mask weight ramps from 0 at
// (X0, Y0) to 1 at (X1, Y1), measured in normalized image coordinates.
type LinearMask struct {
	Enabled        bool
	X0, Y0, X1, Y1 float32
	Invert         bool
	Adjust         Adjustments
}

// RadialMask is an elliptical gradient mask. The weight is 1 inside the
// ellipse and falls to 0 across the feather band at the boundary.
// Coordinates and radii are in normalized image space.
type RadialMask struct {
	Enabled          bool
	CenterX, CenterY float32
	RadiusX, RadiusY float32
	Feather          float32
	Invert           bool
	Adjust           Adjustments
}

// MaskStack holds the local adjustment masks, applied in order after the
// global tonal stages.
type MaskStack struct {
	Linear []LinearMask
	Radial []RadialMask
}

// EditParams describes one edit. The zero value is a full identity edit:
// Process returns the input unchanged (converted to OutputFormat).
type EditParams struct {
	// Rotation is the rotation angle in degrees, counter-clockwise.
	// Multiples of 90 use exact pixel remapping; other angles use
	// bilinear resampling into the enclosing bounding box.
	Rotation float32

	// Adjustments are the global tonal adjustments.
	Adjustments Adjustments

	// ToneCurvePoints are control points for the tone curve, interpolated
	// piecewise-linearly. Ignored when ToneCurveLUT is set.
	ToneCurvePoints []CurvePoint

	// ToneCurveLUT is an explicit 256-entry lookup table. Takes precedence
	// over ToneCurvePoints.
	ToneCurveLUT *[256]uint8

	// Masks are the local adjustment masks.
	Masks MaskStack

	// TargetResolution scales the working resolution for draft-mode
	// previews. Values in (0, 1) downsample the input before processing;
	// 0 and 1 both mean full resolution.
	TargetResolution float32

	// OutputFormat selects the channel layout of the result.
	// Defaults to FormatRGB.
	OutputFormat PixelFormat

	// ComputeHistogram requests a 256-bin luminance histogram of the
	// final image in the result.
	ComputeHistogram bool
}

// rotationActive reports whether the rotation stage runs.
func (p *EditParams) rotationActive() bool {
	deg := normalizeDegrees(p.Rotation)
	return deg > identityEpsilon && deg < 360-identityEpsilon
}

// quarterTurns returns 1, 2 or 3 when the normalized angle is an exact
// quarter turn (within identityEpsilon), and -1 for arbitrary angles.
func (p *EditParams) quarterTurns() int {
	deg := normalizeDegrees(p.Rotation)
	for q := 1; q <= 3; q++ {
		if math32.Abs(deg-float32(q)*90) <= identityEpsilon {
			return q
		}
	}
	return -1
}

// curveActive reports whether the tone curve stage runs. An explicit LUT
// is active unless it is the identity mapping. Control points are active
// when there are three or more, or exactly two that are not within
// identityEpsilon of the identity endpoints (0,0)-(1,1).
func (p *EditParams) curveActive() bool {
	if p.ToneCurveLUT != nil {
		for i, v := range p.ToneCurveLUT {
			if int(v) != i {
				return true
			}
		}
		return false
	}
	switch len(p.ToneCurvePoints) {
	case 0, 1:
		return false
	case 2:
		a, b := p.ToneCurvePoints[0], p.ToneCurvePoints[1]
		if a.X > b.X {
			a, b = b, a
		}
		return math32.Abs(a.X) > identityEpsilon || math32.Abs(a.Y) > identityEpsilon ||
			math32.Abs(b.X-1) > identityEpsilon || math32.Abs(b.Y-1) > identityEpsilon
	default:
		return true
	}
}

// resolveLUT builds the 256-entry lookup table the kernels consume.
// Returns nil when the curve is identity.
func (p *EditParams) resolveLUT() *[256]uint8 {
	if !p.curveActive() {
		return nil
	}
	if p.ToneCurveLUT != nil {
		lut := *p.ToneCurveLUT
		return &lut
	}

	pts := make([]CurvePoint, len(p.ToneCurvePoints))
	copy(pts, p.ToneCurvePoints)
	sort.Slice(pts, func(i, j int) bool { return pts[i].X < pts[j].X })

	var lut [256]uint8
	for i := range lut {
		x := float32(i) / 255
		y := evalCurve(pts, x)
		lut[i] = uint8(clamp01(y)*255 + 0.5)
	}
	return &lut
}

// evalCurve evaluates the piecewise-linear curve through pts at x.
// Outside the control range the curve is clamped to the end values.
func evalCurve(pts []CurvePoint, x float32) float32 {
	if len(pts) == 0 {
		return x
	}
	if x <= pts[0].X {
		return pts[0].Y
	}
	last := pts[len(pts)-1]
	if x >= last.X {
		return last.Y
	}
	for i := 1; i < len(pts); i++ {
		if x <= pts[i].X {
			a, b := pts[i-1], pts[i]
			span := b.X - a.X
			if span <= 0 {
				return b.Y
			}
			t := (x - a.X) / span
			return a.Y + t*(b.Y-a.Y)
		}
	}
	return last.Y
}

// scale returns the effective working-resolution scale in (0, 1].
func (p *EditParams) scale() float32 {
	s := p.TargetResolution
	if s <= 0 || s >= 1 {
		return 1
	}
	return s
}

// toPlan resolves the parameters against identity and converts them into
// the engine's execution plan.
func (p *EditParams) toPlan() engine.Plan {
	plan := engine.Plan{
		Scale:          p.scale(),
		OutputChannels: p.OutputFormat.Channels(),
		Histogram:      p.ComputeHistogram,
	}

	if p.rotationActive() {
		plan.RotationActive = true
		plan.Rotation = normalizeDegrees(p.Rotation)
		plan.Quarter = p.quarterTurns()
	}

	if p.Adjustments.active() {
		a := engine.Adjustments(p.Adjustments)
		plan.Adjust = &a
	}

	plan.CurveLUT = p.resolveLUT()

	for _, m := range p.Masks.Linear {
		if !m.Enabled {
			continue
		}
		plan.Masks = append(plan.Masks, engine.Mask{
			Kind:   engine.MaskLinear,
			X0:     m.X0,
			Y0:     m.Y0,
			X1:     m.X1,
			Y1:     m.Y1,
			Invert: m.Invert,
			Adjust: engine.Adjustments(m.Adjust),
		})
	}
	for _, m := range p.Masks.Radial {
		if !m.Enabled {
			continue
		}
		plan.Masks = append(plan.Masks, engine.Mask{
			Kind:    engine.MaskRadial,
			CenterX: m.CenterX,
			CenterY: m.CenterY,
			RadiusX: m.RadiusX,
			RadiusY: m.RadiusY,
			Feather: m.Feather,
			Invert:  m.Invert,
			Adjust:  engine.Adjustments(m.Adjust),
		})
	}

	return plan
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
