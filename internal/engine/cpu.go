// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// cpu.go is the CPU reference path. Every kernel has a scalar mirror
// here operating on the same packed RGBA layout and the same arithmetic
// as the WGSL, so the fallback is bit-compatible with the GPU for the
// integer stages and float32-compatible for the tonal ones.

package engine

import (
	"github.com/anthonynsimon/bild/parallel"
	"github.com/chewxy/math32"
)

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func mixf(a, b, t float32) float32 { return a + (b-a)*t }

func luma709(r, g, b float32) float32 {
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// sstep mirrors the WGSL sstep: smoothstep with a defined result for a
// degenerate edge pair.
func sstep(e0, e1, x float32) float32 {
	if e1 <= e0 {
		if x >= e1 {
			return 1
		}
		return 0
	}
	t := clamp01((x - e0) / (e1 - e0))
	return t * t * (3 - 2*t)
}

// applyAdjust mirrors apply_adjust in tone_adjust.wgsl.
func applyAdjust(r, g, b float32, a Adjustments) (float32, float32, float32) {
	e := math32.Exp2(a.Exposure)
	r, g, b = r*e, g*e, b*e
	r += a.Temperature * 0.1
	b -= a.Temperature * 0.1
	g += a.Tint * 0.1

	k := 1 + a.Contrast*0.5
	r = (r-0.5)*k + 0.5
	g = (g-0.5)*k + 0.5
	b = (b-0.5)*k + 0.5

	y := clamp01(luma709(r, g, b))
	lift := a.Highlights*0.25*sstep(0.5, 1, y) +
		a.Shadows*0.25*(1-sstep(0, 0.5, y)) +
		a.Whites*0.2*y +
		a.Blacks*0.2*(1-y)
	r += lift
	g += lift
	b += lift

	y2 := luma709(r, g, b)
	sat := math32.Max(r, math32.Max(g, b)) - math32.Min(r, math32.Min(g, b))
	kv := 1 + a.Vibrance*(1-clamp01(sat))
	r = mixf(y2, r, kv)
	g = mixf(y2, g, kv)
	b = mixf(y2, b, kv)
	ks := 1 + a.Saturation
	r = mixf(y2, r, ks)
	g = mixf(y2, g, ks)
	b = mixf(y2, b, ks)

	return clamp01(r), clamp01(g), clamp01(b)
}

// quantize mirrors pack_color: clamp, scale and truncate.
func quantize(v float32) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}

// cpuRotate rotates a packed image. quarter is 1, 2 or 3 for exact
// turns; anything else uses inverse-mapped bilinear resampling with the
// angle in degrees, writing transparent black outside the source.
func cpuRotate(src []byte, sw, sh, dw, dh, quarter int, degrees float32) []byte {
	dst := make([]byte, dw*dh*4)

	if quarter >= 1 && quarter <= 3 {
		parallel.Line(dh, func(start, end int) {
			for y := start; y < end; y++ {
				for x := 0; x < dw; x++ {
					var sx, sy int
					switch quarter {
					case 1:
						sx, sy = y, sh-1-x
					case 2:
						sx, sy = sw-1-x, sh-1-y
					case 3:
						sx, sy = sw-1-y, x
					}
					copy(dst[(y*dw+x)*4:], src[(sy*sw+sx)*4:(sy*sw+sx)*4+4])
				}
			}
		})
		return dst
	}

	rad := degrees * math32.Pi / 180
	sinA := math32.Sin(rad)
	cosA := math32.Cos(rad)
	fw := float32(sw)
	fh := float32(sh)

	load := func(x, y int, ch int) float32 {
		return float32(src[(y*sw+x)*4+ch]) / 255
	}

	parallel.Line(dh, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < dw; x++ {
				rx := float32(x) + 0.5 - float32(dw)*0.5
				ry := float32(y) + 0.5 - float32(dh)*0.5
				sx := rx*cosA + ry*sinA + fw*0.5 - 0.5
				sy := -rx*sinA + ry*cosA + fh*0.5 - 0.5

				di := (y*dw + x) * 4
				if sx < -0.5 || sy < -0.5 || sx > fw-0.5 || sy > fh-0.5 {
					continue // transparent black
				}
				fx := clampf(sx, 0, fw-1)
				fy := clampf(sy, 0, fh-1)
				x0 := int(math32.Floor(fx))
				y0 := int(math32.Floor(fy))
				x1 := min(x0+1, sw-1)
				y1 := min(y0+1, sh-1)
				tx := fx - math32.Floor(fx)
				ty := fy - math32.Floor(fy)
				for ch := 0; ch < 4; ch++ {
					top := mixf(load(x0, y0, ch), load(x1, y0, ch), tx)
					bot := mixf(load(x0, y1, ch), load(x1, y1, ch), tx)
					dst[di+ch] = quantize(mixf(top, bot, ty))
				}
			}
		}
	})
	return dst
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// cpuTone applies the adjustment and curve operations in place, in the
// same fused form as the GPU variant: at most one quantization at the
// end. The curve indexes quantized bytes, so fused and sequential
// application agree exactly.
func cpuTone(img []byte, w, h int, adjust *Adjustments, lut *[256]uint8) {
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			row := img[y*w*4 : (y+1)*w*4]
			for x := 0; x < w; x++ {
				i := x * 4
				r := float32(row[i+0]) / 255
				g := float32(row[i+1]) / 255
				b := float32(row[i+2]) / 255
				if adjust != nil {
					r, g, b = applyAdjust(r, g, b, *adjust)
				}
				if lut != nil {
					r = float32(lut[quantize(r)]) / 255
					g = float32(lut[quantize(g)]) / 255
					b = float32(lut[quantize(b)]) / 255
				}
				row[i+0] = quantize(r)
				row[i+1] = quantize(g)
				row[i+2] = quantize(b)
			}
		}
	})
}

// maskWeight mirrors mask_weight in masks.wgsl. nx, ny are pixel-center
// coordinates in normalized image space.
func maskWeight(m *Mask, nx, ny float32) float32 {
	var t float32
	if m.Kind == MaskLinear {
		dx := m.X1 - m.X0
		dy := m.Y1 - m.Y0
		len2 := dx*dx + dy*dy
		if len2 <= 0 {
			t = 1
		} else {
			t = sstep(0, 1, clamp01(((nx-m.X0)*dx+(ny-m.Y0)*dy)/len2))
		}
	} else {
		ex := (nx - m.CenterX) / math32.Max(m.RadiusX, 1e-6)
		ey := (ny - m.CenterY) / math32.Max(m.RadiusY, 1e-6)
		d := math32.Sqrt(ex*ex + ey*ey)
		f := clamp01(m.Feather)
		t = 1 - sstep(1-f, 1, d)
	}
	if m.Invert {
		t = 1 - t
	}
	return t
}

// cpuMasks applies the mask stack in order, in place.
func cpuMasks(img []byte, w, h int, masks []Mask) {
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			ny := (float32(y) + 0.5) / float32(h)
			row := img[y*w*4 : (y+1)*w*4]
			for x := 0; x < w; x++ {
				nx := (float32(x) + 0.5) / float32(w)
				i := x * 4
				r := float32(row[i+0]) / 255
				g := float32(row[i+1]) / 255
				b := float32(row[i+2]) / 255
				for mi := range masks {
					t := maskWeight(&masks[mi], nx, ny)
					if t > 0 {
						r, g, b = applyAdjust(r, g, b, masks[mi].Adjust.scaled(t))
					}
				}
				row[i+0] = quantize(r)
				row[i+1] = quantize(g)
				row[i+2] = quantize(b)
			}
		}
	})
}

// cpuDownsample averages block x block tiles with integer rounding,
// matching downsample.wgsl. Boundary tiles average only the pixels that
// exist.
func cpuDownsample(src []byte, sw, sh, dw, dh, block int) []byte {
	dst := make([]byte, dw*dh*4)
	parallel.Line(dh, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < dw; x++ {
				x0 := x * block
				y0 := y * block
				x1 := min(x0+block, sw)
				y1 := min(y0+block, sh)

				var sum [4]uint32
				var count uint32
				for sy := y0; sy < y1; sy++ {
					for sx := x0; sx < x1; sx++ {
						si := (sy*sw + sx) * 4
						sum[0] += uint32(src[si+0])
						sum[1] += uint32(src[si+1])
						sum[2] += uint32(src[si+2])
						sum[3] += uint32(src[si+3])
						count++
					}
				}
				if count == 0 {
					count = 1
				}
				di := (y*dw + x) * 4
				for ch := 0; ch < 4; ch++ {
					dst[di+ch] = uint8((sum[ch] + count/2) / count)
				}
			}
		}
	})
	return dst
}

// cpuHistogram computes the 256-bin luminance histogram, matching
// histogram.wgsl bin placement.
func cpuHistogram(img []byte, w, h int) *[256]uint32 {
	var bins [256]uint32
	for i := 0; i < w*h; i++ {
		r := float32(img[i*4+0]) / 255
		g := float32(img[i*4+1]) / 255
		b := float32(img[i*4+2]) / 255
		bins[quantize(luma709(r, g, b))]++
	}
	return &bins
}
