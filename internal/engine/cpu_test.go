package engine

import (
	"bytes"
	"math"
	"testing"
)

// testImage builds a packed RGBA image with a deterministic per-pixel
// pattern so remapping mistakes show up as value mismatches.
func testImage(w, h int) []byte {
	img := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			img[i+0] = byte(x * 17)
			img[i+1] = byte(y * 31)
			img[i+2] = byte((x + y) * 7)
			img[i+3] = 0xFF
		}
	}
	return img
}

func pixelAt(img []byte, w, x, y int) [4]byte {
	i := (y*w + x) * 4
	return [4]byte{img[i], img[i+1], img[i+2], img[i+3]}
}

func TestCPURotateQuarterTurns(t *testing.T) {
	const w, h = 4, 3
	src := testImage(w, h)

	// 90 degrees CCW: dst(x, y) = src(y, srcH-1-x), dst is h x w.
	r90 := cpuRotate(src, w, h, h, w, 1, 90)
	for y := 0; y < w; y++ {
		for x := 0; x < h; x++ {
			want := pixelAt(src, w, y, h-1-x)
			got := pixelAt(r90, h, x, y)
			if got != want {
				t.Fatalf("90deg at (%d,%d): got %v, want %v", x, y, got, want)
			}
		}
	}

	// 180 degrees: dst(x, y) = src(srcW-1-x, srcH-1-y).
	r180 := cpuRotate(src, w, h, w, h, 2, 180)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			want := pixelAt(src, w, w-1-x, h-1-y)
			got := pixelAt(r180, w, x, y)
			if got != want {
				t.Fatalf("180deg at (%d,%d): got %v, want %v", x, y, got, want)
			}
		}
	}

	// 180 twice is the identity.
	twice := cpuRotate(r180, w, h, w, h, 2, 180)
	if !bytes.Equal(twice, src) {
		t.Error("rotating 180 twice did not restore the image")
	}

	// 90 then 270 is the identity.
	r270 := cpuRotate(r90, h, w, w, h, 3, 270)
	if !bytes.Equal(r270, src) {
		t.Error("rotating 90 then 270 did not restore the image")
	}
}

func TestCPUDownsampleExact(t *testing.T) {
	// 4x4 with known 2x2 block averages.
	const w, h = 4, 4
	src := make([]byte, w*h*4)
	vals := [4][4]byte{
		{10, 20, 100, 200},
		{30, 40, 100, 200},
		{0, 0, 255, 255},
		{0, 0, 255, 255},
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			src[i] = vals[y][x]
			src[i+3] = 0xFF
		}
	}

	dst := cpuDownsample(src, w, h, 2, 2, 2)

	// (10+20+30+40+2)/4 = 25, (100+200)*2/4 = 150, 0, 255.
	want := [2][2]byte{{25, 150}, {0, 255}}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if got := dst[(y*2+x)*4]; got != want[y][x] {
				t.Errorf("block (%d,%d): got %d, want %d", x, y, got, want[y][x])
			}
		}
	}
}

// The integer block average must stay within one count of the exact
// float average.
func TestCPUDownsampleWithinOneOfFloat(t *testing.T) {
	const w, h = 10, 7
	src := testImage(w, h)
	const block = 3
	dw, dh := downsampledDimensions(w, h, 1.0/3.0)

	dst := cpuDownsample(src, w, h, dw, dh, block)

	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			for ch := 0; ch < 4; ch++ {
				var sum, count float64
				for sy := y * block; sy < (y+1)*block && sy < h; sy++ {
					for sx := x * block; sx < (x+1)*block && sx < w; sx++ {
						sum += float64(src[(sy*w+sx)*4+ch])
						count++
					}
				}
				exact := sum / count
				got := float64(dst[(y*dw+x)*4+ch])
				if math.Abs(got-exact) > 1 {
					t.Fatalf("block (%d,%d) ch %d: got %v, exact %v", x, y, ch, got, exact)
				}
			}
		}
	}
}

// Applying adjustments and the curve fused must match applying them as
// two sequential passes. The curve indexes quantized bytes, so the two
// orders agree exactly.
func TestCPUToneFusedMatchesSequential(t *testing.T) {
	const w, h = 16, 16
	adjust := Adjustments{Exposure: 0.4, Contrast: 0.3, Saturation: -0.2, Temperature: 0.1}
	var lut [256]uint8
	for i := range lut {
		v := float64(i) / 255
		lut[i] = uint8(v*v*255 + 0.5)
	}

	fused := testImage(w, h)
	cpuTone(fused, w, h, &adjust, &lut)

	sequential := testImage(w, h)
	cpuTone(sequential, w, h, &adjust, nil)
	cpuTone(sequential, w, h, nil, &lut)

	if !bytes.Equal(fused, sequential) {
		for i := range fused {
			if fused[i] != sequential[i] {
				t.Fatalf("first mismatch at byte %d: fused %d, sequential %d",
					i, fused[i], sequential[i])
			}
		}
	}
}

// Zero-valued adjustments are the identity on quantized pixels.
func TestApplyAdjustIdentity(t *testing.T) {
	var zero Adjustments
	for v := 0; v < 256; v++ {
		f := float32(v) / 255
		r, g, b := applyAdjust(f, f, f, zero)
		if quantize(r) != byte(v) || quantize(g) != byte(v) || quantize(b) != byte(v) {
			t.Fatalf("identity adjust moved %d to (%d,%d,%d)",
				v, quantize(r), quantize(g), quantize(b))
		}
	}
}

func TestCPUHistogramTotal(t *testing.T) {
	const w, h = 13, 9
	img := testImage(w, h)
	bins := cpuHistogram(img, w, h)

	var total uint32
	for _, n := range bins {
		total += n
	}
	if total != w*h {
		t.Errorf("histogram total = %d, want %d", total, w*h)
	}

	// A uniform black image lands entirely in bin 0.
	black := make([]byte, w*h*4)
	bins = cpuHistogram(black, w, h)
	if bins[0] != w*h {
		t.Errorf("black image: bin 0 = %d, want %d", bins[0], w*h)
	}
}

func TestMaskWeight(t *testing.T) {
	linear := Mask{Kind: MaskLinear, X0: 0, Y0: 0.5, X1: 1, Y1: 0.5}
	if got := maskWeight(&linear, 0, 0.5); got != 0 {
		t.Errorf("linear weight at start = %v, want 0", got)
	}
	if got := maskWeight(&linear, 1, 0.5); got != 1 {
		t.Errorf("linear weight at end = %v, want 1", got)
	}
	if got := maskWeight(&linear, 0.5, 0.5); got != 0.5 {
		t.Errorf("linear weight at midpoint = %v, want 0.5", got)
	}

	inverted := linear
	inverted.Invert = true
	if got := maskWeight(&inverted, 0, 0.5); got != 1 {
		t.Errorf("inverted linear weight at start = %v, want 1", got)
	}

	radial := Mask{Kind: MaskRadial, CenterX: 0.5, CenterY: 0.5, RadiusX: 0.25, RadiusY: 0.25, Feather: 0.5}
	if got := maskWeight(&radial, 0.5, 0.5); got != 1 {
		t.Errorf("radial weight at center = %v, want 1", got)
	}
	if got := maskWeight(&radial, 0, 0); got != 0 {
		t.Errorf("radial weight far outside = %v, want 0", got)
	}

	// A degenerate linear mask (zero-length gradient) covers everything.
	point := Mask{Kind: MaskLinear, X0: 0.5, Y0: 0.5, X1: 0.5, Y1: 0.5}
	if got := maskWeight(&point, 0.1, 0.9); got != 1 {
		t.Errorf("degenerate linear weight = %v, want 1", got)
	}
}

func TestCPUMasksZeroWeightLeavesPixels(t *testing.T) {
	const w, h = 8, 8
	img := testImage(w, h)
	want := append([]byte(nil), img...)

	// An inverted full-coverage mask has zero weight everywhere, so even
	// a large adjustment must not move a single pixel.
	masks := []Mask{{
		Kind: MaskLinear, X0: 0.5, Y0: 0.5, X1: 0.5, Y1: 0.5,
		Invert: true,
		Adjust: Adjustments{Exposure: 2},
	}}
	cpuMasks(img, w, h, masks)

	if !bytes.Equal(img, want) {
		t.Error("zero-weight mask changed pixel data")
	}
}
