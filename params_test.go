package darkroom

import "testing"

func TestAdjustmentsActive(t *testing.T) {
	var zero Adjustments
	if zero.active() {
		t.Error("zero adjustments reported active")
	}

	within := Adjustments{Exposure: 0.0005, Contrast: -0.0009}
	if within.active() {
		t.Error("sub-epsilon adjustments reported active")
	}

	over := Adjustments{Tint: 0.002}
	if !over.active() {
		t.Error("adjustment above epsilon reported inactive")
	}

	negative := Adjustments{Blacks: -0.5}
	if !negative.active() {
		t.Error("negative adjustment reported inactive")
	}
}

func TestRotationActive(t *testing.T) {
	cases := []struct {
		deg    float32
		active bool
	}{
		{0, false},
		{0.0005, false},
		{360, false},
		{359.9995, false},
		{720, false},
		{0.01, true},
		{90, true},
		{-90, true},
		{180.5, true},
	}
	for _, c := range cases {
		p := EditParams{Rotation: c.deg}
		if got := p.rotationActive(); got != c.active {
			t.Errorf("rotationActive(%v) = %v, want %v", c.deg, got, c.active)
		}
	}
}

func TestQuarterTurns(t *testing.T) {
	cases := []struct {
		deg  float32
		want int
	}{
		{90, 1},
		{180, 2},
		{270, 3},
		{-90, 3},
		{450, 1},
		{45, -1},
		{90.5, -1},
	}
	for _, c := range cases {
		p := EditParams{Rotation: c.deg}
		if got := p.quarterTurns(); got != c.want {
			t.Errorf("quarterTurns(%v) = %d, want %d", c.deg, got, c.want)
		}
	}
}

func TestCurveActive(t *testing.T) {
	var identity [256]uint8
	for i := range identity {
		identity[i] = uint8(i)
	}
	p := EditParams{ToneCurveLUT: &identity}
	if p.curveActive() {
		t.Error("identity LUT reported active")
	}

	bumped := identity
	bumped[128] = 200
	p = EditParams{ToneCurveLUT: &bumped}
	if !p.curveActive() {
		t.Error("non-identity LUT reported inactive")
	}

	// Fewer than two points never activates.
	p = EditParams{ToneCurvePoints: []CurvePoint{{0.5, 0.8}}}
	if p.curveActive() {
		t.Error("single point reported active")
	}

	// Two points on the identity endpoints are inactive.
	p = EditParams{ToneCurvePoints: []CurvePoint{{0, 0}, {1, 1}}}
	if p.curveActive() {
		t.Error("identity endpoints reported active")
	}

	// Two points off the endpoints are active.
	p = EditParams{ToneCurvePoints: []CurvePoint{{0, 0.1}, {1, 1}}}
	if !p.curveActive() {
		t.Error("offset endpoint reported inactive")
	}

	// Three or more points always activate.
	p = EditParams{ToneCurvePoints: []CurvePoint{{0, 0}, {0.5, 0.5}, {1, 1}}}
	if !p.curveActive() {
		t.Error("three points reported inactive")
	}
}

func TestResolveLUTEndpoints(t *testing.T) {
	p := EditParams{ToneCurvePoints: []CurvePoint{{0, 0}, {0.5, 0.8}, {1, 1}}}
	lut := p.resolveLUT()
	if lut == nil {
		t.Fatal("active curve resolved to nil LUT")
	}
	if lut[0] != 0 {
		t.Errorf("lut[0] = %d, want 0", lut[0])
	}
	if lut[255] != 255 {
		t.Errorf("lut[255] = %d, want 255", lut[255])
	}
	// The midpoint control lifts the middle of the range.
	if lut[128] < 190 {
		t.Errorf("lut[128] = %d, expected a lifted midtone", lut[128])
	}

	// Unsorted input is sorted before evaluation.
	shuffled := EditParams{ToneCurvePoints: []CurvePoint{{1, 1}, {0, 0}, {0.5, 0.8}}}
	lut2 := shuffled.resolveLUT()
	if lut2 == nil || *lut != *lut2 {
		t.Error("point order changed the resolved LUT")
	}
}

func TestResolveLUTClampsOutsideRange(t *testing.T) {
	p := EditParams{ToneCurvePoints: []CurvePoint{{0.25, 0.5}, {0.75, 0.5}, {0.8, 0.6}}}
	lut := p.resolveLUT()
	if lut == nil {
		t.Fatal("active curve resolved to nil LUT")
	}
	// Below the first control point the curve holds its value.
	if lut[0] != lut[10] {
		t.Errorf("curve not clamped below first point: %d vs %d", lut[0], lut[10])
	}
	// Above the last control point too.
	if lut[250] != lut[255] {
		t.Errorf("curve not clamped above last point: %d vs %d", lut[250], lut[255])
	}
}

func TestToPlanIdentity(t *testing.T) {
	var p EditParams
	plan := p.toPlan()

	if plan.RotationActive {
		t.Error("identity params produced an active rotation")
	}
	if plan.Adjust != nil {
		t.Error("identity params produced adjustments")
	}
	if plan.CurveLUT != nil {
		t.Error("identity params produced a curve LUT")
	}
	if len(plan.Masks) != 0 {
		t.Error("identity params produced masks")
	}
	if plan.Scale != 1 {
		t.Errorf("identity params produced scale %v", plan.Scale)
	}
	if plan.OutputChannels != 3 {
		t.Errorf("OutputChannels = %d, want 3", plan.OutputChannels)
	}
}

func TestToPlanSkipsDisabledMasks(t *testing.T) {
	p := EditParams{
		Masks: MaskStack{
			Linear: []LinearMask{
				{Enabled: false, Adjust: Adjustments{Exposure: 1}},
				{Enabled: true, X1: 1, Y1: 1, Adjust: Adjustments{Exposure: 0.5}},
			},
			Radial: []RadialMask{
				{Enabled: false},
			},
		},
	}
	plan := p.toPlan()
	if len(plan.Masks) != 1 {
		t.Fatalf("got %d planned masks, want 1", len(plan.Masks))
	}
	if plan.Masks[0].Adjust.Exposure != 0.5 {
		t.Error("wrong mask survived the Enabled filter")
	}
}

func TestScale(t *testing.T) {
	cases := []struct {
		in, want float32
	}{
		{0, 1},
		{1, 1},
		{0.5, 0.5},
		{0.25, 0.25},
		{-0.5, 1},
		{2, 1},
	}
	for _, c := range cases {
		p := EditParams{TargetResolution: c.in}
		if got := p.scale(); got != c.want {
			t.Errorf("scale(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestPixelFormatChannels(t *testing.T) {
	if FormatRGB.Channels() != 3 {
		t.Error("FormatRGB.Channels() != 3")
	}
	if FormatRGBA.Channels() != 4 {
		t.Error("FormatRGBA.Channels() != 4")
	}
}
