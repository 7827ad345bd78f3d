package engine

import (
	"strings"
	"testing"
)

func TestKernelsInit(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	kernels := NewKernels(device)
	if err := kernels.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer kernels.Close()

	for s := Stage(0); s < stageCount; s++ {
		k := kernels.Fixed(s)
		if k == nil || k.pipeline == nil {
			t.Errorf("stage %s has no pipeline", s)
		}
	}

	// Init twice is a no-op.
	if err := kernels.Init(); err != nil {
		t.Errorf("second Init failed: %v", err)
	}
}

func TestKernelsFusedMemoization(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	kernels := NewKernels(device)
	if err := kernels.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer kernels.Close()

	first, err := kernels.Fused(FusedAdjust)
	if err != nil {
		t.Fatalf("Fused(adjust) failed: %v", err)
	}
	second, err := kernels.Fused(FusedAdjust)
	if err != nil {
		t.Fatalf("Fused(adjust) again failed: %v", err)
	}
	if first != second {
		t.Error("repeated Fused call compiled a second variant")
	}
	if n := kernels.VariantCount(); n != 1 {
		t.Errorf("VariantCount = %d, want 1", n)
	}

	if _, err := kernels.Fused(FusedAdjust | FusedCurve); err != nil {
		t.Fatalf("Fused(adjust|curve) failed: %v", err)
	}
	if n := kernels.VariantCount(); n != 2 {
		t.Errorf("VariantCount = %d, want 2", n)
	}

	if _, err := kernels.Fused(0); err == nil {
		t.Error("Fused(0) should fail")
	}
}

func TestKernelsCloseIdempotent(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	kernels := NewKernels(device)
	if err := kernels.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	kernels.Close()
	kernels.Close()
}

func TestAssembleToneSource(t *testing.T) {
	adjustOnly := assembleToneSource(FusedAdjust)
	if !strings.Contains(adjustOnly, "apply_adjust") {
		t.Error("adjust variant is missing apply_adjust")
	}
	if strings.Contains(adjustOnly, "apply_curve") {
		t.Error("adjust variant must not include the curve fragment")
	}

	curveOnly := assembleToneSource(FusedCurve)
	if strings.Contains(curveOnly, "apply_adjust") {
		t.Error("curve variant must not include the adjust fragment")
	}
	if !strings.Contains(curveOnly, "apply_curve") {
		t.Error("curve variant is missing apply_curve")
	}
	if !strings.Contains(curveOnly, "@binding(3)") {
		t.Error("curve variant is missing the LUT binding")
	}

	both := assembleToneSource(FusedAdjust | FusedCurve)
	if !strings.Contains(both, "apply_adjust") || !strings.Contains(both, "apply_curve") {
		t.Error("fused variant is missing a fragment")
	}
}

func TestFusedFeaturesString(t *testing.T) {
	cases := map[FusedFeatures]string{
		FusedAdjust:              "adjust",
		FusedCurve:               "tone_curve",
		FusedAdjust | FusedCurve: "tone_fused",
	}
	for f, want := range cases {
		if got := f.String(); got != want {
			t.Errorf("%#x.String() = %q, want %q", uint32(f), got, want)
		}
	}
}
