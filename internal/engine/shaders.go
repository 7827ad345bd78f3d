// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/rotate.wgsl
var rotateWGSL string

//go:embed shaders/tone_prelude.wgsl
var tonePreludeWGSL string

//go:embed shaders/tone_adjust.wgsl
var toneAdjustWGSL string

//go:embed shaders/tone_curve.wgsl
var toneCurveWGSL string

//go:embed shaders/masks.wgsl
var masksWGSL string

//go:embed shaders/downsample.wgsl
var downsampleWGSL string

//go:embed shaders/histogram.wgsl
var histogramWGSL string

//go:embed shaders/blit.wgsl
var blitWGSL string

// FusedFeatures selects which tone operations a fused variant performs.
type FusedFeatures uint32

const (
	FusedAdjust FusedFeatures = 1 << 0
	FusedCurve  FusedFeatures = 1 << 1
)

func (f FusedFeatures) String() string {
	switch f {
	case FusedAdjust:
		return "adjust"
	case FusedCurve:
		return "tone_curve"
	case FusedAdjust | FusedCurve:
		return "tone_fused"
	default:
		return fmt.Sprintf("tone(%#x)", uint32(f))
	}
}

// assembleToneSource builds the WGSL for one fused tone variant from the
// shared fragments. Only the code for the requested features is included,
// so a variant never binds resources it does not read.
func assembleToneSource(features FusedFeatures) string {
	var sb strings.Builder
	sb.WriteString(tonePreludeWGSL)
	if features&FusedAdjust != 0 {
		sb.WriteString("\n")
		sb.WriteString(toneAdjustWGSL)
	}
	if features&FusedCurve != 0 {
		sb.WriteString("\n")
		sb.WriteString(toneCurveWGSL)
	}

	sb.WriteString(`
@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) gid: vec3u) {
    let x = gid.x;
    let y = gid.y;
    if (x >= params.width || y >= params.height) {
        return;
    }
    let idx = y * params.width + x;
    var c = unpack_color(src[idx]);
`)
	if features&FusedAdjust != 0 {
		sb.WriteString("    c = vec4f(apply_adjust(c.rgb, params.adj), c.a);\n")
	}
	if features&FusedCurve != 0 {
		sb.WriteString("    c = vec4f(apply_curve(c.rgb), c.a);\n")
	}
	sb.WriteString(`    dst[idx] = pack_color(c);
}
`)
	return sb.String()
}

// compileModule validates WGSL through naga before handing it to the
// backend. Validation errors surface here with the shader label instead
// of as an opaque device failure at dispatch time.
func compileModule(device hal.Device, label, source string) (hal.ShaderModule, error) {
	if _, err := naga.Compile(source); err != nil {
		return nil, fmt.Errorf("engine: shader %s: %w", label, err)
	}
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{WGSL: source},
	})
	if err != nil {
		return nil, fmt.Errorf("engine: shader %s: %w", label, err)
	}
	return module, nil
}
