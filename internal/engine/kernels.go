// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Stage identifies one fixed compute kernel. The tone kernels are not
// listed here; they are fused variants resolved through Kernels.Fused.
type Stage int

const (
	StageDownsample Stage = iota
	StageRotate
	StageMasks
	StageHistogram

	stageCount
)

// String returns the stage name used in labels and timing records.
func (s Stage) String() string {
	switch s {
	case StageDownsample:
		return "downsample"
	case StageRotate:
		return "rotate"
	case StageMasks:
		return "masks"
	case StageHistogram:
		return "histogram"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// kernel bundles the GPU objects for one compute pipeline.
type kernel struct {
	module     hal.ShaderModule
	bgLayout   hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

func (k *kernel) destroy(device hal.Device) {
	if k == nil {
		return
	}
	if k.pipeline != nil {
		device.DestroyComputePipeline(k.pipeline)
		k.pipeline = nil
	}
	if k.pipeLayout != nil {
		device.DestroyPipelineLayout(k.pipeLayout)
		k.pipeLayout = nil
	}
	if k.bgLayout != nil {
		device.DestroyBindGroupLayout(k.bgLayout)
		k.bgLayout = nil
	}
	if k.module != nil {
		device.DestroyShaderModule(k.module)
		k.module = nil
	}
}

// Kernels owns the compute pipelines for the edit stages. The fixed
// kernels are built eagerly by Init; fused tone variants are compiled
// on first use and cached for the life of the device.
type Kernels struct {
	device hal.Device

	fixed [stageCount]*kernel

	fusedMu sync.Mutex
	fused   map[FusedFeatures]*kernel

	initialized bool
}

// NewKernels creates an empty kernel set bound to the device.
func NewKernels(device hal.Device) *Kernels {
	return &Kernels{
		device: device,
		fused:  make(map[FusedFeatures]*kernel),
	}
}

func uniformEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
}

func storageROEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
	}
}

func storageRWEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
	}
}

// stageLayoutEntries returns the binding layout for a fixed stage. Every
// stage binds uniforms at 0, the source image at 1 and the destination
// at 2; the mask stage adds the mask records at 3.
func stageLayoutEntries(stage Stage) []gputypes.BindGroupLayoutEntry {
	entries := []gputypes.BindGroupLayoutEntry{
		uniformEntry(0),
		storageROEntry(1),
		storageRWEntry(2),
	}
	if stage == StageMasks {
		entries = append(entries, storageROEntry(3))
	}
	return entries
}

func stageSource(stage Stage) string {
	switch stage {
	case StageDownsample:
		return downsampleWGSL
	case StageRotate:
		return rotateWGSL
	case StageMasks:
		return masksWGSL
	case StageHistogram:
		return histogramWGSL
	default:
		return ""
	}
}

// buildKernel compiles one WGSL source into a complete compute pipeline.
func (k *Kernels) buildKernel(label, source string, entries []gputypes.BindGroupLayoutEntry) (*kernel, error) {
	module, err := compileModule(k.device, label, source)
	if err != nil {
		return nil, err
	}
	out := &kernel{module: module}

	out.bgLayout, err = k.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_bgl",
		Entries: entries,
	})
	if err != nil {
		out.destroy(k.device)
		return nil, fmt.Errorf("engine: create bind group layout for %s: %w", label, err)
	}

	out.pipeLayout, err = k.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{out.bgLayout},
	})
	if err != nil {
		out.destroy(k.device)
		return nil, fmt.Errorf("engine: create pipeline layout for %s: %w", label, err)
	}

	out.pipeline, err = k.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  label,
		Layout: out.pipeLayout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		out.destroy(k.device)
		return nil, fmt.Errorf("engine: create compute pipeline for %s: %w", label, err)
	}
	return out, nil
}

// Init compiles the fixed stage kernels. A failure destroys everything
// built so far; the fused variant cache starts empty either way.
func (k *Kernels) Init() error {
	if k.initialized {
		return nil
	}
	for s := Stage(0); s < stageCount; s++ {
		built, err := k.buildKernel("darkroom_"+s.String(), stageSource(s), stageLayoutEntries(s))
		if err != nil {
			k.destroyFixed()
			return err
		}
		k.fixed[s] = built
		slogger().Debug("engine: kernel ready", "stage", s.String())
	}
	k.initialized = true
	return nil
}

// Fixed returns the pipeline objects for a fixed stage.
func (k *Kernels) Fixed(stage Stage) *kernel { return k.fixed[stage] }

// Fused returns the tone kernel for a feature combination, compiling it
// on first request. Variants with the curve bit bind the LUT at 3.
func (k *Kernels) Fused(features FusedFeatures) (*kernel, error) {
	if features == 0 {
		return nil, fmt.Errorf("engine: empty fused feature set")
	}
	k.fusedMu.Lock()
	defer k.fusedMu.Unlock()

	if built, ok := k.fused[features]; ok {
		return built, nil
	}

	entries := []gputypes.BindGroupLayoutEntry{
		uniformEntry(0),
		storageROEntry(1),
		storageRWEntry(2),
	}
	if features&FusedCurve != 0 {
		entries = append(entries, storageROEntry(3))
	}

	built, err := k.buildKernel("darkroom_"+features.String(), assembleToneSource(features), entries)
	if err != nil {
		return nil, err
	}
	k.fused[features] = built
	slogger().Debug("engine: fused tone variant compiled",
		"features", features.String(), "variants", len(k.fused))
	return built, nil
}

// VariantCount returns the number of compiled fused tone variants.
func (k *Kernels) VariantCount() int {
	k.fusedMu.Lock()
	defer k.fusedMu.Unlock()
	return len(k.fused)
}

func (k *Kernels) destroyFixed() {
	for s := Stage(0); s < stageCount; s++ {
		k.fixed[s].destroy(k.device)
		k.fixed[s] = nil
	}
}

// Close releases every compiled pipeline. Safe to call more than once.
func (k *Kernels) Close() {
	k.destroyFixed()
	k.fusedMu.Lock()
	for f, built := range k.fused {
		built.destroy(k.device)
		delete(k.fused, f)
	}
	k.fusedMu.Unlock()
	k.initialized = false
}
