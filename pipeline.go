// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package darkroom

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/darkroom/internal/engine"
)

// Config holds pipeline construction options. The zero value is valid.
type Config struct {
	// DeviceProvider optionally supplies a shared GPU device. The value
	// must implement HalDevice() any and HalQueue() any returning
	// hal.Device and hal.Queue. When nil, the pipeline opens its own
	// standalone device.
	DeviceProvider any

	// UseCPUFallback forces the CPU reference implementation even when a
	// GPU device is available. Mainly useful for testing and diffing.
	UseCPUFallback bool

	// PoolCapacity bounds the number of pooled idle image resources.
	// Defaults to engine.DefaultPoolCapacity (8).
	PoolCapacity int

	// StagingSlots is the number of readback staging buffers in flight.
	// Defaults to engine.DefaultStagingSlots (3).
	StagingSlots int
}

// pipelineState tracks the pipeline lifecycle.
type pipelineState int

const (
	stateUninitialized pipelineState = iota
	stateInitializing
	stateReady
	stateProcessing
)

// Pipeline is the edit pipeline. Create one with New, call Initialize
// once, then Process per edit. Concurrent Process calls are serialized
// internally; the per-image pools make sequential reuse cheap.
type Pipeline struct {
	// callMu serializes Process/ProcessToTexture calls.
	callMu sync.Mutex

	// mu guards state and proc.
	mu    sync.Mutex
	cfg   Config
	state pipelineState
	proc  *engine.Processor
}

// New creates a pipeline with the given configuration. No GPU work
// happens until Initialize.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Initialize acquires a GPU device (or the configured CPU fallback) and
// compiles the stage kernels. It reports whether GPU execution is
// available; false with a nil error means the pipeline will run on the
// CPU reference path. Initialize is idempotent once it has succeeded.
func (p *Pipeline) Initialize(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateReady:
		return p.proc.GPUReady(), nil
	case stateInitializing, stateProcessing:
		return false, ErrProcessing
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.state = stateInitializing
	proc := engine.NewProcessor(engine.Config{
		DeviceProvider: p.cfg.DeviceProvider,
		UseCPUFallback: p.cfg.UseCPUFallback,
		PoolCapacity:   p.cfg.PoolCapacity,
		StagingSlots:   p.cfg.StagingSlots,
	})
	gpuReady, err := proc.Init(ctx)
	if err != nil {
		proc.Close()
		p.state = stateUninitialized
		return false, err
	}

	p.proc = proc
	p.state = stateReady
	if gpuReady {
		slogger().Info("darkroom: pipeline initialized", "backend", "gpu")
	} else {
		slogger().Info("darkroom: pipeline initialized", "backend", "cpu")
	}
	return gpuReady, nil
}

// IsReady reports whether the pipeline has been initialized and can
// accept Process calls.
func (p *Pipeline) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateReady
}

// Process runs one edit and returns the edited pixels. Calls are
// serialized; the per-call GPU resources are acquired from the pipeline
// pools and released on every exit path. Exactly one command batch is
// submitted per call.
func (p *Pipeline) Process(ctx context.Context, input EditInput, params EditParams) (*EditResult, error) {
	proc, err := p.beginCall()
	if err != nil {
		return nil, err
	}
	defer p.endCall()

	if err := input.validate(); err != nil {
		return nil, err
	}

	out, err := proc.Run(ctx, engineInput(input), params.toPlan())
	if err != nil {
		return nil, err
	}
	return p.buildResult(out, params.OutputFormat), nil
}

// ProcessToTexture runs one edit and blits the result into the caller's
// surface texture view instead of reading pixels back to the CPU. The
// target must be a hal.TextureView with a BGRA8 render-attachment
// format. Requires a GPU device.
func (p *Pipeline) ProcessToTexture(ctx context.Context, input EditInput, params EditParams, target any) (*TextureResult, error) {
	proc, err := p.beginCall()
	if err != nil {
		return nil, err
	}
	defer p.endCall()

	if err := input.validate(); err != nil {
		return nil, err
	}
	view, ok := target.(hal.TextureView)
	if !ok || view == nil {
		return nil, ErrNoSurfaceTarget
	}
	if !proc.GPUReady() {
		return nil, fmt.Errorf("%w: no GPU device", ErrNoSurfaceTarget)
	}

	out, err := proc.RunToView(ctx, engineInput(input), params.toPlan(), view)
	if err != nil {
		return nil, err
	}
	return &TextureResult{
		Width:  out.Width,
		Height: out.Height,
		Stages: convertTimings(out.Stages),
	}, nil
}

// Destroy tears down the pipeline: pools are cleared, kernels and the
// owned device are released. The pipeline returns to the uninitialized
// state and may be initialized again. Destroy is a no-op on an
// uninitialized pipeline.
func (p *Pipeline) Destroy() {
	// Wait for any in-flight call before tearing down its resources.
	p.callMu.Lock()
	defer p.callMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.proc != nil {
		p.proc.Close()
		p.proc = nil
	}
	p.state = stateUninitialized
}

// beginCall serializes calls on callMu, then transitions Ready ->
// Processing. Overlapping calls queue on callMu; calls on an
// uninitialized pipeline fail with ErrNotInitialized.
func (p *Pipeline) beginCall() (*engine.Processor, error) {
	p.callMu.Lock()
	p.mu.Lock()
	if p.state != stateReady {
		p.mu.Unlock()
		p.callMu.Unlock()
		return nil, ErrNotInitialized
	}
	p.state = stateProcessing
	proc := p.proc
	p.mu.Unlock()
	return proc, nil
}

func (p *Pipeline) endCall() {
	p.mu.Lock()
	if p.state == stateProcessing {
		p.state = stateReady
	}
	p.mu.Unlock()
	p.callMu.Unlock()
}

func engineInput(in EditInput) engine.Input {
	return engine.Input{
		Pixels:   in.Pixels,
		Width:    in.Width,
		Height:   in.Height,
		Channels: in.Format.Channels(),
	}
}

func (p *Pipeline) buildResult(out *engine.Output, format PixelFormat) *EditResult {
	res := &EditResult{
		Pixels: out.Pixels,
		Width:  out.Width,
		Height: out.Height,
		Format: format,
		Stages: convertTimings(out.Stages),
	}
	if out.Histogram != nil {
		h := Histogram(*out.Histogram)
		res.Histogram = &h
	}
	return res
}

func convertTimings(ts []engine.StageTiming) []StageTiming {
	if len(ts) == 0 {
		return nil
	}
	out := make([]StageTiming, len(ts))
	for i, t := range ts {
		out[i] = StageTiming{Stage: t.Stage, CPU: t.CPU, GPU: t.GPU, GPUValid: t.GPUValid}
	}
	return out
}
