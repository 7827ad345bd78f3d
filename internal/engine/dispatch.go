// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// dispatch.go orchestrates one edit: stage selection from the plan,
// per-call GPU resource management, the single submission, and the
// asynchronous readback of the final image.

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// fenceTimeout bounds how long a submission may run before the edit
// fails with ErrGPUTimeout.
const fenceTimeout = 5 * time.Second

// workgroupEdge is the compute workgroup edge; all kernels declare
// @workgroup_size(16, 16).
const workgroupEdge = 16

// Config configures a Processor.
type Config struct {
	// DeviceProvider optionally lends an existing HAL device, typically
	// shared with a UI surface. Nil opens a standalone device.
	DeviceProvider any

	// UseCPUFallback skips GPU initialization entirely.
	UseCPUFallback bool

	// PoolCapacity bounds idle pooled images; <= 0 uses the default.
	PoolCapacity int

	// StagingSlots is the readback ring depth; <= 0 uses the default.
	StagingSlots int
}

// Processor executes edit plans. Exactly one GPU submission happens per
// Run call; when no usable device exists every stage runs on the CPU
// reference path instead.
type Processor struct {
	cfg Config

	session *Session
	pool    *ImagePool
	staging *StagingRing
	timing  *TimingRing
	kernels *Kernels
	blit    *BlitPipeline

	// binsStaging is the persistent histogram readback buffer, created on
	// first use. Calls are serialized by the owner, so one suffices.
	binsStaging hal.Buffer

	cpuOnly     bool
	initialized bool
}

// NewProcessor creates an unopened processor.
func NewProcessor(cfg Config) *Processor {
	return &Processor{cfg: cfg}
}

// Init opens the device session and compiles the fixed kernels. GPU
// setup failures degrade to the CPU path rather than failing the call;
// the returned bool reports whether the GPU path is live.
func (p *Processor) Init(ctx context.Context) (bool, error) {
	if p.initialized {
		return !p.cpuOnly, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if p.cfg.UseCPUFallback {
		p.cpuOnly = true
		p.initialized = true
		slogger().Info("engine: CPU fallback requested")
		return false, nil
	}

	var (
		session *Session
		err     error
	)
	if p.cfg.DeviceProvider != nil {
		session, err = openSharedSession(p.cfg.DeviceProvider)
	} else {
		session, err = openStandaloneSession()
	}
	if err != nil {
		slogger().Warn("engine: GPU unavailable, falling back to CPU", "error", err)
		p.cpuOnly = true
		p.initialized = true
		return false, nil
	}

	kernels := NewKernels(session.device)
	if err := kernels.Init(); err != nil {
		slogger().Warn("engine: kernel init failed, falling back to CPU", "error", err)
		kernels.Close()
		session.Close()
		p.cpuOnly = true
		p.initialized = true
		return false, nil
	}

	p.session = session
	p.kernels = kernels
	p.pool = NewImagePool(session.device, p.cfg.PoolCapacity)
	p.staging = NewStagingRing(session.device, session.queue, p.cfg.StagingSlots)
	p.timing = NewTimingRing(session.device, 16)
	p.initialized = true
	return true, nil
}

// GPUReady reports whether the GPU path is initialized and live.
func (p *Processor) GPUReady() bool {
	return p.initialized && !p.cpuOnly
}

// PoolStats returns the image pool counters; zero stats on the CPU path.
func (p *Processor) PoolStats() PoolStats {
	if p.pool == nil {
		return PoolStats{}
	}
	return p.pool.Stats()
}

// VariantCount returns the number of compiled fused tone variants.
func (p *Processor) VariantCount() int {
	if p.kernels == nil {
		return 0
	}
	return p.kernels.VariantCount()
}

// Run executes one edit plan against the input image.
func (p *Processor) Run(ctx context.Context, in Input, plan Plan) (*Output, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Identity edits skip processing entirely; only the channel layout
	// may change.
	if plan.empty() {
		return &Output{
			Pixels: convertChannels(in.Pixels, in.Width, in.Height, in.Channels, plan.OutputChannels),
			Width:  in.Width,
			Height: in.Height,
		}, nil
	}

	if p.cpuOnly {
		return p.runCPU(ctx, in, plan)
	}
	return p.runGPU(ctx, in, plan)
}

// toneStageName names the tone stage after its active features.
func toneStageName(plan *Plan) string {
	var f FusedFeatures
	if plan.Adjust != nil {
		f |= FusedAdjust
	}
	if plan.CurveLUT != nil {
		f |= FusedCurve
	}
	return f.String()
}

// runCPU executes every selected stage on the reference path, recording
// wall-clock stage timings.
func (p *Processor) runCPU(ctx context.Context, in Input, plan Plan) (*Output, error) {
	packed := packPixels(in.Pixels, in.Width, in.Height, in.Channels)
	w, h := in.Width, in.Height

	out := &Output{}
	record := func(stage string, start time.Time) {
		out.Stages = append(out.Stages, StageTiming{Stage: stage, CPU: time.Since(start)})
	}

	if plan.downsampleActive() {
		start := time.Now()
		dw, dh := downsampledDimensions(w, h, plan.Scale)
		packed = cpuDownsample(packed, w, h, dw, dh, plan.downsampleBlock())
		w, h = dw, dh
		record(StageDownsample.String(), start)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if plan.RotationActive {
		start := time.Now()
		rw, rh := RotatedDimensions(w, h, plan.Rotation)
		packed = cpuRotate(packed, w, h, rw, rh, plan.Quarter, plan.Rotation)
		w, h = rw, rh
		record(StageRotate.String(), start)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if plan.Adjust != nil || plan.CurveLUT != nil {
		start := time.Now()
		cpuTone(packed, w, h, plan.Adjust, plan.CurveLUT)
		record(toneStageName(&plan), start)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(plan.Masks) > 0 {
		start := time.Now()
		cpuMasks(packed, w, h, plan.Masks)
		record(StageMasks.String(), start)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if plan.Histogram {
		start := time.Now()
		out.Histogram = cpuHistogram(packed, w, h)
		record(StageHistogram.String(), start)
	}

	out.Pixels = unpackPixels(packed, w, h, plan.OutputChannels)
	out.Width = w
	out.Height = h
	return out, nil
}

// callResources tracks everything allocated for one GPU edit so the call
// can release it in one place, success or failure.
type callResources struct {
	device hal.Device
	pool   *ImagePool

	images     []*Image
	buffers    []hal.Buffer
	bindGroups []hal.BindGroup
	cmdBuf     hal.CommandBuffer
	fence      hal.Fence
}

func (r *callResources) trackImage(img *Image)    { r.images = append(r.images, img) }
func (r *callResources) trackBuffer(b hal.Buffer) { r.buffers = append(r.buffers, b) }

func (r *callResources) release() {
	if r.fence != nil {
		r.device.DestroyFence(r.fence)
		r.fence = nil
	}
	if r.cmdBuf != nil {
		r.device.FreeCommandBuffer(r.cmdBuf)
		r.cmdBuf = nil
	}
	for _, g := range r.bindGroups {
		r.device.DestroyBindGroup(g)
	}
	r.bindGroups = nil
	for _, b := range r.buffers {
		r.device.DestroyBuffer(b)
	}
	r.buffers = nil
	for _, img := range r.images {
		r.pool.Release(img)
	}
	r.images = nil
}

func bufferEntry(binding uint32, buf hal.Buffer) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding: binding,
		Resource: gputypes.BufferBinding{
			Buffer: buf.NativeHandle(),
			Offset: 0,
			Size:   0, // entire buffer
		},
	}
}

// uniformBuffer creates and fills a per-call uniform buffer.
func (p *Processor) uniformBuffer(res *callResources, label string, data []byte) (hal.Buffer, error) {
	buf, err := p.session.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: create uniform buffer %s: %w", label, err)
	}
	res.trackBuffer(buf)
	p.session.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

// storageBuffer creates a per-call storage buffer, optionally filled.
func (p *Processor) storageBuffer(res *callResources, label string, size uint64, data []byte) (hal.Buffer, error) {
	buf, err := p.session.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: create storage buffer %s: %w", label, err)
	}
	res.trackBuffer(buf)
	if data != nil {
		p.session.queue.WriteBuffer(buf, 0, data)
	}
	return buf, nil
}

// encodePass records one compute pass with the given bind group entries,
// dispatched over a w x h pixel grid.
func (p *Processor) encodePass(
	res *callResources,
	encoder hal.CommandEncoder,
	k *kernel,
	label string,
	entries []gputypes.BindGroupEntry,
	w, h int,
) error {
	bg, err := p.session.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label + "_bg",
		Layout:  k.bgLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("engine: create bind group for %s: %w", label, err)
	}
	res.bindGroups = append(res.bindGroups, bg)

	gx := uint32((w + workgroupEdge - 1) / workgroupEdge)
	gy := uint32((h + workgroupEdge - 1) / workgroupEdge)

	idx := p.timing.Begin(encoder, label)
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(gx, gy, 1)
	pass.End()
	p.timing.End(encoder, idx)
	return nil
}

// encodedStages is the state left behind by encodeStages: the image
// holding the final result and its dimensions, plus the histogram
// staging buffer when one was recorded.
type encodedStages struct {
	cur         *Image
	w, h        int
	binsStaging hal.Buffer
}

// encodeStages uploads the input and records every selected compute
// stage into the encoder, ping-ponging through pooled images. CPU encode
// timings are appended to out as each stage is recorded.
func (p *Processor) encodeStages(
	res *callResources,
	encoder hal.CommandEncoder,
	in Input,
	plan Plan,
	out *Output,
	histogram bool,
) (*encodedStages, error) {
	queue := p.session.queue

	record := func(stage string, start time.Time) {
		out.Stages = append(out.Stages, StageTiming{Stage: stage, CPU: time.Since(start)})
	}

	w, h := in.Width, in.Height
	cur, err := p.pool.Acquire(w, h, usageWorking, "darkroom_src")
	if err != nil {
		return nil, err
	}
	res.trackImage(cur)
	queue.WriteBuffer(cur.Buf, 0, packPixels(in.Pixels, w, h, in.Channels))

	// next acquires the destination image for a stage and swaps it in as
	// the current working image. The previous image stays tracked for
	// release but is still valid as the pass's read source.
	next := func(dw, dh int, label string) (*Image, *Image, error) {
		dst, err := p.pool.Acquire(dw, dh, usageWorking, label)
		if err != nil {
			return nil, nil, err
		}
		res.trackImage(dst)
		src := cur
		cur = dst
		return src, dst, nil
	}

	if plan.downsampleActive() {
		start := time.Now()
		dw, dh := downsampledDimensions(w, h, plan.Scale)
		u, err := p.uniformBuffer(res, "darkroom_downsample_u", downsampleUniforms{
			srcW: uint32(w), srcH: uint32(h),
			dstW: uint32(dw), dstH: uint32(dh),
			block: uint32(plan.downsampleBlock()),
		}.toBytes())
		if err != nil {
			return nil, err
		}
		src, dst, err := next(dw, dh, "darkroom_downsample")
		if err != nil {
			return nil, err
		}
		err = p.encodePass(res, encoder, p.kernels.Fixed(StageDownsample), StageDownsample.String(),
			[]gputypes.BindGroupEntry{
				bufferEntry(0, u),
				bufferEntry(1, src.Buf),
				bufferEntry(2, dst.Buf),
			}, dw, dh)
		if err != nil {
			return nil, err
		}
		w, h = dw, dh
		record(StageDownsample.String(), start)
	}

	if plan.RotationActive {
		start := time.Now()
		rw, rh := RotatedDimensions(w, h, plan.Rotation)
		quarter := uint32(0)
		var sinA, cosA float32
		if plan.Quarter >= 1 && plan.Quarter <= 3 {
			quarter = uint32(plan.Quarter)
		} else {
			rad := plan.Rotation * math32.Pi / 180
			sinA = math32.Sin(rad)
			cosA = math32.Cos(rad)
		}
		u, err := p.uniformBuffer(res, "darkroom_rotate_u", rotateUniforms{
			srcW: uint32(w), srcH: uint32(h),
			dstW: uint32(rw), dstH: uint32(rh),
			quarter: quarter, sinA: sinA, cosA: cosA,
		}.toBytes())
		if err != nil {
			return nil, err
		}
		src, dst, err := next(rw, rh, "darkroom_rotate")
		if err != nil {
			return nil, err
		}
		err = p.encodePass(res, encoder, p.kernels.Fixed(StageRotate), StageRotate.String(),
			[]gputypes.BindGroupEntry{
				bufferEntry(0, u),
				bufferEntry(1, src.Buf),
				bufferEntry(2, dst.Buf),
			}, rw, rh)
		if err != nil {
			return nil, err
		}
		w, h = rw, rh
		record(StageRotate.String(), start)
	}

	if plan.Adjust != nil || plan.CurveLUT != nil {
		start := time.Now()
		var features FusedFeatures
		var adjust Adjustments
		if plan.Adjust != nil {
			features |= FusedAdjust
			adjust = *plan.Adjust
		}
		if plan.CurveLUT != nil {
			features |= FusedCurve
		}
		k, err := p.kernels.Fused(features)
		if err != nil {
			return nil, err
		}
		u, err := p.uniformBuffer(res, "darkroom_tone_u", toneUniforms{
			width: uint32(w), height: uint32(h), adjust: adjust,
		}.toBytes())
		if err != nil {
			return nil, err
		}
		src, dst, err := next(w, h, "darkroom_tone")
		if err != nil {
			return nil, err
		}
		entries := []gputypes.BindGroupEntry{
			bufferEntry(0, u),
			bufferEntry(1, src.Buf),
			bufferEntry(2, dst.Buf),
		}
		if plan.CurveLUT != nil {
			lut, err := p.storageBuffer(res, "darkroom_lut", 256*4, encodeLUT(plan.CurveLUT))
			if err != nil {
				return nil, err
			}
			entries = append(entries, bufferEntry(3, lut))
		}
		if err := p.encodePass(res, encoder, k, features.String(), entries, w, h); err != nil {
			return nil, err
		}
		record(features.String(), start)
	}

	if len(plan.Masks) > 0 {
		start := time.Now()
		u, err := p.uniformBuffer(res, "darkroom_masks_u", extentUniforms{
			width: uint32(w), height: uint32(h), extra: uint32(len(plan.Masks)),
		}.toBytes())
		if err != nil {
			return nil, err
		}
		recs, err := p.storageBuffer(res, "darkroom_mask_recs",
			uint64(len(plan.Masks)*maskStride*4), encodeMasks(plan.Masks))
		if err != nil {
			return nil, err
		}
		src, dst, err := next(w, h, "darkroom_masks")
		if err != nil {
			return nil, err
		}
		err = p.encodePass(res, encoder, p.kernels.Fixed(StageMasks), StageMasks.String(),
			[]gputypes.BindGroupEntry{
				bufferEntry(0, u),
				bufferEntry(1, src.Buf),
				bufferEntry(2, dst.Buf),
				bufferEntry(3, recs),
			}, w, h)
		if err != nil {
			return nil, err
		}
		record(StageMasks.String(), start)
	}

	enc := &encodedStages{cur: cur, w: w, h: h}
	if histogram {
		start := time.Now()
		u, err := p.uniformBuffer(res, "darkroom_histogram_u", extentUniforms{
			width: uint32(w), height: uint32(h),
		}.toBytes())
		if err != nil {
			return nil, err
		}
		bins, err := p.storageBuffer(res, "darkroom_bins", 256*4, make([]byte, 256*4))
		if err != nil {
			return nil, err
		}
		err = p.encodePass(res, encoder, p.kernels.Fixed(StageHistogram), StageHistogram.String(),
			[]gputypes.BindGroupEntry{
				bufferEntry(0, u),
				bufferEntry(1, cur.Buf),
				bufferEntry(2, bins),
			}, w, h)
		if err != nil {
			return nil, err
		}

		enc.binsStaging, err = p.ensureBinsStaging()
		if err != nil {
			return nil, err
		}
		encoder.CopyBufferToBuffer(bins, enc.binsStaging, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: 256 * 4},
		})
		record(StageHistogram.String(), start)
	}

	return enc, nil
}

// ensureBinsStaging returns the persistent MapRead staging buffer for
// histogram readback, creating it on first use.
func (p *Processor) ensureBinsStaging() (hal.Buffer, error) {
	if p.binsStaging != nil {
		return p.binsStaging, nil
	}
	buf, err := p.session.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "darkroom_bins_staging",
		Size:  256 * 4,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: create histogram staging buffer: %w", err)
	}
	p.binsStaging = buf
	return buf, nil
}

// runGPU encodes every selected stage into one command buffer, submits
// once, and reads the result back through the staging ring.
func (p *Processor) runGPU(ctx context.Context, in Input, plan Plan) (*Output, error) {
	device := p.session.device
	queue := p.session.queue
	p.timing.Reset()

	res := &callResources{device: device, pool: p.pool}
	defer res.release()
	out := &Output{}

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "darkroom_edit",
	})
	if err != nil {
		return nil, fmt.Errorf("engine: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("darkroom_edit"); err != nil {
		return nil, fmt.Errorf("engine: begin encoding: %w", err)
	}
	encoding := true
	defer func() {
		if encoding {
			encoder.DiscardEncoding()
		}
	}()

	enc, err := p.encodeStages(res, encoder, in, plan, out, plan.Histogram)
	if err != nil {
		return nil, err
	}

	// Final image readback goes through the staging ring.
	submitStart := time.Now()
	pending, err := p.staging.Begin(encoder, enc.cur.Buf, enc.cur.SizeBytes())
	if err != nil {
		return nil, err
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		p.staging.Cancel(pending)
		return nil, fmt.Errorf("engine: end encoding: %w", err)
	}
	encoding = false
	res.cmdBuf = cmdBuf

	fence, err := device.CreateFence()
	if err != nil {
		p.staging.Cancel(pending)
		return nil, fmt.Errorf("engine: create fence: %w", err)
	}
	res.fence = fence

	if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		p.staging.Cancel(pending)
		return nil, fmt.Errorf("engine: submit: %w", err)
	}

	ch := p.staging.Finish(pending, func() error {
		ok, werr := device.Wait(fence, 1, fenceTimeout)
		if werr != nil {
			return fmt.Errorf("engine: wait for GPU: %w", werr)
		}
		if !ok {
			return fmt.Errorf("%w: fence not signaled after %v", ErrGPUTimeout, fenceTimeout)
		}
		return nil
	})

	var result ReadbackResult
	select {
	case result = <-ch:
	case <-ctx.Done():
		// The slot stays in flight until the fence resolves; drain so the
		// ring and the per-call resources are safe to release.
		<-ch
		return nil, ctx.Err()
	}
	if result.Err != nil {
		return nil, result.Err
	}
	record := func(stage string, start time.Time) {
		out.Stages = append(out.Stages, StageTiming{Stage: stage, CPU: time.Since(start)})
	}
	record("submit", submitStart)

	if plan.Histogram && enc.binsStaging != nil {
		raw := make([]byte, 256*4)
		if err := queue.ReadBuffer(enc.binsStaging, 0, raw); err != nil {
			return nil, fmt.Errorf("%w: histogram: %v", ErrReadback, err)
		}
		var bins [256]uint32
		for i := range bins {
			bins[i] = uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 |
				uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
		}
		out.Histogram = &bins
	}

	p.mergeGPUTimings(out)

	out.Pixels = unpackPixels(result.Data, enc.w, enc.h, plan.OutputChannels)
	out.Width = enc.w
	out.Height = enc.h
	return out, nil
}

// mergeGPUTimings fills in GPU timestamp durations when the device
// supports them; otherwise the stage records keep CPU clocks only.
func (p *Processor) mergeGPUTimings(out *Output) {
	gpu := p.timing.Read()
	if gpu == nil {
		return
	}
	for i := range out.Stages {
		if d, ok := gpu[out.Stages[i].Stage]; ok {
			out.Stages[i].GPU = d
			out.Stages[i].GPUValid = true
		}
	}
}

// Close releases every engine resource. Safe to call more than once.
func (p *Processor) Close() {
	if p.staging != nil {
		p.staging.Close()
		p.staging = nil
	}
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	if p.blit != nil {
		p.blit.Close()
		p.blit = nil
	}
	if p.binsStaging != nil {
		p.session.device.DestroyBuffer(p.binsStaging)
		p.binsStaging = nil
	}
	if p.kernels != nil {
		p.kernels.Close()
		p.kernels = nil
	}
	if p.session != nil {
		p.session.Close()
		p.session = nil
	}
	p.initialized = false
	p.cpuOnly = false
}
