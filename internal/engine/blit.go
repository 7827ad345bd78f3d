// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// BlitPipeline converts the packed RGBA working buffer into a surface
// texture with a fullscreen-triangle render pass. The byte-order swap to
// the surface format happens in the target write, not in the shader.
type BlitPipeline struct {
	device hal.Device

	module     hal.ShaderModule
	bgLayout   hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline
}

// NewBlitPipeline compiles the blit shader and builds the render
// pipeline targeting BGRA8 surfaces.
func NewBlitPipeline(device hal.Device) (*BlitPipeline, error) {
	b := &BlitPipeline{device: device}

	module, err := compileModule(device, "darkroom_blit", blitWGSL)
	if err != nil {
		return nil, err
	}
	b.module = module

	b.bgLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "darkroom_blit_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
			},
		},
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("engine: create blit bind group layout: %w", err)
	}

	b.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "darkroom_blit_pl",
		BindGroupLayouts: []hal.BindGroupLayout{b.bgLayout},
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("engine: create blit pipeline layout: %w", err)
	}

	b.pipeline, err = device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "darkroom_blit",
		Layout: b.pipeLayout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    gputypes.TextureFormatBGRA8Unorm,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("engine: create blit pipeline: %w", err)
	}
	return b, nil
}

// RecordBlit records the fullscreen draw into a render pass targeting
// the given view.
func (b *BlitPipeline) RecordBlit(encoder hal.CommandEncoder, view hal.TextureView, bg hal.BindGroup) {
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "darkroom_blit_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	rp.SetPipeline(b.pipeline)
	rp.SetBindGroup(0, bg, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()
}

// Close releases the pipeline objects. Safe on a partially built value.
func (b *BlitPipeline) Close() {
	if b.pipeline != nil {
		b.device.DestroyRenderPipeline(b.pipeline)
		b.pipeline = nil
	}
	if b.pipeLayout != nil {
		b.device.DestroyPipelineLayout(b.pipeLayout)
		b.pipeLayout = nil
	}
	if b.bgLayout != nil {
		b.device.DestroyBindGroupLayout(b.bgLayout)
		b.bgLayout = nil
	}
	if b.module != nil {
		b.device.DestroyShaderModule(b.module)
		b.module = nil
	}
}

// RunToView executes an edit plan and blits the result into the caller's
// texture view in the same submission, skipping the CPU readback. The
// histogram stage never runs on this path.
func (p *Processor) RunToView(ctx context.Context, in Input, plan Plan, view hal.TextureView) (*Output, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	if p.cpuOnly {
		return nil, ErrNoDevice
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.blit == nil {
		blit, err := NewBlitPipeline(p.session.device)
		if err != nil {
			return nil, err
		}
		p.blit = blit
	}

	device := p.session.device
	queue := p.session.queue
	p.timing.Reset()

	res := &callResources{device: device, pool: p.pool}
	defer res.release()
	out := &Output{}

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "darkroom_view",
	})
	if err != nil {
		return nil, fmt.Errorf("engine: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("darkroom_view"); err != nil {
		return nil, fmt.Errorf("engine: begin encoding: %w", err)
	}
	encoding := true
	defer func() {
		if encoding {
			encoder.DiscardEncoding()
		}
	}()

	enc, err := p.encodeStages(res, encoder, in, plan, out, false)
	if err != nil {
		return nil, err
	}

	submitStart := time.Now()
	u, err := p.uniformBuffer(res, "darkroom_blit_u", extentUniforms{
		width: uint32(enc.w), height: uint32(enc.h),
	}.toBytes())
	if err != nil {
		return nil, err
	}
	bg, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "darkroom_blit_bg",
		Layout: p.blit.bgLayout,
		Entries: []gputypes.BindGroupEntry{
			bufferEntry(0, u),
			bufferEntry(1, enc.cur.Buf),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("engine: create blit bind group: %w", err)
	}
	res.bindGroups = append(res.bindGroups, bg)

	p.blit.RecordBlit(encoder, view, bg)

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("engine: end encoding: %w", err)
	}
	encoding = false
	res.cmdBuf = cmdBuf

	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("engine: create fence: %w", err)
	}
	res.fence = fence

	if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("engine: submit: %w", err)
	}
	ok, err := device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return nil, fmt.Errorf("engine: wait for GPU: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: fence not signaled after %v", ErrGPUTimeout, fenceTimeout)
	}
	out.Stages = append(out.Stages, StageTiming{Stage: "submit", CPU: time.Since(submitStart)})

	p.mergeGPUTimings(out)
	out.Width = enc.w
	out.Height = enc.h
	return out, nil
}
