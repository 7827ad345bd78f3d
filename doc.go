// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package darkroom implements a GPU-accelerated edit pipeline for
// interactive photo adjustment.
//
// The pipeline takes a decoded RGB or RGBA pixel buffer together with a
// set of edit parameters (rotation, tonal adjustments, tone curve,
// gradient masks, draft-resolution scaling) and produces the edited
// image. Stages that resolve to identity are skipped entirely; the
// tonal adjustments and the tone curve fuse into a single kernel when
// both are active. All active stages are recorded into one command
// batch and submitted exactly once per call.
//
// A Pipeline is created with New and must be initialized before use:
//
//	p := darkroom.New(darkroom.Config{})
//	gpuReady, err := p.Initialize(ctx)
//	if err != nil { ... }
//	defer p.Destroy()
//
//	result, err := p.Process(ctx, input, params)
//
// Initialize reports whether a GPU device is available. When it is not
// (or when Config.UseCPUFallback is set), Process runs the same numeric
// contract on the CPU reference implementation, so callers never need
// to branch on device availability.
//
// darkroom produces no log output by default. Call SetLogger to enable
// structured logging via log/slog.
package darkroom
