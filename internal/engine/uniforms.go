// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"encoding/binary"
	"math"
)

// Uniform layouts mirror the Params structs in the WGSL sources. All
// fields are 4-byte scalars, padded to a 16-byte multiple.

type rotateUniforms struct {
	srcW, srcH uint32
	dstW, dstH uint32
	quarter    uint32
	sinA, cosA float32
}

func (u rotateUniforms) toBytes() []byte {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint32(b[0:], u.srcW)
	binary.LittleEndian.PutUint32(b[4:], u.srcH)
	binary.LittleEndian.PutUint32(b[8:], u.dstW)
	binary.LittleEndian.PutUint32(b[12:], u.dstH)
	binary.LittleEndian.PutUint32(b[16:], u.quarter)
	binary.LittleEndian.PutUint32(b[24:], math.Float32bits(u.sinA))
	binary.LittleEndian.PutUint32(b[28:], math.Float32bits(u.cosA))
	return b
}

type toneUniforms struct {
	width, height uint32
	adjust        Adjustments
}

func (u toneUniforms) toBytes() []byte {
	b := make([]byte, 64)
	binary.LittleEndian.PutUint32(b[0:], u.width)
	binary.LittleEndian.PutUint32(b[4:], u.height)
	for i, v := range u.adjust.fields() {
		binary.LittleEndian.PutUint32(b[16+i*4:], math.Float32bits(v))
	}
	return b
}

type downsampleUniforms struct {
	srcW, srcH uint32
	dstW, dstH uint32
	block      uint32
}

func (u downsampleUniforms) toBytes() []byte {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint32(b[0:], u.srcW)
	binary.LittleEndian.PutUint32(b[4:], u.srcH)
	binary.LittleEndian.PutUint32(b[8:], u.dstW)
	binary.LittleEndian.PutUint32(b[12:], u.dstH)
	binary.LittleEndian.PutUint32(b[16:], u.block)
	return b
}

type extentUniforms struct {
	width, height uint32
	extra         uint32
}

func (u extentUniforms) toBytes() []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:], u.width)
	binary.LittleEndian.PutUint32(b[4:], u.height)
	binary.LittleEndian.PutUint32(b[8:], u.extra)
	return b
}

// maskStride is the number of f32 words per mask in the mask storage
// buffer. Offsets within a record match masks.wgsl.
const maskStride = 24

func encodeMasks(masks []Mask) []byte {
	b := make([]byte, len(masks)*maskStride*4)
	put := func(base, word int, v float32) {
		binary.LittleEndian.PutUint32(b[(base*maskStride+word)*4:], math.Float32bits(v))
	}
	for i, m := range masks {
		if m.Kind == MaskRadial {
			put(i, 0, 1)
		}
		if m.Invert {
			put(i, 1, 1)
		}
		put(i, 2, m.Feather)
		put(i, 4, m.X0)
		put(i, 5, m.Y0)
		put(i, 6, m.X1)
		put(i, 7, m.Y1)
		put(i, 8, m.CenterX)
		put(i, 9, m.CenterY)
		put(i, 10, m.RadiusX)
		put(i, 11, m.RadiusY)
		for j, v := range m.Adjust.fields() {
			put(i, 12+j, v)
		}
	}
	return b
}

// encodeLUT widens the 256 curve bytes to the u32 array the curve
// fragment indexes.
func encodeLUT(lut *[256]uint8) []byte {
	b := make([]byte, 256*4)
	for i, v := range lut {
		binary.LittleEndian.PutUint32(b[i*4:], uint32(v))
	}
	return b
}
