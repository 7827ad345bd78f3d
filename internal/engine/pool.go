// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DefaultPoolCapacity bounds the number of idle pooled images. Beyond
// the bound the least-recently-released image is destroyed.
const DefaultPoolCapacity = 8

// PoolStats exposes pool counters. Mainly used by tests to assert reuse
// discipline.
type PoolStats struct {
	// Allocations is the number of device buffer allocations performed.
	Allocations uint64

	// Reuses is the number of Acquire calls served from the free list.
	Reuses uint64

	// Evictions is the number of idle images destroyed over capacity.
	Evictions uint64

	// Idle is the current number of pooled free images.
	Idle int

	// Held is the current number of acquired, not yet released images.
	Held int
}

// String returns a compact human-readable summary.
func (s PoolStats) String() string {
	return fmt.Sprintf("Pool[%d alloc, %d reuse, %d evict, %d idle, %d held]",
		s.Allocations, s.Reuses, s.Evictions, s.Idle, s.Held)
}

// ImagePool reuses GPU image buffers across pipeline calls. Images are
// bucketed by exact (width, height, usage) key; Release never destroys,
// it returns the image to its bucket. Only capacity eviction and Clear
// free device memory.
//
// ImagePool is safe for concurrent use.
type ImagePool struct {
	mu sync.Mutex

	device hal.Device

	// free maps bucket keys to idle images.
	free map[imageKey][]*Image

	// lru orders idle images, front = most recently released.
	lru *list.List

	// elems tracks each idle image's position in lru.
	elems map[*Image]*list.Element

	capacity int
	held     int

	allocations uint64
	reuses      uint64
	evictions   uint64

	closed bool
}

// NewImagePool creates a pool bound to the given device. capacity <= 0
// selects DefaultPoolCapacity.
func NewImagePool(device hal.Device, capacity int) *ImagePool {
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}
	return &ImagePool{
		device:   device,
		free:     make(map[imageKey][]*Image),
		lru:      list.New(),
		elems:    make(map[*Image]*list.Element),
		capacity: capacity,
	}
}

// Acquire returns an image of exactly w x h pixels with the given usage,
// reusing an idle one when the bucket has a hit. The only failure mode
// is a device allocation error.
func (p *ImagePool) Acquire(w, h int, usage gputypes.BufferUsage, label string) (*Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	key := imageKey{width: w, height: h, usage: usage}
	if bucket := p.free[key]; len(bucket) > 0 {
		img := bucket[len(bucket)-1]
		p.free[key] = bucket[:len(bucket)-1]
		p.lru.Remove(p.elems[img])
		delete(p.elems, img)
		p.held++
		p.reuses++
		return img, nil
	}

	size := uint64(w) * uint64(h) * 4
	buf, err := p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: create image buffer %s (%dx%d): %w", label, w, h, err)
	}
	p.allocations++
	p.held++
	slogger().Debug("engine: image allocated", "label", label, "size", size)
	return &Image{Buf: buf, Width: w, Height: h, key: key, pool: p}, nil
}

// Release returns an image to its bucket. The image must not be used
// afterwards until reacquired. Releasing over capacity destroys the
// least-recently-released idle image.
func (p *ImagePool) Release(img *Image) {
	if img == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.device.DestroyBuffer(img.Buf)
		return
	}

	p.free[img.key] = append(p.free[img.key], img)
	p.elems[img] = p.lru.PushFront(img)
	if p.held > 0 {
		p.held--
	}

	for p.lru.Len() > p.capacity {
		p.evictLocked()
	}
}

// evictLocked destroys the least-recently-released idle image.
func (p *ImagePool) evictLocked() {
	back := p.lru.Back()
	if back == nil {
		return
	}
	victim := back.Value.(*Image)
	p.lru.Remove(back)
	delete(p.elems, victim)

	bucket := p.free[victim.key]
	for i, img := range bucket {
		if img == victim {
			p.free[victim.key] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	p.device.DestroyBuffer(victim.Buf)
	p.evictions++
	slogger().Debug("engine: image evicted",
		"size", victim.SizeBytes(), "idle", p.lru.Len())
}

// Clear destroys every idle image. It fails with ErrImagesHeld while
// acquired images are outstanding.
func (p *ImagePool) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.held > 0 {
		return fmt.Errorf("%w: %d outstanding", ErrImagesHeld, p.held)
	}
	for e := p.lru.Front(); e != nil; e = e.Next() {
		p.device.DestroyBuffer(e.Value.(*Image).Buf)
	}
	p.lru.Init()
	p.free = make(map[imageKey][]*Image)
	p.elems = make(map[*Image]*list.Element)
	return nil
}

// Close clears the pool and rejects further Acquire calls. Images
// released after Close are destroyed immediately.
func (p *ImagePool) Close() {
	p.mu.Lock()
	for e := p.lru.Front(); e != nil; e = e.Next() {
		p.device.DestroyBuffer(e.Value.(*Image).Buf)
	}
	p.lru.Init()
	p.free = make(map[imageKey][]*Image)
	p.elems = make(map[*Image]*list.Element)
	p.closed = true
	p.mu.Unlock()
}

// Stats returns a snapshot of the pool counters.
func (p *ImagePool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Allocations: p.allocations,
		Reuses:      p.reuses,
		Evictions:   p.evictions,
		Idle:        p.lru.Len(),
		Held:        p.held,
	}
}
