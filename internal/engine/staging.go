// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DefaultStagingSlots is the number of readback buffers in flight before
// Begin applies backpressure.
const DefaultStagingSlots = 3

// SlotState is the lifecycle state of one staging slot.
type SlotState int

const (
	// SlotFree means the slot can be issued to a new readback.
	SlotFree SlotState = iota

	// SlotSubmitted means a copy into the slot has been recorded or is
	// executing on the GPU.
	SlotSubmitted

	// SlotMapped means the slot's bytes are being read on the CPU.
	SlotMapped
)

// String returns the state name.
func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "Free"
	case SlotSubmitted:
		return "Submitted"
	case SlotMapped:
		return "Mapped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// stagingSlot is one CPU-mappable buffer in the ring. The buffer grows
// lazily to the largest readback it has served.
type stagingSlot struct {
	buf   hal.Buffer
	size  uint64
	state SlotState
}

// ReadbackResult is delivered on the channel returned by Finish.
type ReadbackResult struct {
	Data []byte
	Err  error
}

// PendingReadback is a readback whose copy has been recorded but not yet
// resolved.
type PendingReadback struct {
	slot *stagingSlot
	size uint64
}

// StagingRing manages the CPU-mappable readback buffers. A slot moves
// Free -> Submitted when its copy is recorded, Submitted -> Mapped while
// its bytes are read after the fence signals, and back to Free once the
// result is delivered. A slot is never reissued while Submitted or
// Mapped; when all slots are in flight, Begin blocks until one frees up.
//
// StagingRing is safe for concurrent use.
type StagingRing struct {
	mu   sync.Mutex
	cond *sync.Cond

	device hal.Device
	queue  hal.Queue
	slots  []*stagingSlot
	closed bool
}

// NewStagingRing creates a ring with the given number of slots.
// slots <= 0 selects DefaultStagingSlots.
func NewStagingRing(device hal.Device, queue hal.Queue, slots int) *StagingRing {
	if slots <= 0 {
		slots = DefaultStagingSlots
	}
	r := &StagingRing{device: device, queue: queue}
	r.cond = sync.NewCond(&r.mu)
	for i := 0; i < slots; i++ {
		r.slots = append(r.slots, &stagingSlot{})
	}
	return r
}

// Begin claims a free slot, sizes its buffer for size bytes, and records
// a copy from src into it on the given encoder. Blocks while every slot
// is Submitted or Mapped.
func (r *StagingRing) Begin(encoder hal.CommandEncoder, src hal.Buffer, size uint64) (*PendingReadback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var slot *stagingSlot
	for {
		if r.closed {
			return nil, ErrRingClosed
		}
		slot = r.freeSlotLocked()
		if slot != nil {
			break
		}
		r.cond.Wait()
	}

	if slot.buf == nil || slot.size < size {
		if slot.buf != nil {
			r.device.DestroyBuffer(slot.buf)
			slot.buf = nil
		}
		buf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "darkroom_staging",
			Size:  size,
			Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, fmt.Errorf("engine: create staging buffer: %w", err)
		}
		slot.buf = buf
		slot.size = size
	}

	encoder.CopyBufferToBuffer(src, slot.buf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	slot.state = SlotSubmitted
	return &PendingReadback{slot: slot, size: size}, nil
}

func (r *StagingRing) freeSlotLocked() *stagingSlot {
	for _, s := range r.slots {
		if s.state == SlotFree {
			return s
		}
	}
	return nil
}

// Finish resolves a pending readback asynchronously. wait must block
// until the GPU has executed the recorded copy (typically a fence wait);
// it runs on a background goroutine. The returned channel delivers
// exactly one result, after which the slot is Free again.
func (r *StagingRing) Finish(p *PendingReadback, wait func() error) <-chan ReadbackResult {
	ch := make(chan ReadbackResult, 1)
	go func() {
		err := wait()

		var data []byte
		if err == nil {
			r.mu.Lock()
			p.slot.state = SlotMapped
			buf := p.slot.buf
			r.mu.Unlock()

			data = make([]byte, p.size)
			if rerr := r.queue.ReadBuffer(buf, 0, data); rerr != nil {
				err = fmt.Errorf("%w: %v", ErrReadback, rerr)
				data = nil
			}
		}

		r.mu.Lock()
		p.slot.state = SlotFree
		r.mu.Unlock()
		r.cond.Broadcast()

		ch <- ReadbackResult{Data: data, Err: err}
	}()
	return ch
}

// Cancel returns a slot claimed by Begin without resolving it. Used when
// encoding fails after the copy was recorded.
func (r *StagingRing) Cancel(p *PendingReadback) {
	if p == nil {
		return
	}
	r.mu.Lock()
	p.slot.state = SlotFree
	r.mu.Unlock()
	r.cond.Broadcast()
}

// SlotStates returns a snapshot of the slot states in ring order.
func (r *StagingRing) SlotStates() []SlotState {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]SlotState, len(r.slots))
	for i, s := range r.slots {
		states[i] = s.state
	}
	return states
}

// Close destroys the slot buffers. It waits for in-flight readbacks to
// resolve before tearing down.
func (r *StagingRing) Close() {
	r.mu.Lock()
	r.closed = true
	for r.inFlightLocked() {
		r.cond.Wait()
	}
	for _, s := range r.slots {
		if s.buf != nil {
			r.device.DestroyBuffer(s.buf)
			s.buf = nil
		}
	}
	r.mu.Unlock()
	r.cond.Broadcast()
}

func (r *StagingRing) inFlightLocked() bool {
	for _, s := range r.slots {
		if s.state != SlotFree {
			return true
		}
	}
	return false
}
