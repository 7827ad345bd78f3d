package engine

import (
	"time"

	"github.com/gogpu/wgpu/hal"
)

// gpuTimestamps is the optional interface a HAL device may implement to
// expose timestamp queries. None of the wgpu v0.27 backends implement
// it, so timings normally degrade to CPU clocks; the ring stays wired
// for devices that do.
type gpuTimestamps interface {
	// WriteTimestamp records a timestamp into the given slot on the
	// encoder (passed as the backend-specific encoder handle).
	WriteTimestamp(encoder any, slot int)

	// ResolveTimestamps copies slots [0, count) to the CPU after the
	// submission completes.
	ResolveTimestamps(count int) ([]uint64, error)

	// TimestampPeriodNS converts timestamp ticks to nanoseconds.
	TimestampPeriodNS() float64
}

// timingPair is one begin/end slot pair bound to a stage name.
type timingPair struct {
	stage string
	begin int
	end   int
}

// TimingRing manages GPU timestamp slots for one submission. Begin
// returns a negative slot when the device lacks timestamp support;
// callers treat that as "skip GPU timing", never as an error. CPU
// wall-clock timing is the orchestrator's job and always happens.
type TimingRing struct {
	ts        gpuTimestamps
	supported bool

	capacity int
	next     int
	pairs    []timingPair
}

// NewTimingRing probes the device for timestamp support. capacity is
// the number of begin/end pairs per submission.
func NewTimingRing(device hal.Device, capacity int) *TimingRing {
	if capacity <= 0 {
		capacity = 16
	}
	t := &TimingRing{capacity: capacity}
	if ts, ok := device.(gpuTimestamps); ok {
		t.ts = ts
		t.supported = true
	} else {
		slogger().Debug("engine: GPU timestamps unavailable, using CPU clocks only")
	}
	return t
}

// Supported reports whether the device exposes timestamp queries.
func (t *TimingRing) Supported() bool { return t.supported }

// Begin opens a timing pair for a stage and writes the begin timestamp.
// Returns the pair index, or -1 when unsupported or the ring is full.
func (t *TimingRing) Begin(encoder any, stage string) int {
	if !t.supported || t.next+2 > t.capacity*2 {
		return -1
	}
	idx := len(t.pairs)
	t.pairs = append(t.pairs, timingPair{stage: stage, begin: t.next, end: -1})
	t.ts.WriteTimestamp(encoder, t.next)
	t.next++
	return idx
}

// End writes the end timestamp for a pair opened with Begin. Negative
// indices are ignored.
func (t *TimingRing) End(encoder any, idx int) {
	if !t.supported || idx < 0 || idx >= len(t.pairs) {
		return
	}
	t.pairs[idx].end = t.next
	t.ts.WriteTimestamp(encoder, t.next)
	t.next++
}

// Read resolves all written slots and returns the measured duration per
// stage, in the order the pairs were opened. Returns nil when
// unsupported or nothing was recorded.
func (t *TimingRing) Read() map[string]time.Duration {
	if !t.supported || t.next == 0 {
		return nil
	}
	ticks, err := t.ts.ResolveTimestamps(t.next)
	if err != nil {
		slogger().Warn("engine: timestamp resolve failed", "error", err)
		return nil
	}
	period := t.ts.TimestampPeriodNS()
	out := make(map[string]time.Duration, len(t.pairs))
	for _, p := range t.pairs {
		if p.end < 0 || p.begin >= len(ticks) || p.end >= len(ticks) {
			continue
		}
		ns := float64(ticks[p.end]-ticks[p.begin]) * period
		out[p.stage] = time.Duration(ns)
	}
	return out
}

// Reset recycles the ring for the next submission.
func (t *TimingRing) Reset() {
	t.next = 0
	t.pairs = t.pairs[:0]
}
