package engine

import (
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// testEncoder opens a recording command encoder on the noop device.
func testEncoder(t *testing.T, device hal.Device) hal.CommandEncoder {
	t.Helper()
	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "staging_test"})
	if err != nil {
		t.Fatalf("CreateCommandEncoder failed: %v", err)
	}
	if err := encoder.BeginEncoding("staging_test"); err != nil {
		t.Fatalf("BeginEncoding failed: %v", err)
	}
	return encoder
}

func testSourceBuffer(t *testing.T, device hal.Device, size uint64) hal.Buffer {
	t.Helper()
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "staging_test_src",
		Size:  size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	return buf
}

func TestStagingRingInitialStates(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	ring := NewStagingRing(device, queue, 3)
	defer ring.Close()

	states := ring.SlotStates()
	if len(states) != 3 {
		t.Fatalf("got %d slots, want 3", len(states))
	}
	for i, s := range states {
		if s != SlotFree {
			t.Errorf("slot %d = %v, want Free", i, s)
		}
	}
}

// A slot must walk Free -> Submitted -> Free and deliver exactly one
// result. The noop backend may fail the actual readback; only the state
// machine is asserted here.
func TestStagingRingLifecycle(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	ring := NewStagingRing(device, queue, 2)
	defer ring.Close()

	encoder := testEncoder(t, device)
	defer encoder.DiscardEncoding()
	src := testSourceBuffer(t, device, 256)
	defer device.DestroyBuffer(src)

	pending, err := ring.Begin(encoder, src, 256)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	states := ring.SlotStates()
	if states[0] != SlotSubmitted {
		t.Errorf("slot 0 = %v after Begin, want Submitted", states[0])
	}

	ch := ring.Finish(pending, func() error { return nil })

	result, ok := <-ch
	if !ok {
		t.Fatal("result channel closed without a value")
	}
	if result.Err == nil && len(result.Data) != 256 {
		t.Errorf("got %d bytes, want 256", len(result.Data))
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("channel delivered a second result")
		}
	case <-time.After(50 * time.Millisecond):
	}

	deadline := time.Now().Add(time.Second)
	for ring.SlotStates()[0] != SlotFree {
		if time.Now().After(deadline) {
			t.Fatal("slot did not return to Free")
		}
		time.Sleep(time.Millisecond)
	}
}

// Begin must block while every slot is in flight and resume once a
// readback resolves.
func TestStagingRingBackpressure(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	ring := NewStagingRing(device, queue, 2)
	defer ring.Close()

	encoder := testEncoder(t, device)
	defer encoder.DiscardEncoding()
	src := testSourceBuffer(t, device, 64)
	defer device.DestroyBuffer(src)

	p1, err := ring.Begin(encoder, src, 64)
	if err != nil {
		t.Fatalf("Begin 1 failed: %v", err)
	}
	p2, err := ring.Begin(encoder, src, 64)
	if err != nil {
		t.Fatalf("Begin 2 failed: %v", err)
	}

	type beginResult struct {
		pending *PendingReadback
		err     error
	}
	third := make(chan beginResult, 1)
	go func() {
		p, err := ring.Begin(encoder, src, 64)
		third <- beginResult{p, err}
	}()

	select {
	case <-third:
		t.Fatal("third Begin returned while all slots were in flight")
	case <-time.After(50 * time.Millisecond):
	}

	release := make(chan struct{})
	ch := ring.Finish(p1, func() error {
		<-release
		return nil
	})
	close(release)
	<-ch

	select {
	case r := <-third:
		if r.err != nil {
			t.Fatalf("third Begin failed: %v", r.err)
		}
		ring.Cancel(r.pending)
	case <-time.After(time.Second):
		t.Fatal("third Begin did not resume after a slot freed")
	}
	ring.Cancel(p2)
}

func TestStagingRingCancel(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	ring := NewStagingRing(device, queue, 1)
	defer ring.Close()

	encoder := testEncoder(t, device)
	defer encoder.DiscardEncoding()
	src := testSourceBuffer(t, device, 64)
	defer device.DestroyBuffer(src)

	pending, err := ring.Begin(encoder, src, 64)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	ring.Cancel(pending)

	if ring.SlotStates()[0] != SlotFree {
		t.Error("slot not Free after Cancel")
	}

	// The freed slot must be issuable again.
	pending, err = ring.Begin(encoder, src, 64)
	if err != nil {
		t.Fatalf("Begin after Cancel failed: %v", err)
	}
	ring.Cancel(pending)
}

func TestSlotStateString(t *testing.T) {
	cases := map[SlotState]string{
		SlotFree:      "Free",
		SlotSubmitted: "Submitted",
		SlotMapped:    "Mapped",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(state), got, want)
		}
	}
}
