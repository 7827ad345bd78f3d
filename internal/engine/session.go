// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Session owns the HAL device and queue for one processor. The device is
// either borrowed from an external provider (shared with a UI surface)
// or opened standalone on the Vulkan backend.
type Session struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	// external is true when the device is shared; Close must not destroy it.
	external bool
}

// halProvider is the shared-device protocol: any value exposing the raw
// HAL handles can lend its device to the processor.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// openSharedSession borrows the device from an external provider.
func openSharedSession(provider any) (*Session, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("engine: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("engine: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("engine: provider HalQueue is not hal.Queue")
	}
	return &Session{device: device, queue: queue, external: true}, nil
}

// openStandaloneSession creates a compute-only Vulkan device. Preference
// order is discrete GPU, integrated GPU, then whatever the backend
// exposes first.
func openStandaloneSession() (*Session, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("engine: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("engine: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("engine: no GPU adapters found")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("engine: open device: %w", err)
	}

	slogger().Info("engine: GPU initialized (standalone)", "adapter", selected.Info.Name)
	return &Session{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
	}, nil
}

// Close releases the device resources the session owns. Shared devices
// are only detached, never destroyed.
func (s *Session) Close() {
	if s == nil {
		return
	}
	if !s.external {
		if s.device != nil {
			s.device.Destroy()
		}
		if s.instance != nil {
			s.instance.Destroy()
		}
	}
	s.device = nil
	s.queue = nil
	s.instance = nil
}
