// Package stream manages growable host-to-device streaming buffers.
//
// A Stream pairs a host-visible staging buffer with a device-local buffer
// of the same capacity. Each frame the caller ensures capacity, writes into
// the mapped staging memory, and records a copy into the device buffer.
package stream

import (
	"fmt"

	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/logging"
)

// Quantum is the allocation granularity of stream buffers in bytes.
const Quantum = 4096

// RoundUp rounds n up to a multiple of Quantum.
func RoundUp(n uint64) uint64 {
	return (n + Quantum - 1) / Quantum * Quantum
}

// Stream is a growable staging/device buffer pair. The zero capacity
// stream owns no buffers.
type Stream struct {
	dev   gpu.Device
	label string
	usage gpu.BufferUsage

	capacity uint64
	staging  gpu.Buffer
	device   gpu.Buffer
	mapped   []byte
}

// New creates an empty stream whose device buffer will carry usage.
func New(dev gpu.Device, label string, usage gpu.BufferUsage) *Stream {
	return &Stream{dev: dev, label: label, usage: usage}
}

// EnsureCapacity grows the stream to hold at least needed bytes. When it
// reallocates, the previous buffers are released, the contents are not
// preserved, and it reports true; callers must then rebind the device
// buffer before any draw reads it.
func (s *Stream) EnsureCapacity(needed uint64) (bool, error) {
	if s.capacity > 0 && s.capacity >= needed {
		return false, nil
	}
	s.Release()

	size := RoundUp(max(needed, 1))
	staging, err := s.dev.CreateBuffer(gpu.BufferDesc{
		Label:  s.label + " staging",
		Size:   size,
		Usage:  gpu.UsageTransferSrc,
		Memory: gpu.MemoryHost,
	})
	if err != nil {
		return false, fmt.Errorf("stream %s: allocate staging: %w", s.label, err)
	}
	device, err := s.dev.CreateBuffer(gpu.BufferDesc{
		Label:  s.label,
		Size:   size,
		Usage:  s.usage | gpu.UsageTransferDst,
		Memory: gpu.MemoryDevice,
	})
	if err != nil {
		s.dev.DestroyBuffer(staging)
		return false, fmt.Errorf("stream %s: allocate device buffer: %w", s.label, err)
	}
	mapped, err := s.dev.Map(staging)
	if err != nil {
		s.dev.DestroyBuffer(staging)
		s.dev.DestroyBuffer(device)
		return false, fmt.Errorf("stream %s: map staging: %w", s.label, err)
	}

	s.staging, s.device, s.mapped = staging, device, mapped
	s.capacity = size
	logging.Logger().Debug("re-allocated stream buffers", "stream", s.label, "needed", needed, "capacity", size)
	return true, nil
}

// Write copies data into the staging buffer at offset.
func (s *Stream) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > s.capacity {
		return fmt.Errorf("stream %s: write [%d, %d) beyond capacity %d: %w",
			s.label, offset, offset+uint64(len(data)), s.capacity, gpu.ErrOutOfRange)
	}
	copy(s.mapped[offset:], data)
	return nil
}

// Label returns the stream's name.
func (s *Stream) Label() string { return s.label }

// Capacity returns the size of both buffers in bytes.
func (s *Stream) Capacity() uint64 { return s.capacity }

// Staging returns the host-visible buffer.
func (s *Stream) Staging() gpu.Buffer { return s.staging }

// Device returns the device-local buffer.
func (s *Stream) Device() gpu.Buffer { return s.device }

// Release frees both buffers and resets the capacity to zero.
func (s *Stream) Release() {
	if s.capacity == 0 {
		return
	}
	s.dev.DestroyBuffer(s.staging)
	s.dev.DestroyBuffer(s.device)
	s.staging, s.device, s.mapped = gpu.Buffer{}, gpu.Buffer{}, nil
	s.capacity = 0
}
