package gpu

import "errors"

var (
	// ErrUnknownBackend is returned by Open for an unregistered name.
	ErrUnknownBackend = errors.New("gpu: unknown backend")

	// ErrStaleHandle is returned when a handle's resource was destroyed
	// or the handle was never issued.
	ErrStaleHandle = errors.New("gpu: stale or invalid handle")

	// ErrStaleBinding is returned when a draw reads through a binding
	// whose resource no longer exists.
	ErrStaleBinding = errors.New("gpu: binding refers to a destroyed resource")

	// ErrMissingBarrier is returned when a draw reads a buffer written by
	// a transfer with no barrier in between.
	ErrMissingBarrier = errors.New("gpu: draw reads transfer destination without a barrier")

	// ErrNotMappable is returned when mapping a buffer that is not host visible.
	ErrNotMappable = errors.New("gpu: buffer is not host visible")

	// ErrOutOfRange is returned for copies and writes past a resource's end.
	ErrOutOfRange = errors.New("gpu: range out of bounds")

	// ErrUsage is returned when a resource is used in a way its usage
	// flags do not allow.
	ErrUsage = errors.New("gpu: usage not permitted by resource flags")

	// ErrOutOfMemory is returned when an allocation cannot be satisfied.
	ErrOutOfMemory = errors.New("gpu: out of device memory")

	// ErrPassOpen is returned for commands that are illegal inside a
	// render pass, and for a pass left open at Finish.
	ErrPassOpen = errors.New("gpu: render pass is open")

	// ErrNoPass is returned for draw-state commands outside a render pass.
	ErrNoPass = errors.New("gpu: no render pass is open")

	// ErrNoPipeline is returned for a draw with no pipeline bound.
	ErrNoPipeline = errors.New("gpu: draw without a pipeline")

	// ErrClosed is returned by a device after Close.
	ErrClosed = errors.New("gpu: device closed")

	// ErrFenceSignaled is returned when submitting with a fence that was
	// not reset.
	ErrFenceSignaled = errors.New("gpu: fence already signaled")

	// ErrDeadlock is returned when waiting on a fence no submission will
	// ever signal.
	ErrDeadlock = errors.New("gpu: wait on unsignaled fence with no work in flight")
)
