package gpu

import (
	"context"
	"image"
)

// Device is the graphics device the frame core drives.
//
// Buffers created with MemoryHost can be mapped once; the returned slice
// stays valid until the buffer is destroyed. Submit executes a Recording
// after the Wait semaphores and signals the Fence when the device is done
// with every resource the recording referenced.
type Device interface {
	// Name returns the backend name the device was opened with.
	Name() string

	CreateBuffer(desc BufferDesc) (Buffer, error)
	DestroyBuffer(b Buffer)
	// BufferAlive reports whether b still refers to a live buffer.
	BufferAlive(b Buffer) bool
	// Map returns the persistent host mapping of a MemoryHost buffer.
	Map(b Buffer) ([]byte, error)

	CreateImage(desc ImageDesc) (Image, error)
	DestroyImage(img Image)

	// TransferToBuffer uploads data to the start of b and waits for
	// completion. It is meant for static data.
	TransferToBuffer(b Buffer, data []byte) error
	// TransferToImage uploads tightly packed texels and waits for completion.
	TransferToImage(img Image, data []byte) error

	CreatePipeline(desc PipelineDesc) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	CreateBindGroup(desc BindGroupDesc) (BindGroup, error)
	// UpdateBindGroup points the given slots of g at new resources.
	UpdateBindGroup(g BindGroup, entries []BindingEntry) error
	DestroyBindGroup(g BindGroup)

	CreateFence(signaled bool) (Fence, error)
	// WaitFence blocks until f is signaled or ctx is done.
	WaitFence(ctx context.Context, f Fence) error
	ResetFence(f Fence) error
	DestroyFence(f Fence)

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	Submit(r *Recording, info SubmitInfo) error
	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error
	Close() error
}

// ImageReader is implemented by devices that can copy an image back to
// host memory, which presenters use to display or save frames.
type ImageReader interface {
	ReadImage(img Image) (*image.RGBA, error)
}
