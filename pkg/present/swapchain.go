// Package present owns the images the renderer draws into and paces
// frames onto a terminal or an image file.
package present

import (
	"errors"
	"fmt"

	"github.com/taigrr/lumen/pkg/frame"
	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/logging"
)

// ErrEmptySwapchain is returned for a swapchain with no images or a zero
// size.
var ErrEmptySwapchain = errors.New("present: swapchain needs at least one image and a non-zero size")

// Swapchain is a fixed set of color images drawn to in rotation. Each
// image has an available semaphore, signaled when it may be drawn to,
// and a done semaphore, signaled when drawing finishes.
type Swapchain struct {
	dev    gpu.Device
	width  int
	height int
	next   int

	images    []gpu.Image
	available []gpu.Semaphore
	done      []gpu.Semaphore
}

// NewSwapchain creates n images of width x height.
func NewSwapchain(dev gpu.Device, n, width, height int) (*Swapchain, error) {
	if n < 1 {
		return nil, ErrEmptySwapchain
	}
	s := &Swapchain{dev: dev}
	for range n {
		a, err := dev.CreateSemaphore()
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("present: create semaphore: %w", err)
		}
		s.available = append(s.available, a)
		d, err := dev.CreateSemaphore()
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("present: create semaphore: %w", err)
		}
		s.done = append(s.done, d)
	}
	s.images = make([]gpu.Image, n)
	if err := s.Resize(width, height); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

// Resize recreates every image at the new size. The device is drained
// first so no submission still targets an old image.
func (s *Swapchain) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptySwapchain, width, height)
	}
	if width == s.width && height == s.height {
		return nil
	}
	if err := s.dev.WaitIdle(); err != nil {
		return fmt.Errorf("present: resize: %w", err)
	}
	s.destroyImages()
	for i := range s.images {
		img, err := s.dev.CreateImage(gpu.ImageDesc{
			Label:  fmt.Sprintf("swapchain %d", i),
			Width:  width,
			Height: height,
			Format: gpu.FormatRGBA8,
			Usage:  gpu.ImageAttachment,
		})
		if err != nil {
			s.destroyImages()
			return fmt.Errorf("present: create swapchain image: %w", err)
		}
		s.images[i] = img
	}
	s.width, s.height = width, height
	s.next = 0
	logging.Logger().Debug("swapchain resized", "width", width, "height", height, "images", len(s.images))
	return nil
}

func (s *Swapchain) destroyImages() {
	for i, img := range s.images {
		if !img.IsZero() {
			s.dev.DestroyImage(img)
		}
		s.images[i] = gpu.Image{}
	}
	s.width, s.height = 0, 0
}

// Acquire returns the next image index in rotation with its semaphores.
func (s *Swapchain) Acquire() (index int, available, done gpu.Semaphore) {
	index = s.next
	s.next = (s.next + 1) % len(s.images)
	return index, s.available[index], s.done[index]
}

// Len returns the number of images.
func (s *Swapchain) Len() int { return len(s.images) }

// Image returns image i.
func (s *Swapchain) Image(i int) gpu.Image { return s.images[i] }

// Size returns the image size.
func (s *Swapchain) Size() (width, height int) { return s.width, s.height }

// Targets describes the images for frame.Renderer.OnSwapchain.
func (s *Swapchain) Targets() frame.TargetSet {
	return frame.TargetSet{
		Width:  s.width,
		Height: s.height,
		Images: append([]gpu.Image(nil), s.images...),
	}
}

// Release destroys the images and semaphores.
func (s *Swapchain) Release() {
	s.destroyImages()
	for _, sem := range s.available {
		s.dev.DestroySemaphore(sem)
	}
	for _, sem := range s.done {
		s.dev.DestroySemaphore(sem)
	}
	s.available, s.done = nil, nil
}
