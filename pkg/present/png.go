package present

import (
	"errors"
	"fmt"

	"github.com/taigrr/lumen/pkg/frame"
	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/render"
)

// ErrNothingPresented is returned when saving before any frame.
var ErrNothingPresented = errors.New("present: no frame presented")

// PNGPresenter keeps the last presented image for writing to a PNG.
type PNGPresenter struct {
	reader gpu.ImageReader
	fb     *render.Framebuffer
	stats  frame.Stats
	count  int
}

// NewPNGPresenter returns a presenter reading images back from reader.
func NewPNGPresenter(reader gpu.ImageReader) *PNGPresenter {
	return &PNGPresenter{reader: reader, fb: render.NewFramebuffer(0, 0)}
}

// Present implements Presenter.
func (p *PNGPresenter) Present(img gpu.Image, st frame.Stats) error {
	rgba, err := p.reader.ReadImage(img)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	p.fb.CopyFrom(rgba)
	p.stats = st
	p.count++
	return nil
}

// Framebuffer returns the last presented image.
func (p *PNGPresenter) Framebuffer() *render.Framebuffer { return p.fb }

// Stats returns the statistics of the last presented frame.
func (p *PNGPresenter) Stats() frame.Stats { return p.stats }

// Save writes the last presented image to path.
func (p *PNGPresenter) Save(path string) error {
	if p.count == 0 {
		return ErrNothingPresented
	}
	return p.fb.SavePNG(path)
}
