package present

import (
	"fmt"
	"time"

	uv "github.com/charmbracelet/ultraviolet"

	"github.com/taigrr/lumen/pkg/frame"
	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/input"
	"github.com/taigrr/lumen/pkg/render"
)

// Screen is a cell grid that can be flushed to the terminal.
// *uv.Terminal satisfies it.
type Screen interface {
	uv.Screen
	Display() error
}

// CellSize returns the framebuffer size that fills a terminal of
// cols x rows cells, two pixels per cell vertically.
func CellSize(cols, rows int) (width, height int) {
	return cols, rows * 2
}

// TerminalPresenter reads presented images back from the device and
// draws them as half-block cells with a HUD on top.
type TerminalPresenter struct {
	reader gpu.ImageReader
	scr    Screen
	fb     *render.Framebuffer
	hud    HUD

	// ShowHUD toggles the overlay. It starts on and "?" flips it.
	ShowHUD bool
}

// NewTerminalPresenter returns a presenter drawing to scr. The title is
// shown centered in the HUD.
func NewTerminalPresenter(reader gpu.ImageReader, scr Screen, title string) *TerminalPresenter {
	return &TerminalPresenter{
		reader:  reader,
		scr:     scr,
		fb:      render.NewFramebuffer(0, 0),
		hud:     HUD{Title: title, since: time.Now()},
		ShowHUD: true,
	}
}

// Present implements Presenter.
func (t *TerminalPresenter) Present(img gpu.Image, st frame.Stats) error {
	rgba, err := t.reader.ReadImage(img)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	t.fb.CopyFrom(rgba)

	area := t.scr.Bounds()
	t.fb.Draw(t.scr, area)
	t.hud.Tick(time.Now())
	if t.ShowHUD {
		t.hud.Draw(t.scr, area, st)
	}
	return t.scr.Display()
}

// OnInput implements InputHandler.
func (t *TerminalPresenter) OnInput(ev input.Event) {
	if k, ok := ev.(input.Key); ok && (k.Name == "?" || k.Name == "shift+/") {
		t.ShowHUD = !t.ShowHUD
	}
}

// Framebuffer returns the last image read back.
func (t *TerminalPresenter) Framebuffer() *render.Framebuffer { return t.fb }

var (
	hudBackground = render.ColorBlack
	hudText       = render.RGB(235, 235, 235)
	hudGreen      = render.RGB(90, 230, 90)
	hudCyan       = render.RGB(90, 220, 230)
	hudYellow     = render.RGB(240, 220, 90)
)

// HUD draws frame statistics on the first and last terminal rows.
type HUD struct {
	Title string

	fps    float64
	frames int
	since  time.Time
}

// Tick counts a frame and refreshes the FPS figure once a second.
func (h *HUD) Tick(now time.Time) {
	h.frames++
	elapsed := now.Sub(h.since)
	if elapsed >= time.Second {
		h.fps = float64(h.frames) / elapsed.Seconds()
		h.frames = 0
		h.since = now
	}
}

// FPS returns the frames per second measured over the last full second.
func (h *HUD) FPS() float64 { return h.fps }

// Draw writes the overlay into area.
func (h *HUD) Draw(scr uv.Screen, area uv.Rectangle, st frame.Stats) {
	if area.Dx() <= 0 || area.Dy() <= 0 {
		return
	}
	top, bottom := area.Min.Y, area.Max.Y-1
	width := area.Dx()

	fps := fmt.Sprintf(" %.0f FPS ", h.fps)
	drawText(scr, area, area.Min.X, top, fps, uv.Style{Fg: hudGreen, Bg: hudBackground})

	title := " " + h.Title + " "
	drawText(scr, area, area.Min.X+max((width-len(title))/2, 0), top, title,
		uv.Style{Fg: hudText, Bg: hudBackground, Attrs: uv.AttrBold})

	count := fmt.Sprintf(" %d instances ", st.Instances)
	drawText(scr, area, area.Min.X+max(width-len(count), 0), top, count,
		uv.Style{Fg: hudCyan, Bg: hudBackground, Attrs: uv.AttrBold})

	if bottom == top {
		return
	}
	mode := fmt.Sprintf(" [%s] %s ", st.Mode, st.Camera)
	drawText(scr, area, area.Min.X, bottom, mode, uv.Style{Fg: hudText, Bg: hudBackground})

	counters := fmt.Sprintf(" culled %d  realloc %d ", st.Culled, st.Reallocations)
	drawText(scr, area, area.Min.X+max(width-len(counters), 0), bottom, counters,
		uv.Style{Fg: hudYellow, Bg: hudBackground, Attrs: uv.AttrFaint})
}

// drawText writes s one cell per rune, clipped to area.
func drawText(scr uv.Screen, area uv.Rectangle, x, y int, s string, style uv.Style) {
	if y < area.Min.Y || y >= area.Max.Y {
		return
	}
	for _, r := range s {
		if x >= area.Max.X {
			return
		}
		if x >= area.Min.X {
			scr.SetCell(x, y, &uv.Cell{Content: string(r), Width: 1, Style: style})
		}
		x++
	}
}
