// Package input defines the backend-neutral events the renderer reacts
// to and converts terminal events into them.
package input

import (
	uv "github.com/charmbracelet/ultraviolet"
)

// Event is one of PointerDown, PointerUp, PointerMove, Wheel, Key or
// Resize.
type Event interface {
	isEvent()
}

// Button is a pointer button.
type Button uint8

const (
	ButtonNone Button = iota
	ButtonLeft
	ButtonMiddle
	ButtonRight
)

// PointerDown is a button press at a framebuffer position.
type PointerDown struct {
	X, Y   float64
	Button Button
	Shift  bool
}

// PointerUp is a button release.
type PointerUp struct {
	X, Y   float64
	Button Button
}

// PointerMove is pointer motion, with or without a button held.
type PointerMove struct {
	X, Y float64
}

// Wheel is a scroll step; positive Delta scrolls up.
type Wheel struct {
	Delta float64
}

// Key is a key press named like "tab", "left" or "ctrl+c".
type Key struct {
	Name string
}

// Resize is a new viewport size in framebuffer pixels.
type Resize struct {
	Width, Height int
}

func (PointerDown) isEvent() {}
func (PointerUp) isEvent()   {}
func (PointerMove) isEvent() {}
func (Wheel) isEvent()       {}
func (Key) isEvent()         {}
func (Resize) isEvent()      {}

// Framebuffer rows per terminal cell: each cell shows two pixels with a
// half block.
const rowsPerCell = 2

func button(b uv.MouseButton) Button {
	switch b {
	case uv.MouseLeft:
		return ButtonLeft
	case uv.MouseMiddle:
		return ButtonMiddle
	case uv.MouseRight:
		return ButtonRight
	}
	return ButtonNone
}

func position(m uv.Mouse) (float64, float64) {
	return float64(m.X), float64(m.Y * rowsPerCell)
}

// FromUV converts a terminal event. Cell coordinates become framebuffer
// pixels. It reports false for events the renderer ignores.
func FromUV(ev uv.Event) (Event, bool) {
	switch ev := ev.(type) {
	case uv.MouseClickEvent:
		x, y := position(uv.Mouse(ev))
		return PointerDown{X: x, Y: y, Button: button(ev.Button), Shift: ev.Mod.Contains(uv.ModShift)}, true
	case uv.MouseReleaseEvent:
		x, y := position(uv.Mouse(ev))
		return PointerUp{X: x, Y: y, Button: button(ev.Button)}, true
	case uv.MouseMotionEvent:
		x, y := position(uv.Mouse(ev))
		return PointerMove{X: x, Y: y}, true
	case uv.MouseWheelEvent:
		switch ev.Button {
		case uv.MouseWheelUp:
			return Wheel{Delta: 1}, true
		case uv.MouseWheelDown:
			return Wheel{Delta: -1}, true
		}
	case uv.KeyPressEvent:
		return Key{Name: ev.String()}, true
	case uv.WindowSizeEvent:
		return Resize{Width: ev.Width, Height: ev.Height * rowsPerCell}, true
	}
	return nil, false
}
