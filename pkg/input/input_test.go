package input

import (
	"testing"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/stretchr/testify/assert"
)

func TestFromUV(t *testing.T) {
	tests := []struct {
		name string
		in   uv.Event
		want Event
	}{
		{"click", uv.MouseClickEvent{X: 3, Y: 4, Button: uv.MouseLeft}, PointerDown{X: 3, Y: 8, Button: ButtonLeft}},
		{"shift click", uv.MouseClickEvent{X: 1, Y: 1, Button: uv.MouseLeft, Mod: uv.ModShift}, PointerDown{X: 1, Y: 2, Button: ButtonLeft, Shift: true}},
		{"release", uv.MouseReleaseEvent{X: 5, Y: 0, Button: uv.MouseRight}, PointerUp{X: 5, Y: 0, Button: ButtonRight}},
		{"motion", uv.MouseMotionEvent{X: 2, Y: 7}, PointerMove{X: 2, Y: 14}},
		{"wheel up", uv.MouseWheelEvent{Button: uv.MouseWheelUp}, Wheel{Delta: 1}},
		{"wheel down", uv.MouseWheelEvent{Button: uv.MouseWheelDown}, Wheel{Delta: -1}},
		{"tab", uv.KeyPressEvent{Code: uv.KeyTab}, Key{Name: "tab"}},
		{"left", uv.KeyPressEvent{Code: uv.KeyLeft}, Key{Name: "left"}},
		{"resize", uv.WindowSizeEvent{Width: 80, Height: 24}, Resize{Width: 80, Height: 48}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromUV(tt.in)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromUVIgnored(t *testing.T) {
	_, ok := FromUV(uv.MouseWheelEvent{Button: uv.MouseWheelLeft})
	assert.False(t, ok)
	_, ok = FromUV(uv.FocusEvent{})
	assert.False(t, ok)
}
