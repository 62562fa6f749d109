package camera

import (
	"math"

	"github.com/taigrr/lumen/pkg/input"
)

// State is the pointer interaction state.
type State uint8

const (
	Idle State = iota
	Tumbling
	Panning
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tumbling:
		return "tumbling"
	case Panning:
		return "panning"
	}
	return "unknown"
}

// drag is the context captured when a drag starts. The orbit pointer is
// fixed for the whole drag, so switching modes mid-drag keeps moving the
// camera the drag began on.
type drag struct {
	state  State
	x0, y0 float64
	start  Orbit
	target *Orbit
}

type handler func(c *Controller, ev input.Event) State

var dispatch = [...]handler{
	Idle:     (*Controller).idle,
	Tumbling: (*Controller).tumbling,
	Panning:  (*Controller).panning,
}

func (c *Controller) idle(ev input.Event) State {
	down, ok := ev.(input.PointerDown)
	if !ok || down.Button != input.ButtonLeft {
		return Idle
	}
	o, _ := c.active()
	if o == nil {
		return Idle
	}
	c.drag.x0, c.drag.y0 = down.X, down.Y
	c.drag.start = *o
	c.drag.target = o
	if down.Shift {
		return Panning
	}
	return Tumbling
}

// delta returns the pointer offset from the drag start in viewport
// heights, with y pointing up.
func (c *Controller) delta(x, y float64) (dx, dy float64) {
	h := float64(c.height)
	return (x - c.drag.x0) / h, -(y - c.drag.y0) / h
}

func (c *Controller) tumbling(ev input.Event) State {
	switch ev := ev.(type) {
	case input.PointerUp:
		if ev.Button == input.ButtonLeft {
			return Idle
		}
	case input.PointerMove:
		dx, dy := c.delta(ev.X, ev.Y)
		s := &c.drag.start
		flip := 1.0
		if math.Abs(s.Elevation) > math.Pi/2 {
			flip = -1
		}
		o := c.drag.target
		o.Azimuth = s.Azimuth - dx*math.Pi*flip
		o.Elevation = s.Elevation - dy*math.Pi
		o.Wrap()
	}
	return Tumbling
}

func (c *Controller) panning(ev input.Event) State {
	switch ev := ev.(type) {
	case input.PointerUp:
		if ev.Button == input.ButtonLeft {
			return Idle
		}
	case input.PointerMove:
		dx, dy := c.delta(ev.X, ev.Y)
		s := &c.drag.start
		view := s.View()
		right, up := view.Row(0), view.Row(1)
		h := 2 * math.Tan(s.FOV/2) * s.Radius
		c.drag.target.Target = s.Target.Sub(right.Scale(dx * h)).Sub(up.Scale(dy * h))
	}
	return Panning
}
