package present

import (
	"context"
	"fmt"
	"time"

	"github.com/taigrr/lumen/pkg/frame"
	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/input"
	"github.com/taigrr/lumen/pkg/logging"
	"github.com/taigrr/lumen/pkg/scene"
)

// maxStep caps the simulated time of one frame so a stall does not fling
// the camera.
const maxStep = 0.1

// Presenter shows a finished swapchain image.
type Presenter interface {
	Present(img gpu.Image, st frame.Stats) error
}

// InputHandler is implemented by presenters that react to input, such as
// toggling an overlay.
type InputHandler interface {
	OnInput(ev input.Event)
}

// Loop schedules frames across the renderer's workspaces. Each workspace
// has a fence that is signaled when the GPU is done with it, and a frame
// waits on that fence before the workspace is written again.
type Loop struct {
	dev       gpu.Device
	renderer  *frame.Renderer
	swapchain *Swapchain
	presenter Presenter

	fences  []gpu.Fence
	ws      int
	frames  int
	reloads chan *scene.Scene
}

// NewLoop creates one signaled fence per workspace and hands the
// swapchain images to the renderer. The presenter may be nil.
func NewLoop(dev gpu.Device, r *frame.Renderer, sc *Swapchain, p Presenter) (*Loop, error) {
	l := &Loop{
		dev:       dev,
		renderer:  r,
		swapchain: sc,
		presenter: p,
		reloads:   make(chan *scene.Scene, 1),
	}
	for range r.Ring().Len() {
		f, err := dev.CreateFence(true)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("present: create workspace fence: %w", err)
		}
		l.fences = append(l.fences, f)
	}
	if err := r.OnSwapchain(sc.Targets()); err != nil {
		l.Close()
		return nil, fmt.Errorf("present: %w", err)
	}
	return l, nil
}

// Frame advances the scene by dt seconds, renders into the next
// workspace and image, and presents the image.
func (l *Loop) Frame(ctx context.Context, dt float64) error {
	l.renderer.Update(dt)

	fence := l.fences[l.ws]
	if err := l.dev.WaitFence(ctx, fence); err != nil {
		return fmt.Errorf("present: wait for workspace %d: %w", l.ws, err)
	}
	if err := l.dev.ResetFence(fence); err != nil {
		return fmt.Errorf("present: reset workspace %d fence: %w", l.ws, err)
	}

	img, available, done := l.swapchain.Acquire()
	info := gpu.SubmitInfo{
		Wait:   []gpu.Semaphore{available},
		Signal: []gpu.Semaphore{done},
		Fence:  fence,
	}
	if err := l.renderer.Render(ctx, l.ws, img, info); err != nil {
		// Nothing was submitted, so the fence would never signal.
		if rerr := l.resignal(l.ws); rerr != nil {
			return fmt.Errorf("%w (restoring fence: %w)", err, rerr)
		}
		return err
	}
	if l.presenter != nil {
		if err := l.presenter.Present(l.swapchain.Image(img), l.renderer.Stats()); err != nil {
			return fmt.Errorf("present: image %d: %w", img, err)
		}
	}
	l.ws = (l.ws + 1) % len(l.fences)
	l.frames++
	return nil
}

func (l *Loop) resignal(ws int) error {
	f, err := l.dev.CreateFence(true)
	if err != nil {
		return err
	}
	l.dev.DestroyFence(l.fences[ws])
	l.fences[ws] = f
	return nil
}

// Resize recreates the swapchain images and retargets the renderer.
func (l *Loop) Resize(width, height int) error {
	if err := l.swapchain.Resize(width, height); err != nil {
		return err
	}
	return l.renderer.OnSwapchain(l.swapchain.Targets())
}

// Reload queues sc to replace the renderer's scene between frames of
// Run. A scene queued earlier and not yet applied is dropped. Reload is
// safe to call from any goroutine.
func (l *Loop) Reload(sc *scene.Scene) {
	for {
		select {
		case l.reloads <- sc:
			return
		default:
		}
		select {
		case <-l.reloads:
		default:
		}
	}
}

// Frames returns the number of frames presented.
func (l *Loop) Frames() int { return l.frames }

// Workspace returns the index of the workspace the next frame uses.
func (l *Loop) Workspace() int { return l.ws }

// Run renders at fps frames per second until ctx is canceled. Events are
// forwarded to the renderer and, when it implements InputHandler, to the
// presenter; Resize events resize the swapchain. Scenes queued with
// Reload are applied between frames, and a scene that fails to upload is
// logged and the old one kept.
func (l *Loop) Run(ctx context.Context, fps int, events <-chan input.Event) error {
	ticker := time.NewTicker(time.Second / time.Duration(max(fps, 1)))
	defer ticker.Stop()

	handler, _ := l.presenter.(InputHandler)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if rs, ok := ev.(input.Resize); ok {
				if err := l.Resize(rs.Width, rs.Height); err != nil {
					return err
				}
				continue
			}
			l.renderer.OnInput(ev)
			if handler != nil {
				handler.OnInput(ev)
			}
		case sc := <-l.reloads:
			if err := l.renderer.SetScene(sc); err != nil {
				logging.Logger().Warn("scene reload failed", "scene", sc.Name, "err", err)
			}
		case now := <-ticker.C:
			dt := min(now.Sub(last).Seconds(), maxStep)
			last = now
			if err := l.Frame(ctx, dt); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logging.Logger().Error("frame failed", "frame", l.frames, "err", err)
				return err
			}
		}
	}
}

// Close waits for every workspace and destroys the fences and swapchain.
// The renderer is left to its owner.
func (l *Loop) Close() error {
	var err error
	if werr := l.dev.WaitIdle(); werr != nil {
		err = fmt.Errorf("present: close: %w", werr)
	}
	for _, f := range l.fences {
		l.dev.DestroyFence(f)
	}
	l.fences = nil
	l.swapchain.Release()
	return err
}
