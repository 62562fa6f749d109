package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	uv "github.com/charmbracelet/ultraviolet"

	"github.com/taigrr/lumen/pkg/config"
	"github.com/taigrr/lumen/pkg/frame"
	"github.com/taigrr/lumen/pkg/input"
	"github.com/taigrr/lumen/pkg/logging"
	"github.com/taigrr/lumen/pkg/present"
	"github.com/taigrr/lumen/pkg/scene"
)

// loadScene loads path, or returns nil for the built-in scene when path
// is empty.
func loadScene(path string) (*scene.Scene, error) {
	if path == "" {
		return nil, nil
	}
	sc, err := scene.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load scene: %w", err)
	}
	return sc, nil
}

func title(cfg config.Config) string {
	if cfg.Scene == "" {
		return "lumen"
	}
	return filepath.Base(cfg.Scene)
}

func isQuit(ev uv.Event) bool {
	k, ok := ev.(uv.KeyPressEvent)
	return ok && k.MatchString("esc", "escape", "q", "ctrl+c")
}

// runView shows the scene in the terminal until the user quits.
func runView(ctx context.Context, cfg config.Config) error {
	sc, err := loadScene(cfg.Scene)
	if err != nil {
		return err
	}
	dev, reader, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer dev.Close()

	renderer, err := frame.New(dev, cfg, sc)
	if err != nil {
		return err
	}
	defer renderer.Close()

	term := uv.DefaultTerminal()
	cols, rows, err := term.GetSize()
	if err != nil {
		return fmt.Errorf("get terminal size: %w", err)
	}
	if err := term.Start(); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}
	term.EnterAltScreen()
	term.HideCursor()
	term.Resize(cols, rows)

	// Any-event mouse tracking with SGR coordinates.
	fmt.Fprint(os.Stdout, "\x1b[?1003h")
	fmt.Fprint(os.Stdout, "\x1b[?1006h")
	defer func() {
		fmt.Fprint(os.Stdout, "\x1b[?1003l")
		fmt.Fprint(os.Stdout, "\x1b[?1006l")
		term.ExitAltScreen()
		term.ShowCursor()
		term.Shutdown(context.Background())
	}()

	width, height := present.CellSize(cols, rows)
	swapchain, err := present.NewSwapchain(dev, cfg.Images, width, height)
	if err != nil {
		return err
	}
	loop, err := present.NewLoop(dev, renderer, swapchain, present.NewTerminalPresenter(reader, term, title(cfg)))
	if err != nil {
		swapchain.Release()
		return err
	}
	defer loop.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan input.Event, 64)
	go func() {
		for ev := range term.Events() {
			if isQuit(ev) {
				cancel()
				return
			}
			if ws, ok := ev.(uv.WindowSizeEvent); ok {
				term.Erase()
				term.Resize(ws.Width, ws.Height)
			}
			iev, ok := input.FromUV(ev)
			if !ok {
				continue
			}
			select {
			case events <- iev:
			case <-ctx.Done():
				return
			}
		}
	}()

	if cfg.Watch && cfg.Scene != "" {
		go func() {
			if err := watchScene(ctx, cfg.Scene, loop.Reload); err != nil {
				logging.Logger().Warn("scene watch stopped", "scene", cfg.Scene, "err", err)
			}
		}()
	}

	return loop.Run(ctx, cfg.FPS, events)
}
