// lumen - terminal scene viewer
// Render glTF scenes through a frames-in-flight GPU pipeline and show
// them in your terminal.
//
// Controls:
//
//	Left drag        - Orbit
//	Shift+left drag  - Pan
//	Scroll           - Zoom in/out
//	Tab              - Cycle free, scene camera and debug modes
//	Left/Right       - Previous/next scene camera
//	?                - Toggle HUD overlay
//	Esc, Q, Ctrl+C   - Quit
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	_ "github.com/gogpu/wgpu/hal/allbackends"
	"github.com/spf13/cobra"

	"github.com/taigrr/lumen/pkg/config"
	"github.com/taigrr/lumen/pkg/gpu"
	_ "github.com/taigrr/lumen/pkg/gpu/halgpu"
	_ "github.com/taigrr/lumen/pkg/gpu/soft"
	"github.com/taigrr/lumen/pkg/logging"
)

var version = "dev"

// flags holds the command-line values that override the config file.
type flags struct {
	configPath string
	backend    string
	workspaces int
	fps        int
	camera     string
	texture    string
	watch      bool
	logFile    string
	logLevel   string
}

func main() {
	if err := fang.Execute(context.Background(), newRootCmd(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:   "lumen [scene.glb]",
		Short: "Render glTF scenes in the terminal",
		Long: `lumen renders glTF scenes through a frames-in-flight pipeline and
shows them with half-block characters. Without a scene it shows a
textured plane and torus.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd, args)
			if err != nil {
				return err
			}
			closeLog, err := setupLogging(cfg, nil)
			if err != nil {
				return err
			}
			defer closeLog()
			if err := runView(cmd.Context(), cfg); err != nil {
				logging.Logger().Error("viewer failed", "err", err)
				return err
			}
			return nil
		},
	}

	f.bind(root)
	root.Flags().BoolVarP(&f.watch, "watch", "w", false, "reload the scene when its file changes")

	root.AddCommand(
		newInspectCmd(),
		newSnapshotCmd(&f),
		newBackendsCmd(),
	)
	return root
}

// bind registers the flags shared by every subcommand on cmd.
func (f *flags) bind(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "TOML config file")
	pf.StringVarP(&f.backend, "backend", "b", "soft", "device backend (see lumen backends)")
	pf.IntVar(&f.workspaces, "workspaces", 2, "frames in flight")
	pf.IntVar(&f.fps, "fps", 30, "target frames per second")
	pf.StringVar(&f.camera, "camera", "", "start from the named scene camera")
	pf.StringVar(&f.texture, "texture", "", "image for the ground plane (PNG/JPG)")
	pf.StringVar(&f.logFile, "log-file", "", "write logs to this file")
	pf.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn or error")
}

// load reads the config file, if any, and applies the flags the user set
// on the command line over it. args[0], when present, names the scene.
func (f *flags) load(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return cfg, err
		}
	}

	set := cmd.Flags().Changed
	if set("backend") {
		cfg.Backend = f.backend
	}
	if set("workspaces") {
		cfg.Workspaces = f.workspaces
	}
	if set("fps") {
		cfg.FPS = f.fps
	}
	if set("camera") {
		cfg.Camera = f.camera
	}
	if set("texture") {
		cfg.Texture = f.texture
	}
	if set("watch") {
		cfg.Watch = f.watch
	}
	if set("log-file") {
		cfg.LogFile = f.logFile
	}
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if len(args) > 0 {
		cfg.Scene = args[0]
	}
	return cfg, cfg.Validate()
}

// setupLogging installs a text logger writing to cfg.LogFile, or to
// fallback when no file is configured. With neither, logging stays off.
// The viewer passes no fallback because the alternate screen hides
// stderr.
func setupLogging(cfg config.Config, fallback io.Writer) (func(), error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	w := fallback
	closeLog := func() {}
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = file
		closeLog = func() { file.Close() }
	}
	if w == nil {
		return closeLog, nil
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return closeLog, nil
}

// openDevice opens the configured backend. The device must be able to
// read images back for presenting.
func openDevice(cfg config.Config) (gpu.Device, gpu.ImageReader, error) {
	dev, err := gpu.Open(cfg.Backend, gpu.Options{
		SkipValidation: cfg.SkipValidation,
		CompileShaders: cfg.CompileShaders,
	})
	if err != nil {
		return nil, nil, err
	}
	reader, ok := dev.(gpu.ImageReader)
	if !ok {
		dev.Close()
		return nil, nil, fmt.Errorf("backend %q cannot read images back", cfg.Backend)
	}
	logging.Logger().Info("device opened", "backend", dev.Name())
	return dev, reader, nil
}
