package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taigrr/lumen/pkg/config"
	"github.com/taigrr/lumen/pkg/frame"
	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/present"
	"github.com/taigrr/lumen/pkg/scene"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <scene.glb>",
		Short: "Print a scene's node tree, meshes, cameras and materials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scene.Load(args[0])
			if err != nil {
				return fmt.Errorf("load scene: %w", err)
			}
			return scene.Fprint(cmd.OutOrStdout(), sc)
		},
	}
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the available device backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range gpu.Backends() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

type snapshotOptions struct {
	out    string
	frames int
	width  int
	height int
}

func newSnapshotCmd(f *flags) *cobra.Command {
	opts := snapshotOptions{out: "lumen.png", frames: 1, width: 320, height: 180}
	cmd := &cobra.Command{
		Use:   "snapshot [scene.glb]",
		Short: "Render frames headlessly and write the last one to a PNG",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd, args)
			if err != nil {
				return err
			}
			closeLog, err := setupLogging(cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer closeLog()

			st, err := runSnapshot(cmd.Context(), cfg, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %dx%d, %d frames, %d instances, %d culled\n",
				opts.out, opts.width, opts.height, opts.frames, st.Instances, st.Culled)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&opts.out, "output", "o", opts.out, "PNG file to write")
	fl.IntVarP(&opts.frames, "frames", "n", opts.frames, "frames to render before writing")
	fl.IntVar(&opts.width, "width", opts.width, "image width in pixels")
	fl.IntVar(&opts.height, "height", opts.height, "image height in pixels")
	return cmd
}

var errSnapshotSize = errors.New("snapshot needs at least one frame and a non-zero size")

// runSnapshot renders opts.frames frames at the configured frame rate and
// writes the last one.
func runSnapshot(ctx context.Context, cfg config.Config, opts snapshotOptions) (frame.Stats, error) {
	if opts.frames < 1 || opts.width < 1 || opts.height < 1 {
		return frame.Stats{}, errSnapshotSize
	}
	sc, err := loadScene(cfg.Scene)
	if err != nil {
		return frame.Stats{}, err
	}
	dev, reader, err := openDevice(cfg)
	if err != nil {
		return frame.Stats{}, err
	}
	defer dev.Close()

	renderer, err := frame.New(dev, cfg, sc)
	if err != nil {
		return frame.Stats{}, err
	}
	defer renderer.Close()

	swapchain, err := present.NewSwapchain(dev, cfg.Images, opts.width, opts.height)
	if err != nil {
		return frame.Stats{}, err
	}
	png := present.NewPNGPresenter(reader)
	loop, err := present.NewLoop(dev, renderer, swapchain, png)
	if err != nil {
		swapchain.Release()
		return frame.Stats{}, err
	}
	defer loop.Close()

	dt := 1 / float64(cfg.FPS)
	for range opts.frames {
		if err := loop.Frame(ctx, dt); err != nil {
			return frame.Stats{}, err
		}
	}
	return png.Stats(), png.Save(opts.out)
}
