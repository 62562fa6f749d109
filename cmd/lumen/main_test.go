package main

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qmuntal/gltf"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/lumen/pkg/config"
	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/scene"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// writeScene saves a GLB with a camera node under a root node.
func writeScene(t *testing.T, path, name string) {
	t.Helper()
	doc := &gltf.Document{
		Cameras: []*gltf.Camera{{
			Name:        "cam",
			Perspective: &gltf.Perspective{Yfov: 0.8, Znear: 0.1},
		}},
		Nodes: []*gltf.Node{
			{Name: "root", Children: []int{1}},
			{Name: "eye", Camera: gltf.Index(0), Translation: [3]float64{0, -5, 2}},
		},
		Scenes: []*gltf.Scene{{Name: name, Nodes: []int{0}}},
		Scene:  gltf.Index(0),
	}
	require.NoError(t, gltf.SaveBinary(doc, path))
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.toml")
	require.NoError(t, os.WriteFile(path, []byte("fps = 10\nworkspaces = 3\ncamera = \"top\"\n"), 0o644))

	var f flags
	var got config.Config
	cmd := &cobra.Command{
		Use: "test",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			got, err = f.load(cmd, args)
			return err
		},
	}
	f.bind(cmd)
	cmd.SetArgs([]string{"--config", path, "--fps", "20", "scene.glb"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, 20, got.FPS, "flag wins over file")
	assert.Equal(t, 3, got.Workspaces, "file wins over default")
	assert.Equal(t, "top", got.Camera)
	assert.Equal(t, "soft", got.Backend, "default kept")
	assert.Equal(t, "scene.glb", got.Scene)
}

func TestInvalidFlagsAreRejected(t *testing.T) {
	_, err := execute(t, "snapshot", "--workspaces", "0")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = execute(t, "snapshot", "--backend", "nope")
	assert.ErrorIs(t, err, gpu.ErrUnknownBackend)

	_, err = execute(t, "snapshot", "--frames", "0")
	assert.ErrorIs(t, err, errSnapshotSize)
}

func TestBackends(t *testing.T) {
	out, err := execute(t, "backends")
	require.NoError(t, err)
	assert.Contains(t, out, "soft\n")
	assert.Contains(t, out, "hal\n")
}

func TestSnapshotWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	out, err := execute(t, "snapshot", "-o", path, "--frames", "3", "--width", "32", "--height", "16")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)
	assert.Contains(t, out, "2 instances")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cams.glb")
	writeScene(t, path, "cams")

	out, err := execute(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, `scene "cams"`)
	assert.Contains(t, out, "camera=cam")

	_, err = execute(t, "inspect", filepath.Join(t.TempDir(), "missing.glb"))
	assert.Error(t, err)
}

func TestSnapshotFromSceneCamera(t *testing.T) {
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "cams.glb")
	writeScene(t, scenePath, "cams")

	out, err := execute(t, "snapshot", scenePath, "--camera", "cam", "-o", filepath.Join(dir, "shot.png"), "--width", "8", "--height", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	_, err = execute(t, "snapshot", scenePath, "--camera", "nope", "-o", filepath.Join(dir, "shot.png"))
	assert.Error(t, err)
}

func TestWatchSceneReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.glb")
	writeScene(t, path, "first")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloads := make(chan *scene.Scene, 4)
	done := make(chan error, 1)
	go func() { done <- watchScene(ctx, path, func(sc *scene.Scene) { reloads <- sc }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeScene(t, path, "second")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case sc := <-reloads:
			if sc.Name == "second" {
				cancel()
				require.NoError(t, <-done)
				return
			}
		case <-deadline:
			t.Fatal("no reload after the scene was rewritten")
		}
	}
}
