package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/taigrr/lumen/pkg/logging"
	"github.com/taigrr/lumen/pkg/scene"
)

// watchScene reloads path whenever it is written and passes the new
// scene to reload. The directory is watched rather than the file so
// editors that replace the file on save are followed. A scene that fails
// to load is logged and skipped.
func watchScene(ctx context.Context, path string, reload func(*scene.Scene)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	log := logging.Logger()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			sc, err := scene.Load(abs)
			if err != nil {
				log.Warn("scene reload skipped", "scene", abs, "err", err)
				continue
			}
			log.Info("scene changed", "scene", abs)
			reload(sc)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "err", err)
		}
	}
}
