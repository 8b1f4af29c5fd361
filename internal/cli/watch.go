package cli

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchPolicies calls reload each time a CUE file in dir is written or
// created. It returns nil once ctx is done.
//
// Editors often save several events for one change; reload must be safe to
// call repeatedly.
func watchPolicies(ctx context.Context, dir string, logger *slog.Logger, reload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	logger.Info("watching policies", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".cue" {
				continue
			}
			// Atomic saves rename over the file, which arrives as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logger.Debug("policy file changed", "file", event.Name, "op", event.Op.String())
			reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("policy watcher error", "error", err)
		}
	}
}
