package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"solaar-settings/internal/store"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Report record counts whenever the settings file changes on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Store.Backend != "file" {
				return fmt.Errorf("watch needs the file backend, have %q", a.cfg.Store.Backend)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
			defer stop()

			yamlPath, jsonPath := documentPaths(a.cfg)
			out := cmd.OutOrStdout()
			return watchDocument(ctx, yamlPath, a.logger, func() {
				s := store.New(store.NewFileBackend(yamlPath, jsonPath, a.logger), store.Options{Version: version}, a.logger)
				n := len(s.Records())
				_ = s.Close()
				success.Fprintf(out, "%s changed: %d records\n", filepath.Base(yamlPath), n)
			})
		},
	}
}

// watchDocument calls onChange each time path is written or replaced, until
// ctx is done. The parent directory is watched so atomic renames are seen.
func watchDocument(ctx context.Context, path string, logger *slog.Logger, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("watching settings", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				onChange()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("error watching settings", "err", err)
		}
	}
}
