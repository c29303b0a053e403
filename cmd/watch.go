package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/catalog"
)

var catalogWatchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Re-import a catalog directory whenever its files change",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *app) error {
			dir := a.cfg.CatalogDir
			if len(args) == 1 {
				dir = args[0]
			}
			return watchCatalog(a, dir)
		})
	},
}

func watchCatalog(a *app, dir string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			a.printer.Info("shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	src := catalog.FileSource{Dir: dir}
	if err := reimport(ctx, a, src); err != nil {
		return err
	}

	w, err := catalog.NewWatcher(dir)
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	defer w.Stop()
	a.printer.Info(fmt.Sprintf("watching %s", dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-w.Changes:
			if !ok {
				return nil
			}
			a.logger.Info("catalog file changed",
				slog.String("file", change.File),
				slog.Bool("removed", change.Removed))
			// A broken file keeps the last good import in place.
			if err := reload(ctx, a, src, change); err != nil {
				a.logger.Warn("catalog reload failed", slog.Any("error", err))
			}
		}
	}
}

// reload applies one change. An edited template file is stored and flushed
// on its own; anything else re-imports the whole catalog.
func reload(ctx context.Context, a *app, src catalog.FileSource, change catalog.Change) error {
	if change.Removed || filepath.Base(filepath.Dir(change.File)) != catalog.TemplatesDir {
		return reimport(ctx, a, src)
	}
	tpl, err := catalog.ParseTemplateFile(change.File)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(change.File), err)
	}
	if err := a.store.PutTemplate(ctx, tpl); err != nil {
		return err
	}
	a.catalog.InvalidateTemplate(tpl.ID)
	a.printer.Success(fmt.Sprintf("reloaded template %s", tpl.ID))
	return nil
}

func reimport(ctx context.Context, a *app, src catalog.FileSource) error {
	defs, templates, err := a.store.ImportCatalog(ctx, src)
	if err != nil {
		return err
	}
	a.catalog.Invalidate()
	a.printer.Success(fmt.Sprintf("imported %d phase definitions and %d templates", defs, templates))
	return nil
}
