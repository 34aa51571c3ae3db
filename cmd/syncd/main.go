// Command syncd watches a local directory, reconciles it against a
// cloud store, and keeps both sides converged: local changes are
// queued and pushed, cloud changes are downloaded and applied, on a
// timer, for as long as the process runs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mira-labs/syncd/internal/api"
	"github.com/mira-labs/syncd/internal/app"
	"github.com/mira-labs/syncd/internal/config"
	"github.com/mira-labs/syncd/internal/logging"
	"github.com/mira-labs/syncd/internal/reconcile"
	"github.com/mira-labs/syncd/internal/scanner"
	"github.com/mira-labs/syncd/internal/store"
	"github.com/mira-labs/syncd/internal/watcher"
	"github.com/mira-labs/syncd/internal/worker"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "syncd",
	Short:   "Sync a local directory against a cloud store",
	Long:    "syncd watches a local directory for changes, pushes them to a cloud store, and pulls down what changed remotely, reconciling both sides on an interval.",
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the syncd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, logging.Options{LogFile: cfg.LogFile})
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.SyncDir, 0o755); err != nil {
		return fmt.Errorf("creating sync directory: %w", err)
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	apiClient := api.NewHTTPClient(cfg.APIBaseURL, cfg.UserEmail, nil)

	logger.Info("scanning sync directory", slog.String("path", cfg.SyncDir))

	scanResult, err := scanner.ScanSyncPath(cfg.SyncDir, logger)
	if err != nil {
		return fmt.Errorf("scanning sync directory: %w", err)
	}

	if err := reconcile.ReconcileLocalState(s, scanResult, logger); err != nil {
		return fmt.Errorf("reconciling local state: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runWatch(gctx, s, cfg.SyncDir, cfg.PollInterval, cfg.SettleTime, logger)
	})

	g.Go(func() error {
		return app.RunPeriodicReconcile(gctx, s, apiClient, cfg.SyncDir, cfg.ReconcileInterval, logger)
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return fmt.Errorf("syncd stopped: %w", err)
	}

	logger.Info("syncd shutting down")

	return nil
}

// runWatch wires a filesystem watcher's settled events into the
// worker, translating each watcher.Event into the matching Handle*
// call. Grounded on original_source/src/main.cpp's watcher-to-worker
// lambda dispatch.
func runWatch(ctx context.Context, s store.Store, syncDir string, pollInterval, settleTime time.Duration, logger *slog.Logger) error {
	osWatcher, err := watcher.NewFsnotifyWatcher()
	if err != nil {
		return fmt.Errorf("starting filesystem watcher: %w", err)
	}

	w := watcher.New(osWatcher, pollInterval, settleTime, logger)
	wk := worker.New(s, syncDir, logger)

	handler := func(ev watcher.Event) {
		if err := dispatchEvent(wk, ev); err != nil {
			logger.Error("handling watcher event",
				slog.String("path", ev.Path), slog.String("action", ev.Action.String()), slog.String("error", err.Error()))
		}
	}

	return w.Watch(ctx, syncDir, handler)
}

func dispatchEvent(wk *worker.Worker, ev watcher.Event) error {
	switch ev.Action {
	case watcher.ActionAdded:
		return wk.HandleAdded(ev.Path, ev.IsDir)
	case watcher.ActionModified:
		return wk.HandleModified(ev.Path)
	case watcher.ActionDeleted:
		return wk.HandleDeleted(ev.Path, ev.IsDir)
	case watcher.ActionRenamed:
		return wk.HandleRenamed(ev.Path, ev.OldPath, ev.IsDir)
	default:
		return nil
	}
}
