package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"media-reaper/internal/config"
	"media-reaper/internal/database"
	"media-reaper/internal/mediaindex"
	"media-reaper/internal/metrics"
)

// Deps are the stores a maintenance cycle works on. History may be nil.
type Deps struct {
	Index   *mediaindex.Index
	Scanner *mediaindex.Scanner
	History *database.DeletionDB
	Log     *logrus.Entry
}

// RunOnce runs one maintenance cycle: rescan the index roots, drop index
// entries whose files are gone, then prune history past retention. A failing
// step does not stop the later ones; all errors are returned together.
// metrics.Init must have been called.
func RunOnce(ctx context.Context, cfg *config.Config, deps Deps) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if deps.Index == nil || deps.Scanner == nil {
		return errors.New("index and scanner are required")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	start := time.Now()
	log := deps.Log
	var errs []error

	if len(cfg.Index.Roots) > 0 {
		results, err := deps.Scanner.ScanRoots(ctx, cfg.Index.Roots)
		for root, stats := range results {
			metrics.IndexedFilesTotal.WithLabelValues(root).Add(float64(stats.Indexed))
		}
		if err != nil {
			metrics.ErrorsTotal.Inc()
			errs = append(errs, err)
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	pruned, err := deps.Index.Prune(ctx)
	if err != nil {
		metrics.ErrorsTotal.Inc()
		errs = append(errs, fmt.Errorf("prune index: %w", err))
	} else {
		metrics.IndexPrunedTotal.Add(float64(pruned))
	}

	var expired int64
	if deps.History != nil && cfg.History.RetentionDays > 0 {
		expired, err = deps.History.DeleteOldRecords(cfg.History.RetentionDays)
		if err != nil {
			metrics.ErrorsTotal.Inc()
			errs = append(errs, fmt.Errorf("prune history: %w", err))
		}
	}

	if count, err := deps.Index.Count(ctx); err == nil {
		metrics.IndexEntries.Set(float64(count))
	}

	metrics.RecordMaintenanceRun(start)
	log.WithFields(logrus.Fields{
		"pruned_entries":  pruned,
		"expired_history": expired,
		"duration":        time.Since(start),
	}).Info("maintenance cycle complete")

	return errors.Join(errs...)
}

// Run runs a cycle immediately, then every cfg.RescanInterval() until ctx is
// cancelled. Cycle errors are logged, not fatal.
func Run(ctx context.Context, cfg *config.Config, deps Deps) error {
	if cfg == nil {
		return errors.New("nil config")
	}

	if err := RunOnce(ctx, cfg, deps); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		deps.Log.WithError(err).Error("maintenance cycle failed")
	}

	ticker := time.NewTicker(cfg.RescanInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			deps.Log.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := RunOnce(ctx, cfg, deps); err != nil {
				deps.Log.WithError(err).Error("maintenance cycle failed")
			}
		}
	}
}
