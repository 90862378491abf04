package deletion

import (
	"github.com/sirupsen/logrus"

	"media-reaper/internal/config"
	"media-reaper/internal/database"
	"media-reaper/internal/fsops"
	"media-reaper/internal/metrics"
)

// NewFromConfig builds the standard chain: media index, direct removal, then
// the shell command unless it is disabled.
func NewFromConfig(cfg *config.Config, index IndexStore, log *logrus.Entry) *Service {
	fs := fsops.OSDeleter{}

	strategies := []Strategy{
		NewMediaIndexStrategy(index, fs),
		NewDirectStrategy(fs),
	}
	if !cfg.Deletion.DisableShell {
		strategies = append(strategies, NewShellStrategy(cfg.Deletion.ShellCommand, cfg.ShellTimeout(), fs))
	}
	return NewService(log, strategies...)
}

// HistoryObserver writes every result to the deletion history
type HistoryObserver struct {
	db  *database.DeletionDB
	log *logrus.Entry
}

func NewHistoryObserver(db *database.DeletionDB, log *logrus.Entry) *HistoryObserver {
	return &HistoryObserver{db: db, log: log}
}

func (h *HistoryObserver) ObserveDeletion(r Result) {
	attempts := make([]database.Attempt, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		attempts = append(attempts, database.Attempt{Strategy: o.Strategy, Outcome: o.Summary()})
	}
	if err := h.db.RecordDeletion(r.StartedAt, r.Path, r.Deleted, r.Strategy, attempts); err != nil {
		// History is best effort; the request already has its answer.
		h.log.WithError(err).WithField("path", r.Path).Error("failed to record deletion")
	}
}

// MetricsObserver feeds results into the Prometheus collectors.
// metrics.Init must have been called.
type MetricsObserver struct{}

func (MetricsObserver) ObserveDeletion(r Result) {
	metrics.RecordDeletion(r.Deleted, r.Duration.Seconds())
	for _, o := range r.Outcomes {
		metrics.RecordStrategyAttempt(o.Strategy, o.Status())
	}
}
