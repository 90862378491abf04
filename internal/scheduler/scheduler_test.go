package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-reaper/internal/config"
	"media-reaper/internal/database"
	"media-reaper/internal/logging"
	"media-reaper/internal/mediaindex"
	"media-reaper/internal/metrics"
)

func setup(t *testing.T) (*config.Config, Deps) {
	t.Helper()
	metrics.Init()

	dbPath := filepath.Join(t.TempDir(), "media.db")
	idx, err := mediaindex.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	history, err := database.NewDeletionDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	cfg := config.Default()
	cfg.Index.Roots = []string{t.TempDir()}
	cfg.History.RetentionDays = 30

	log := logging.NewDiscard()
	return cfg, Deps{
		Index:   idx,
		Scanner: mediaindex.NewScanner(idx, log, cfg.Index.Extensions, 0),
		History: history,
		Log:     log,
	}
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	cfg, deps := setup(t)
	root := cfg.Index.Roots[0]

	photo := filepath.Join(root, "DCIM", "photo.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(photo), 0o755))
	require.NoError(t, os.WriteFile(photo, []byte("jpeg"), 0o644))

	_, err := deps.Index.Insert(ctx, mediaindex.Entry{Data: filepath.Join(root, "gone.jpg")})
	require.NoError(t, err)

	require.NoError(t, deps.History.RecordDeletion(time.Now().AddDate(0, 0, -60), "/sdcard/old.jpg", true, "direct", nil))
	require.NoError(t, deps.History.RecordDeletion(time.Now(), "/sdcard/new.jpg", false, "", nil))

	require.NoError(t, RunOnce(ctx, cfg, deps))

	_, found, err := deps.Index.Lookup(ctx, photo)
	require.NoError(t, err)
	assert.True(t, found, "scanned file should be indexed")

	_, found, err = deps.Index.Lookup(ctx, filepath.Join(root, "gone.jpg"))
	require.NoError(t, err)
	assert.False(t, found, "stale entry should be pruned")

	records, err := deps.History.GetRecentDeletions(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "/sdcard/new.jpg", records[0].Path)
}

func TestRunOnceKeepsGoingAfterScanError(t *testing.T) {
	ctx := context.Background()
	cfg, deps := setup(t)
	cfg.Index.Roots = []string{filepath.Join(t.TempDir(), "missing")}

	_, err := deps.Index.Insert(ctx, mediaindex.Entry{Data: "/nonexistent/stale.jpg"})
	require.NoError(t, err)

	// A missing root is logged and skipped by the walker, so the cycle still
	// succeeds and pruning still happens.
	require.NoError(t, RunOnce(ctx, cfg, deps))
	n, err := deps.Index.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestRunOnceValidatesInput(t *testing.T) {
	assert.Error(t, RunOnce(context.Background(), nil, Deps{}))
	assert.Error(t, RunOnce(context.Background(), config.Default(), Deps{}))
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg, deps := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, deps) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
