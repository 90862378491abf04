package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"media-reaper/internal/api"
	"media-reaper/internal/config"
	"media-reaper/internal/database"
	"media-reaper/internal/deletion"
	"media-reaper/internal/logging"
	"media-reaper/internal/mediaindex"
	"media-reaper/internal/metrics"
	"media-reaper/internal/scheduler"
)

func init() {
	metrics.Init()
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
}

func postDelete(t *testing.T, url, path string) bool {
	t.Helper()
	body, _ := json.Marshal(api.PathRequest{Path: path})
	resp, err := http.Post(url+"/api/v1/files/delete", "application/json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("delete request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var out api.DeleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return out.Result
}

// TestDeletionThroughAPI runs the whole daemon wiring against a real
// filesystem: index built by the scheduler, deletions over HTTP, results in
// the history.
func TestDeletionThroughAPI(t *testing.T) {
	ctx := context.Background()
	tmpRoot := t.TempDir()
	storage := filepath.Join(tmpRoot, "storage")

	indexed := filepath.Join(storage, "DCIM", "Camera", "IMG_0001.jpg")
	plain := filepath.Join(storage, "Download", "notes.txt")
	keep := filepath.Join(tmpRoot, "outside", "keep.jpg")
	link := filepath.Join(storage, "Download", "link.jpg")
	mustWrite(t, indexed, "jpeg")
	mustWrite(t, plain, "text")
	mustWrite(t, keep, "MUST KEEP")
	if err := os.Symlink(keep, link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(tmpRoot, "media.db")
	cfg.Index.Roots = []string{storage}
	log := logging.NewDiscard()

	index, err := mediaindex.Open(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("Failed to open index: %v", err)
	}
	defer index.Close()

	history, err := database.NewDeletionDB(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("Failed to open history: %v", err)
	}
	defer history.Close()

	if err := scheduler.RunOnce(ctx, cfg, scheduler.Deps{
		Index:   index,
		Scanner: mediaindex.NewScanner(index, log, cfg.Index.Extensions, 0),
		History: history,
		Log:     log,
	}); err != nil {
		t.Fatalf("Maintenance cycle failed: %v", err)
	}

	svc := deletion.NewFromConfig(cfg, index, log)
	svc.AddObserver(deletion.NewHistoryObserver(history, log))
	svc.AddObserver(deletion.MetricsObserver{})

	srv := httptest.NewServer(api.NewServer(api.Options{
		Service:   svc,
		Available: index.Ping,
		Log:       log,
	}))
	defer srv.Close()

	if !postDelete(t, srv.URL, "file://"+indexed) {
		t.Error("Indexed file should be deleted")
	}
	if !postDelete(t, srv.URL, plain) {
		t.Error("Plain file should be deleted")
	}
	if !postDelete(t, srv.URL, link) {
		t.Error("Symlink should be deleted")
	}
	if postDelete(t, srv.URL, filepath.Join(storage, "never-existed.jpg")) {
		t.Error("Missing file must not be reported as deleted")
	}

	for _, p := range []string{indexed, plain, link} {
		if _, err := os.Lstat(p); !os.IsNotExist(err) {
			t.Errorf("%s should be gone, lstat err=%v", p, err)
		}
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("Symlink target must survive: %v", err)
	}

	// The scanner indexes regular files only, so the symlink and the .txt
	// file both fall through to direct removal.
	byIndex, err := history.GetDeletionsByStrategy(deletion.MediaIndexName, 10)
	if err != nil {
		t.Fatalf("Failed to query history: %v", err)
	}
	if len(byIndex) != 1 || byIndex[0].Path != indexed {
		t.Errorf("Expected only %s deleted through the index, got %+v", indexed, byIndex)
	}

	stats, err := history.GetDeletionStats(1)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalRequests != 4 || stats.TotalDeleted != 3 || stats.TotalFailed != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}
