package mediaindex

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ScanStats summarises one scan of a root
type ScanStats struct {
	Root    string
	Indexed int64
	Skipped int64
	Errors  int64
}

// Scanner walks directory trees and adds matching files to the index
type Scanner struct {
	index      *Index
	log        *logrus.Entry
	extensions map[string]bool
	limiter    *rate.Limiter
}

// NewScanner returns a scanner that indexes files with one of extensions.
// maxPerSecond <= 0 disables throttling.
func NewScanner(index *Index, log *logrus.Entry, extensions []string, maxPerSecond int) *Scanner {
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if maxPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxPerSecond), maxPerSecond)
	}

	return &Scanner{index: index, log: log, extensions: exts, limiter: limiter}
}

// Scan indexes every matching regular file under root
func (s *Scanner) Scan(ctx context.Context, root string) (ScanStats, error) {
	stats := ScanStats{Root: root}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			s.log.WithError(err).WithField("path", p).Debug("skipping unreadable path")
			stats.Errors++
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !s.extensions[strings.ToLower(filepath.Ext(p))] {
			stats.Skipped++
			return nil
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			stats.Errors++
			return nil
		}

		abs, err := filepath.Abs(p)
		if err != nil {
			stats.Errors++
			return nil
		}

		if _, err := s.index.Insert(ctx, Entry{
			Data:         abs,
			Size:         info.Size(),
			DateModified: info.ModTime(),
		}); err != nil {
			s.log.WithError(err).WithField("path", abs).Warn("failed to index file")
			stats.Errors++
			return nil
		}
		stats.Indexed++
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("scan %s: %w", root, err)
	}

	s.log.WithFields(logrus.Fields{
		"root":    root,
		"indexed": stats.Indexed,
		"skipped": stats.Skipped,
		"errors":  stats.Errors,
	}).Info("index scan complete")
	return stats, nil
}

// ScanRoots scans several roots concurrently and returns the first error seen
func (s *Scanner) ScanRoots(ctx context.Context, roots []string) (map[string]ScanStats, error) {
	results := make(map[string]ScanStats, len(roots))
	var mu sync.Mutex
	var wg sync.WaitGroup
	errChan := make(chan error, len(roots))

	for _, root := range roots {
		wg.Add(1)
		go func(r string) {
			defer wg.Done()

			stats, err := s.Scan(ctx, r)
			if err != nil {
				errChan <- err
			}

			mu.Lock()
			results[r] = stats
			mu.Unlock()
		}(root)
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return results, err
	}
	return results, nil
}
