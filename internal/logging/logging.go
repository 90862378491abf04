package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"media-reaper/internal/config"
)

const logFile = "media-reaper.log"

// New returns a logger writing to stdout and a rotated log file under
// cfg.Logging.Dir. If the file cannot be opened, it logs to stdout only.
func New(cfg *config.Config) *logrus.Entry {
	if cfg == nil {
		cfg = config.Default()
	}

	log := logrus.New()
	log.SetLevel(getLogLevel(cfg.Logging.Level))
	if cfg.Logging.Format == "json" {
		log.Formatter = &logrus.JSONFormatter{}
	} else {
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}

	log.SetOutput(openOutput(cfg.Logging.Dir, cfg.Logging.RotationDays))

	return log.WithFields(logrus.Fields{
		"service": "media-reaper",
		"pid":     os.Getpid(),
	})
}

// NewDiscard returns a logger that drops everything. Used by tests and the CLI.
func NewDiscard() *logrus.Entry {
	log := logrus.New()
	log.Out = io.Discard
	return logrus.NewEntry(log)
}

// LOG_LEVEL wins over the configured level.
func getLogLevel(configured string) logrus.Level {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		configured = env
	}
	level, err := logrus.ParseLevel(configured)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func openOutput(dir string, rotationDays int) io.Writer {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure log directory %s: %v\n", dir, err)
		return os.Stdout
	}

	filePath := filepath.Join(dir, logFile)
	rotateLogsIfNeeded(filePath, rotationDays)

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", filePath, err)
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, f)
}

// rotateLogsIfNeeded renames the current log once it is older than rotationDays
func rotateLogsIfNeeded(logPath string, rotationDays int) {
	info, err := os.Stat(logPath)
	if err != nil {
		return
	}

	cutoffTime := time.Now().AddDate(0, 0, -rotationDays)
	if info.ModTime().Before(cutoffTime) {
		timestamp := info.ModTime().Format("20060102-150405")
		rotatedPath := logPath + "." + timestamp

		if err := os.Rename(logPath, rotatedPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to rotate log file: %v\n", err)
			return
		}

		cleanupOldLogs(logPath, rotationDays)
	}
}

// cleanupOldLogs removes rotated logs older than rotationDays
func cleanupOldLogs(logPath string, rotationDays int) {
	logDir := filepath.Dir(logPath)
	baseName := filepath.Base(logPath)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return
	}

	cutoffTime := time.Now().AddDate(0, 0, -rotationDays)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, baseName+".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoffTime) {
			fullPath := filepath.Join(logDir, name)
			if err := os.Remove(fullPath); err != nil {
				fmt.Fprintf(os.Stderr, "failed to remove old log file %s: %v\n", fullPath, err)
			}
		}
	}
}
