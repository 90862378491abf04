package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Result values stored in the deletions table
const (
	ResultDeleted = "DELETED"
	ResultFailed  = "FAILED"
)

// uriEscaper escapes the characters that would end the path part of a
// SQLite file: URI.
var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// dsn builds the driver connection string for dbPath
func dsn(dbPath string) string {
	// _loc=auto enables automatic DATETIME parsing
	return "file:" + uriEscaper.Replace(dbPath) + "?_loc=auto&_busy_timeout=5000"
}

// Open opens (creating if needed) the SQLite file at dbPath in WAL mode.
// The media index and the deletion history share one file.
func Open(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Ping does not create the file; a real statement does.
	if _, err := db.Exec("SELECT 1"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	return db, nil
}

// DeletionDB stores the history of deletion requests
type DeletionDB struct {
	db *sql.DB
}

// DeletionRecord is one deletion request and how it ended
type DeletionRecord struct {
	ID        int64
	Timestamp time.Time
	Path      string
	FileName  string
	Result    string // DELETED or FAILED
	Strategy  string // strategy that succeeded, empty on failure
	Attempts  string // per-strategy outcome summary
	CreatedAt time.Time
}

// NewDeletionDB opens dbPath and initializes the history schema
func NewDeletionDB(dbPath string) (*DeletionDB, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	ddb := &DeletionDB{db: db}
	if err := ddb.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return ddb, nil
}

func (d *DeletionDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deletions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		path TEXT NOT NULL,
		file_name TEXT,
		result TEXT NOT NULL,
		strategy TEXT,
		attempts TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_deletions_timestamp ON deletions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_deletions_result ON deletions(result);
	CREATE INDEX IF NOT EXISTS idx_deletions_strategy ON deletions(strategy);
	CREATE INDEX IF NOT EXISTS idx_deletions_path ON deletions(path);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Attempt is the per-strategy summary stored with a record
type Attempt struct {
	Strategy string
	Outcome  string
}

// RecordDeletion inserts one deletion request into the history.
// Timestamps are stored in UTC so range queries compare as text correctly.
func (d *DeletionDB) RecordDeletion(at time.Time, path string, deleted bool, strategy string, attempts []Attempt) error {
	result := ResultFailed
	if deleted {
		result = ResultDeleted
	}

	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, a.Strategy+"="+a.Outcome)
	}

	_, err := d.db.Exec(`
	INSERT INTO deletions (timestamp, path, file_name, result, strategy, attempts)
	VALUES (?, ?, ?, ?, ?, ?)
	`,
		at.UTC(),
		path,
		filepath.Base(path),
		result,
		strategy,
		strings.Join(parts, "; "),
	)
	return err
}

// Close closes the database connection
func (d *DeletionDB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database (run periodically)
func (d *DeletionDB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}

// GetDatabaseStats returns database statistics
func (d *DeletionDB) GetDatabaseStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalRecords int64
	if err := d.db.QueryRow("SELECT COUNT(*) FROM deletions").Scan(&totalRecords); err != nil {
		return nil, err
	}
	stats["total_records"] = totalRecords

	var pageCount, pageSize int64
	if err := d.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, err
	}
	stats["database_size_bytes"] = pageCount * pageSize

	var oldest, newest sql.NullString
	err := d.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM deletions").Scan(&oldest, &newest)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if t, ok := parseSQLiteTime(oldest); ok {
		stats["oldest_record"] = t
	}
	if t, ok := parseSQLiteTime(newest); ok {
		stats["newest_record"] = t
	}

	return stats, nil
}

// Aggregates come back from SQLite as text in whichever layout the driver
// used when the row was written.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseSQLiteTime(s sql.NullString) (time.Time, bool) {
	if !s.Valid || s.String == "" {
		return time.Time{}, false
	}
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
