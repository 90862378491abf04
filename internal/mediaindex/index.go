package mediaindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"path/filepath"
	"time"

	"media-reaper/internal/database"
	"media-reaper/internal/fsops"
)

// ErrNotFound is returned by Delete when no entry has the given id
var ErrNotFound = errors.New("media index entry not found")

// Entry is one indexed media file. Data is the absolute path on disk, which
// may no longer exist: the index and the filesystem can drift apart.
type Entry struct {
	ID           int64
	Data         string
	DisplayName  string
	Size         int64
	MimeType     string
	DateAdded    time.Time
	DateModified time.Time
}

// Index is the media catalogue kept alongside the raw filesystem
type Index struct {
	db      *sql.DB
	deleter fsops.Deleter
}

// Open opens the index stored in dbPath
func Open(dbPath string) (*Index, error) {
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, err
	}
	idx := &Index{db: db, deleter: fsops.OSDeleter{}}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize media index schema: %w", err)
	}
	return idx, nil
}

// SetDeleter replaces the filesystem used to remove backing files
func (i *Index) SetDeleter(d fsops.Deleter) {
	i.deleter = d
}

func (i *Index) initSchema() error {
	_, err := i.db.Exec(`
	CREATE TABLE IF NOT EXISTS media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		data TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		size INTEGER NOT NULL,
		mime_type TEXT,
		date_added DATETIME NOT NULL,
		date_modified DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_media_display_name ON media(display_name);

	CREATE TABLE IF NOT EXISTS media_schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO media_schema_version (version) VALUES (1);
	`)
	return err
}

// SchemaVersion returns the highest applied media index schema version
func (i *Index) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := i.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM media_schema_version`).Scan(&v)
	return v, err
}

// Ping checks that the index can be queried
func (i *Index) Ping(ctx context.Context) error {
	var n int
	err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM (SELECT 1 FROM media LIMIT 1)`).Scan(&n)
	if err != nil {
		return fmt.Errorf("media index unavailable: %w", err)
	}
	return nil
}

// Close closes the database connection
func (i *Index) Close() error {
	return i.db.Close()
}

// Insert adds or refreshes the entry for e.Data and returns its id
func (i *Index) Insert(ctx context.Context, e Entry) (int64, error) {
	if e.DisplayName == "" {
		e.DisplayName = filepath.Base(e.Data)
	}
	if e.MimeType == "" {
		e.MimeType = mime.TypeByExtension(filepath.Ext(e.Data))
	}
	if e.DateAdded.IsZero() {
		e.DateAdded = time.Now()
	}

	_, err := i.db.ExecContext(ctx, `
	INSERT INTO media (data, display_name, size, mime_type, date_added, date_modified)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(data) DO UPDATE SET
		display_name = excluded.display_name,
		size = excluded.size,
		mime_type = excluded.mime_type,
		date_modified = excluded.date_modified
	`, e.Data, e.DisplayName, e.Size, e.MimeType, e.DateAdded.UTC(), e.DateModified.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", e.Data, err)
	}

	id, _, err := i.Lookup(ctx, e.Data)
	return id, err
}

// Lookup returns the id of the entry whose stored path equals path
func (i *Index) Lookup(ctx context.Context, path string) (int64, bool, error) {
	var id int64
	err := i.db.QueryRowContext(ctx, `SELECT id FROM media WHERE data = ?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup %s: %w", path, err)
	}
	return id, true, nil
}

// Get returns the entry with the given id
func (i *Index) Get(ctx context.Context, id int64) (Entry, error) {
	var e Entry
	var mimeType sql.NullString
	var modified sql.NullTime
	err := i.db.QueryRowContext(ctx, `
	SELECT id, data, display_name, size, mime_type, date_added, date_modified
	FROM media WHERE id = ?
	`, id).Scan(&e.ID, &e.Data, &e.DisplayName, &e.Size, &mimeType, &e.DateAdded, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	e.MimeType = mimeType.String
	if modified.Valid {
		e.DateModified = modified.Time
	}
	return e, nil
}

// Delete removes the entry and then its backing file, returning the number of
// rows removed. The row is gone even if removing the file fails; that error is
// returned alongside rows=1.
func (i *Index) Delete(ctx context.Context, id int64) (int64, error) {
	e, err := i.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	res, err := i.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete entry %d: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := i.deleter.Remove(e.Data); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return rows, fmt.Errorf("remove %s: %w", e.Data, err)
	}
	return rows, nil
}

// Count returns the number of indexed entries
func (i *Index) Count(ctx context.Context) (int64, error) {
	var n int64
	err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media`).Scan(&n)
	return n, err
}

// List returns up to limit entries, most recently added first
func (i *Index) List(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := i.db.QueryContext(ctx, `
	SELECT id, data, display_name, size, mime_type, date_added, date_modified
	FROM media
	ORDER BY date_added DESC, id DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var mimeType sql.NullString
		var modified sql.NullTime
		if err := rows.Scan(&e.ID, &e.Data, &e.DisplayName, &e.Size, &mimeType, &e.DateAdded, &modified); err != nil {
			return nil, err
		}
		e.MimeType = mimeType.String
		if modified.Valid {
			e.DateModified = modified.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune drops entries whose backing file no longer exists and returns how
// many were dropped. Files are never touched.
func (i *Index) Prune(ctx context.Context) (int64, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT id, data FROM media`)
	if err != nil {
		return 0, err
	}

	var stale []int64
	for rows.Next() {
		var id int64
		var data string
		if err := rows.Scan(&id, &data); err != nil {
			rows.Close()
			return 0, err
		}
		if !i.deleter.Exists(data) {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	var pruned int64
	for _, id := range stale {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		res, err := i.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id)
		if err != nil {
			return pruned, fmt.Errorf("prune entry %d: %w", id, err)
		}
		n, _ := res.RowsAffected()
		pruned += n
	}
	return pruned, nil
}
