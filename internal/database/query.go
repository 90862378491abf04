package database

import (
	"database/sql"
	"time"
)

const selectColumns = `
	SELECT id, timestamp, path, file_name, result, strategy, attempts, created_at
	FROM deletions
`

// GetRecentDeletions returns the N most recent deletion requests
func (d *DeletionDB) GetRecentDeletions(limit int) ([]DeletionRecord, error) {
	return d.queryDeletions(selectColumns+`
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`, limit)
}

// GetDeletionsByResult returns requests with the given result (DELETED, FAILED)
func (d *DeletionDB) GetDeletionsByResult(result string, limit int) ([]DeletionRecord, error) {
	return d.queryDeletions(selectColumns+`
	WHERE result = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`, result, limit)
}

// GetDeletionsByStrategy returns requests won by the given strategy
func (d *DeletionDB) GetDeletionsByStrategy(strategy string, limit int) ([]DeletionRecord, error) {
	return d.queryDeletions(selectColumns+`
	WHERE strategy = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`, strategy, limit)
}

// GetDeletionsByPath returns requests matching a SQL LIKE path pattern
func (d *DeletionDB) GetDeletionsByPath(pathPattern string, limit int) ([]DeletionRecord, error) {
	return d.queryDeletions(selectColumns+`
	WHERE path LIKE ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`, pathPattern, limit)
}

// DeletionStats holds aggregated statistics
type DeletionStats struct {
	TotalRequests int
	TotalDeleted  int
	TotalFailed   int
	ByStrategy    map[string]int
	StartDate     time.Time
	EndDate       time.Time
}

// GetDeletionStats returns statistics for the last N days
func (d *DeletionDB) GetDeletionStats(days int) (*DeletionStats, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -days)

	stats := &DeletionStats{
		StartDate:  since,
		EndDate:    now,
		ByStrategy: make(map[string]int),
	}

	err := d.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN result = 'DELETED' THEN 1 END),
			COUNT(CASE WHEN result = 'FAILED' THEN 1 END)
		FROM deletions
		WHERE timestamp >= ?
	`, since).Scan(&stats.TotalRequests, &stats.TotalDeleted, &stats.TotalFailed)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`
		SELECT strategy, COUNT(*)
		FROM deletions
		WHERE result = 'DELETED' AND timestamp >= ?
		GROUP BY strategy
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var strategy string
		var count int
		if err := rows.Scan(&strategy, &count); err != nil {
			return nil, err
		}
		stats.ByStrategy[strategy] = count
	}

	return stats, rows.Err()
}

// DeleteOldRecords removes records older than the given number of days
func (d *DeletionDB) DeleteOldRecords(olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	result, err := d.db.Exec(`DELETE FROM deletions WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (d *DeletionDB) queryDeletions(query string, args ...interface{}) ([]DeletionRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DeletionRecord
	for rows.Next() {
		var r DeletionRecord
		var fileName, strategy, attempts sql.NullString
		var createdAt sql.NullTime

		if err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Path, &fileName,
			&r.Result, &strategy, &attempts, &createdAt,
		); err != nil {
			return nil, err
		}

		r.FileName = fileName.String
		r.Strategy = strategy.String
		r.Attempts = attempts.String
		if createdAt.Valid {
			r.CreatedAt = createdAt.Time
		}

		records = append(records, r)
	}

	return records, rows.Err()
}
