package remote

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/withterm/term-sub003/internal/errs"
	"github.com/withterm/term-sub003/internal/metrics"
)

// CachedEntry is an Entry persisted in the OfflineCache, identified by its
// row id for later deletion once successfully uploaded.
type CachedEntry struct {
	ID int64
	Entry
}

// OfflineCache persists Entries that could not be uploaded (or could not
// even fit in the in-memory Buffer) to a local SQLite database, so they
// survive a process restart (spec §6).
type OfflineCache struct {
	db *sql.DB
}

// NewOfflineCache opens (creating if absent) a SQLite database at path and
// ensures its schema exists.
func NewOfflineCache(path string) (*OfflineCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening offline cache: %v", errs.ErrCache, err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS pending_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	queued_at INTEGER NOT NULL,
	ready_at INTEGER NOT NULL DEFAULT 0
);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("%w: creating offline cache schema: %v", errs.ErrCache, err)
	}

	return &OfflineCache{db: db}, nil
}

// Close closes the underlying database handle.
func (c *OfflineCache) Close() error { return c.db.Close() }

// Save persists entry and returns its assigned row id.
func (c *OfflineCache) Save(entry Entry) (int64, error) {
	doc, err := json.Marshal(entry.Document)
	if err != nil {
		return 0, fmt.Errorf("%w: marshaling document for offline cache: %v", errs.ErrSerialization, err)
	}

	res, err := c.db.Exec(
		`INSERT INTO pending_metrics (document, retry_count, queued_at, ready_at) VALUES (?, ?, ?, ?)`,
		string(doc), entry.RetryCount, entry.QueuedAt.Unix(), unixOrZero(entry.ReadyAt),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: inserting into offline cache: %v", errs.ErrCache, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: reading offline cache insert id: %v", errs.ErrCache, err)
	}

	return id, nil
}

// LoadAll returns every persisted entry, oldest first.
func (c *OfflineCache) LoadAll() ([]CachedEntry, error) {
	rows, err := c.db.Query(
		`SELECT id, document, retry_count, queued_at, ready_at FROM pending_metrics ORDER BY queued_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: querying offline cache: %v", errs.ErrCache, err)
	}
	defer rows.Close()

	var out []CachedEntry

	for rows.Next() {
		var (
			id                        int64
			docJSON                   string
			retryCount                int
			queuedAtUnix, readyAtUnix int64
		)

		if err := rows.Scan(&id, &docJSON, &retryCount, &queuedAtUnix, &readyAtUnix); err != nil {
			return nil, fmt.Errorf("%w: scanning offline cache row: %v", errs.ErrCache, err)
		}

		var doc metrics.Document
		if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
			return nil, fmt.Errorf("%w: unmarshaling cached document: %v", errs.ErrSerialization, err)
		}

		entry := CachedEntry{
			ID: id,
			Entry: Entry{
				Document:   doc,
				RetryCount: retryCount,
				QueuedAt:   time.Unix(queuedAtUnix, 0),
			},
		}

		if readyAtUnix > 0 {
			entry.ReadyAt = time.Unix(readyAtUnix, 0)
		}

		out = append(out, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating offline cache rows: %v", errs.ErrCache, err)
	}

	return out, nil
}

// DeleteIDs removes the given row ids, typically after a successful upload.
func (c *OfflineCache) DeleteIDs(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: starting offline cache delete transaction: %v", errs.ErrCache, err)
	}

	stmt, err := tx.Prepare(`DELETE FROM pending_metrics WHERE id = ?`)
	if err != nil {
		tx.Rollback()

		return fmt.Errorf("%w: preparing offline cache delete: %v", errs.ErrCache, err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			tx.Rollback()

			return fmt.Errorf("%w: deleting offline cache row %d: %v", errs.ErrCache, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing offline cache delete: %v", errs.ErrCache, err)
	}

	return nil
}

// Clear removes every persisted entry.
func (c *OfflineCache) Clear() error {
	if _, err := c.db.Exec(`DELETE FROM pending_metrics`); err != nil {
		return fmt.Errorf("%w: clearing offline cache: %v", errs.ErrCache, err)
	}

	return nil
}

// Count returns the number of persisted entries.
func (c *OfflineCache) Count() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM pending_metrics`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting offline cache rows: %v", errs.ErrCache, err)
	}

	return n, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.Unix()
}
