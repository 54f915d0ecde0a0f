//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the documents table.
	return nil
}

func ftsInsert(_ *sql.Tx, _, _, _ string) error { return nil }

func ftsClear(_ *sql.Tx) error { return nil }

// Search performs a case-insensitive LIKE search over title and body,
// ordered by id (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + escapeLike(query) + "%"
	rows, err := db.conn.Query(`
		SELECT id, title, substr(body, 1, 200)
		FROM documents
		WHERE title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\'
		ORDER BY id
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
