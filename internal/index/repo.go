package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/docreg/internal/apperr"
	"github.com/starford/docreg/internal/graph"
	"github.com/starford/docreg/internal/models"
)

const metaSnapshotKey = "snapshot_id"

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	ID          string
	Category    models.Category
	Path        string
	Title       string
	Description string
	Checksum    string
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string
	Title   string
	Snippet string
}

// DanglingRow is an unresolved reference stored in the refs table.
type DanglingRow struct {
	Source string
	Raw    string
}

// ReplaceSnapshot rewrites the whole mirror from g inside a single transaction,
// so readers see either the previous snapshot or the new one.
func (db *DB) ReplaceSnapshot(snapshotID string, g *graph.Graph) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, table := range []string{"documents", "refs", "diagnostics"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("index: clear %s: %w", table, err)
		}
	}
	if err := ftsClear(tx); err != nil {
		return err
	}

	docStmt, err := tx.Prepare(`
		INSERT INTO documents (id, category, path, title, description, checksum, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare document insert: %w", err)
	}
	defer docStmt.Close()
	for _, d := range g.Documents() {
		if _, err := docStmt.Exec(d.ID, string(d.Category), d.Path, d.Title, d.Description, d.Checksum, d.Body); err != nil {
			return fmt.Errorf("index: insert document %s: %w", d.ID, err)
		}
		// FTS insert (no-op when FTS5 tag is absent).
		if err := ftsInsert(tx, d.ID, d.Title, d.Body); err != nil {
			return err
		}
	}

	refStmt, err := tx.Prepare(`INSERT INTO refs (source, seq, raw, target, resolved) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare ref insert: %w", err)
	}
	defer refStmt.Close()
	seq := make(map[string]int)
	for _, e := range g.Edges() {
		target := sql.NullString{String: e.To, Valid: e.Resolved}
		if _, err := refStmt.Exec(e.From, seq[e.From], e.Raw, target, e.Resolved); err != nil {
			return fmt.Errorf("index: insert ref: %w", err)
		}
		seq[e.From]++
	}

	diagStmt, err := tx.Prepare(`INSERT INTO diagnostics (seq, kind, source, raw, cycle, message) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare diagnostic insert: %w", err)
	}
	defer diagStmt.Close()
	for i, d := range g.Diagnostics() {
		if _, err := diagStmt.Exec(i, string(d.Kind), d.From, d.Raw, strings.Join(d.Cycle, " -> "), d.Message); err != nil {
			return fmt.Errorf("index: insert diagnostic: %w", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaSnapshotKey, snapshotID); err != nil {
		return fmt.Errorf("index: record snapshot: %w", err)
	}

	return tx.Commit()
}

// SnapshotID returns the id of the mirrored snapshot, or empty string if none.
func (db *DB) SnapshotID() (string, error) {
	var id string
	err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaSnapshotKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: snapshot id: %w", err)
	}
	return id, nil
}

// GetDocument returns the mirrored row for id.
func (db *DB) GetDocument(id string) (*DocumentRow, error) {
	var r DocumentRow
	var category string
	err := db.conn.QueryRow(`
		SELECT id, category, path, title, description, checksum
		FROM documents WHERE id = ?
	`, id).Scan(&r.ID, &category, &r.Path, &r.Title, &r.Description, &r.Checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: document %q: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	r.Category = models.Category(category)
	return &r, nil
}

// AllChecksums returns the checksum of every mirrored document keyed by id.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

// Backlinks returns the distinct document ids with a resolved reference to target.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT source FROM refs WHERE target = ? AND resolved = 1 ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Dangling returns every unresolved reference in edge order.
func (db *DB) Dangling() ([]DanglingRow, error) {
	rows, err := db.conn.Query(`SELECT source, raw FROM refs WHERE resolved = 0 ORDER BY source, seq`)
	if err != nil {
		return nil, fmt.Errorf("index: dangling: %w", err)
	}
	defer rows.Close()

	out := []DanglingRow{}
	for rows.Next() {
		var r DanglingRow
		if err := rows.Scan(&r.Source, &r.Raw); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
