package index

import (
	"log/slog"

	"github.com/starford/docreg/internal/graph"
)

// SyncStats summarizes how a snapshot differs from what was mirrored before.
type SyncStats struct {
	Added   int
	Changed int
	Removed int
}

// Sync brings the mirror up to date with a freshly swapped snapshot:
//   - the change summary is computed from stored checksums
//   - the whole snapshot is then written in one transaction
//
// Syncing the snapshot that is already mirrored is a no-op.
func Sync(db *DB, snapshotID string, g *graph.Graph, logger *slog.Logger) (SyncStats, error) {
	var stats SyncStats

	current, err := db.SnapshotID()
	if err != nil {
		return stats, err
	}
	if current == snapshotID {
		return stats, nil
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return stats, err
	}
	seen := make(map[string]struct{}, len(checksums))
	for _, d := range g.Documents() {
		seen[d.ID] = struct{}{}
		cs, ok := checksums[d.ID]
		switch {
		case !ok:
			stats.Added++
		case cs != d.Checksum:
			stats.Changed++
		}
	}
	for id := range checksums {
		if _, ok := seen[id]; !ok {
			stats.Removed++
			logger.Debug("sync: removed stale", slog.String("id", id))
		}
	}

	if err := db.ReplaceSnapshot(snapshotID, g); err != nil {
		return stats, err
	}
	logger.Info("sync: mirror updated",
		slog.String("snapshot", snapshotID),
		slog.Int("added", stats.Added),
		slog.Int("changed", stats.Changed),
		slog.Int("removed", stats.Removed))
	return stats, nil
}
