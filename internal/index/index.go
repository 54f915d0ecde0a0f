package index

import "github.com/starford/docreg/internal/graph"

// Mirror defines the read/write surface of the snapshot mirror.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type Mirror interface {
	ReplaceSnapshot(snapshotID string, g *graph.Graph) error
	SnapshotID() (string, error)
	GetDocument(id string) (*DocumentRow, error)
	AllChecksums() (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	Dangling() ([]DanglingRow, error)
	Close() error
}

// Verify *DB satisfies Mirror at compile time.
var _ Mirror = (*DB)(nil)
