// Package testutil provides shared test helpers for building document trees and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/docreg/internal/index"
	"github.com/starford/docreg/internal/storage"
)

// WriteTree creates files (relative slash paths to content) under a fresh temp
// directory and returns the directory.
func WriteTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	WriteFiles(t, root, files)
	return root
}

// WriteFiles writes files under root, creating parent directories as needed.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// TestTree writes files into a temp root and returns it with a storage.FS over it.
func TestTree(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	root := WriteTree(t, files)
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// TestDB creates a temporary SQLite mirror that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "docreg-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
