package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/docreg/internal/registry"
	"github.com/starford/docreg/internal/testutil"
)

var quietLogger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatch(t *testing.T, root string, refresh RefreshFunc) {
	t.Helper()
	startWatchConfig(t, Config{Root: root, Debounce: 50 * time.Millisecond}, refresh)
}

func startWatchConfig(t *testing.T, cfg Config, refresh RefreshFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, cfg, quietLogger, refresh)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func counter() (*atomic.Int32, RefreshFunc) {
	var n atomic.Int32
	return &n, func(context.Context) error {
		n.Add(1)
		return nil
	}
}

func TestWatcher_NewDocumentRefreshes(t *testing.T) {
	root := t.TempDir()
	calls, refresh := counter()
	startWatch(t, root, refresh)

	_ = os.WriteFile(filepath.Join(root, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return calls.Load() >= 1
	}, "new document did not trigger a refresh")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	calls, refresh := counter()
	startWatch(t, root, refresh)

	_ = os.WriteFile(filepath.Join(root, "notes.txt"), []byte("plain"), 0o644)
	time.Sleep(300 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("refresh called %d times for a non-document file", n)
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	root := t.TempDir()
	calls, refresh := counter()
	startWatch(t, root, refresh)

	sub := filepath.Join(root, "skills")
	_ = os.MkdirAll(sub, 0o755)
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return calls.Load() >= 1
	}, "new directory did not trigger a refresh")

	before := calls.Load()
	_ = os.WriteFile(filepath.Join(sub, "deep.md"), []byte("# Deep"), 0o644)
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return calls.Load() > before
	}, "file in new subdir did not trigger a refresh")
}

func TestWatcher_RemoveRefreshes(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{"agents/gone.md": "# Gone"})
	calls, refresh := counter()
	startWatch(t, root, refresh)

	_ = os.Remove(filepath.Join(root, "agents", "gone.md"))

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return calls.Load() >= 1
	}, "removal did not trigger a refresh")
}

func TestWatcher_IgnoredDirectories(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"skills/a/SKILL.md":                 "# A",
		"skills/node_modules/pkg/README.md": "# vendored",
		".git/HEAD.md":                      "ref",
	})
	calls, refresh := counter()
	startWatchConfig(t, Config{
		Root:     root,
		Ignore:   []string{"**/node_modules/**", ".git/**"},
		Debounce: 50 * time.Millisecond,
	}, refresh)

	_ = os.WriteFile(filepath.Join(root, "skills", "node_modules", "pkg", "README.md"), []byte("# changed"), 0o644)
	_ = os.Remove(filepath.Join(root, ".git", "HEAD.md"))
	_ = os.Mkdir(filepath.Join(root, "skills", "a", "node_modules"), 0o755)
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("refresh called %d times for changes under ignored directories", n)
	}

	_ = os.WriteFile(filepath.Join(root, "skills", "a", "SKILL.md"), []byte("# A2"), 0o644)
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return calls.Load() >= 1
	}, "change outside ignored directories did not trigger a refresh")
}

func TestWatcher_DrivesRegistry(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{"skills/a/SKILL.md": "# A"})
	svc := registry.NewService(registry.WithRoot(root), registry.WithLogger(quietLogger))
	if _, err := svc.Refresh(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	startWatch(t, root, func(ctx context.Context) error {
		_, err := svc.Refresh(ctx, "")
		return err
	})

	testutil.WriteFiles(t, root, map[string]string{"commands/run.md": "Use skills/a/SKILL.md."})

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		docs, err := svc.Backlinks("skills/a/SKILL")
		return err == nil && len(docs) == 1
	}, "registry did not pick up the new command")
}
