package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, path string) *Watcher {
	t.Helper()
	w, err := New(path, 20*time.Millisecond, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return w
}

func expectChange(t *testing.T, w *Watcher, want string) {
	t.Helper()
	select {
	case got := <-w.Changes():
		assert.Equal(t, want, got)
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}
}

func expectQuiet(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case got := <-w.Changes():
		t.Fatalf("unexpected change %s", got)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWriteIsReportedOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "library.yaml")
	require.NoError(t, os.WriteFile(path, []byte("assets: []\n"), 0644))
	w := start(t, path)

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("assets: [] # edit\n"), 0644))
	}
	abs, _ := filepath.Abs(path)
	expectChange(t, w, abs)
	expectQuiet(t, w)
}

func TestReplaceByRenameIsReported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "library.yaml")
	require.NoError(t, os.WriteFile(path, []byte("assets: []\n"), 0644))
	w := start(t, path)

	tmp := filepath.Join(dir, ".library.yaml.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("assets: [] # saved\n"), 0644))
	require.NoError(t, os.Rename(tmp, path))
	expectChange(t, w, path)
}

func TestOtherFilesAreIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "library.yaml")
	require.NoError(t, os.WriteFile(path, []byte("assets: []\n"), 0644))
	w := start(t, path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	expectQuiet(t, w)
}

func TestMissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope", "library.yaml"), 0, nil)
	assert.Error(t, err)
}
