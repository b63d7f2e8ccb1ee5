package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fulmenhq/folio/pkg/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWatchManifest(t *testing.T) (string, *manifest.Manifest) {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"publish.yml": `version: 0.1.0
publish:
  - path: book
    out: book.pdf
    use_book_json: true
  - path: notes/todo.md
    out: todo.pdf
`,
		"book/book.json":         `{"root": "content"}`,
		"book/content/intro.md":  "# Intro\n",
		"book/content/part/a.md": "# A\n",
		"notes/todo.md":          "# Todo\n",
	})
	m, err := manifest.Load(filepath.Join(root, "publish.yml"))
	require.NoError(t, err)
	return root, m
}

func TestNewWatchSet(t *testing.T) {
	root, m := loadWatchManifest(t)
	ws := NewWatchSet(m)

	assert.Equal(t, []string{filepath.Join(root, "book", "content")}, ws.Trees)
	assert.Equal(t, []string{filepath.Join(root, "notes")}, ws.Dirs)
	assert.Contains(t, ws.Ignored, filepath.Join(root, "publish.yml"))
	assert.Contains(t, ws.Ignored, filepath.Join(root, "publish"))

	assert.True(t, ws.Skip(filepath.Join(root, "publish", "book.pdf")))
	assert.True(t, ws.Skip(filepath.Join(root, "book", "content", "SUMMARY.md")))
	assert.True(t, ws.Skip(filepath.Join(root, "book", "content", ".intro.md.swp")))
	assert.False(t, ws.Skip(filepath.Join(root, "book", "content", "intro.md")))
	assert.False(t, ws.Skip(filepath.Join(root, "publishing.md")))
}

func TestWatcherBatchesChanges(t *testing.T) {
	root, m := loadWatchManifest(t)
	w, err := NewWatcher(root, NewWatchSet(m), 200*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	assert.Contains(t, w.Watched(), filepath.Join(root, "book", "content", "part"))

	batches := make(chan []string, 4)
	w.OnChange = func(_ context.Context, changed []string) { batches <- changed }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(root, "book", "content", "SUMMARY.md"), []byte("# Summary\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "book", "content", "part", "a.md"), []byte("# A2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes", "todo.md"), []byte("# Todo2\n"), 0o644))

	select {
	case got := <-batches:
		assert.Equal(t, []string{"book/content/part/a.md", "notes/todo.md"}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change batch delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
