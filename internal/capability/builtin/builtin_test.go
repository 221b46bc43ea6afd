package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebFetchExtractsReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Doc</title><script>evil()</script></head>
<body><h1>Heading</h1><p>First paragraph.</p><p>Second   paragraph.</p></body></html>`))
	}))
	defer srv.Close()

	fetch := NewWebFetch(WebFetchConfig{})
	result, err := fetch.Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)

	assert.Contains(t, result.Content, "Heading")
	assert.Contains(t, result.Content, "First paragraph.")
	assert.Contains(t, result.Content, "Second paragraph.")
	assert.NotContains(t, result.Content, "evil")
	assert.Equal(t, "Doc", result.Data["title"])
}

func TestWebFetchRejectsBadURLAndStatus(t *testing.T) {
	fetch := NewWebFetch(WebFetchConfig{})

	_, err := fetch.Execute(context.Background(), map[string]any{"url": "ftp://example.com"})
	require.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err = fetch.Execute(context.Background(), map[string]any{"url": srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFileWriteThenRead(t *testing.T) {
	root := t.TempDir()
	write := NewFileWrite(FileConfig{Root: root})
	read := NewFileRead(FileConfig{Root: root})

	_, err := write.Execute(context.Background(), map[string]any{
		"path":    "notes/summary.txt",
		"content": "hello",
	})
	require.NoError(t, err)

	result, err := read.Execute(context.Background(), map[string]any{"path": "notes/summary.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Content)

	onDisk, err := os.ReadFile(filepath.Join(root, "notes", "summary.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(onDisk))
}

func TestFilePathSafety(t *testing.T) {
	root := t.TempDir()
	read := NewFileRead(FileConfig{Root: root})

	for _, path := range []string{"/etc/passwd", "../secret", "~/creds", `\\share\x`, "a/../../b"} {
		_, err := read.Execute(context.Background(), map[string]any{"path": path})
		require.Error(t, err, "path %q must be rejected", path)
	}
}

func TestThinkEchoesThought(t *testing.T) {
	result, err := NewThink().Execute(context.Background(), map[string]any{"thought": "step one"})
	require.NoError(t, err)
	assert.Equal(t, "step one", result.Data["output"])
}
