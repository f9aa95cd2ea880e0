package preview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts Options) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	opts.Addr = "127.0.0.1:0"
	opts.Paths = []string{dir}
	srv, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(srv.close)
	return srv, dir
}

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestHandleRender(t *testing.T) {
	srv, dir := newTestServer(t, Options{Method: "html"})
	writeTemplate(t, dir, "page.html",
		`<html xmlns:mk="http://marka.dev/ns/"><h1>$title</h1></html>`)
	dataFile := filepath.Join(dir, "data.yml")
	require.NoError(t, os.WriteFile(dataFile, []byte("title: Hello\n"), 0o644))
	srv.opts.DataFile = dataFile

	rec := httptest.NewRecorder()
	srv.handleRender(rec, httptest.NewRequest(http.MethodGet, "/page.html", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>Hello</h1>")
	assert.Contains(t, body, "__reload", "html previews carry the reload script")
}

func TestHandleRenderXMLHasNoReloadScript(t *testing.T) {
	srv, dir := newTestServer(t, Options{Method: "xml"})
	writeTemplate(t, dir, "doc.xml", `<doc>ok</doc>`)

	rec := httptest.NewRecorder()
	srv.handleRender(rec, httptest.NewRequest(http.MethodGet, "/doc.xml", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.NotContains(t, rec.Body.String(), "__reload")
}

func TestHandleRenderMissingTemplate(t *testing.T) {
	srv, _ := newTestServer(t, Options{Method: "html"})

	rec := httptest.NewRecorder()
	srv.handleRender(rec, httptest.NewRequest(http.MethodGet, "/nope.html", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.handleRender(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReloadBroadcast(t *testing.T) {
	srv, _ := newTestServer(t, Options{Method: "html"})
	ts := httptest.NewServer(http.HandlerFunc(srv.handleReload))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.clients) == 1
	}, time.Second, 10*time.Millisecond)

	srv.broadcast(ctx)

	typ, msg, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.Equal(t, "reload", string(msg))
}

func TestLoadData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: anne\ncount: 3\n"), 0o644))

	data, err := LoadData(path)
	require.NoError(t, err)
	assert.Equal(t, "anne", data["name"])
	assert.Equal(t, 3, data["count"])

	require.NoError(t, os.WriteFile(path, []byte("{ not: closed"), 0o644))
	_, err = LoadData(path)
	assert.Error(t, err)
}
