package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/marka/pkg/eval"
	"github.com/conneroisu/marka/pkg/output"
	"github.com/conneroisu/marka/pkg/template"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func render(t *testing.T, tmpl *template.Template, data map[string]any) string {
	t.Helper()
	out, err := output.Render(tmpl.Render(data, eval.Lenient), output.XML())
	require.NoError(t, err)
	return out
}

func TestLoadFromSearchPath(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	write(t, second, "page.xml", `<p>from second</p>`)

	l, err := New([]string{first, second})
	require.NoError(t, err)

	tmpl, err := l.Load("page.xml", "")
	require.NoError(t, err)
	assert.Equal(t, `<p>from second</p>`, render(t, tmpl, nil))
}

func TestSearchPathOrder(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	write(t, first, "page.xml", `<p>one</p>`)
	write(t, second, "page.xml", `<p>two</p>`)

	l, err := New([]string{first, second})
	require.NoError(t, err)

	tmpl, err := l.Load("page.xml", "")
	require.NoError(t, err)
	assert.Equal(t, `<p>one</p>`, render(t, tmpl, nil))
}

func TestLoadCachesByPath(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "page.xml", `<p/>`)

	l, err := New([]string{dir})
	require.NoError(t, err)

	a, err := l.Load("page.xml", "")
	require.NoError(t, err)
	b, err := l.Load("page.xml", "")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestNotFound(t *testing.T) {
	l, err := New([]string{t.TempDir()})
	require.NoError(t, err)

	_, err = l.Load("missing.xml", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, template.ErrNotFound))
}

func TestIncludeResolvesRelativeToIncludingFile(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "sub/outer.xml",
		`<doc xmlns:xi="http://www.w3.org/2001/XInclude"><xi:include href="inner.xml"/></doc>`)
	write(t, dir, "sub/inner.xml", `<p>inner</p>`)

	l, err := New([]string{dir})
	require.NoError(t, err)

	tmpl, err := l.Load("sub/outer.xml", "")
	require.NoError(t, err)
	assert.Equal(t, `<doc><p>inner</p></doc>`, render(t, tmpl, nil))
}

func TestIncludeFallsBackToSearchPath(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "sub/outer.xml",
		`<doc xmlns:xi="http://www.w3.org/2001/XInclude"><xi:include href="shared.xml"/></doc>`)
	write(t, dir, "shared.xml", `<p>shared</p>`)

	l, err := New([]string{dir})
	require.NoError(t, err)

	tmpl, err := l.Load("sub/outer.xml", "")
	require.NoError(t, err)
	assert.Equal(t, `<doc><p>shared</p></doc>`, render(t, tmpl, nil))
}

func TestMissingIncludeUsesFallback(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "outer.xml",
		`<doc xmlns:xi="http://www.w3.org/2001/XInclude"><xi:include href="gone.xml"><xi:fallback><p>fallback</p></xi:fallback></xi:include></doc>`)

	l, err := New([]string{dir})
	require.NoError(t, err)

	tmpl, err := l.Load("outer.xml", "")
	require.NoError(t, err)
	assert.Equal(t, `<doc><p>fallback</p></doc>`, render(t, tmpl, nil))
}

func TestMissingIncludeWithoutFallbackFails(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "outer.xml",
		`<doc xmlns:xi="http://www.w3.org/2001/XInclude"><xi:include href="gone.xml"/></doc>`)

	l, err := New([]string{dir})
	require.NoError(t, err)

	tmpl, err := l.Load("outer.xml", "")
	require.NoError(t, err)
	_, err = tmpl.Render(nil, eval.Lenient).Events()
	require.Error(t, err)
	assert.True(t, errors.Is(err, template.ErrNotFound))
}

func TestTextTemplateByExtension(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "mail.txt", "Hello ${name}!\n")

	l, err := New([]string{dir})
	require.NoError(t, err)

	tmpl, err := l.Load("mail.txt", "")
	require.NoError(t, err)
	out, err := output.Render(tmpl.Render(map[string]any{"name": "Ada"}, eval.Lenient), output.Text())
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada!\n", out)
}

func TestInvalidateDropsCacheEntry(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "page.xml", `<p>old</p>`)

	l, err := New([]string{dir})
	require.NoError(t, err)

	a, err := l.Load("page.xml", "")
	require.NoError(t, err)

	write(t, dir, "page.xml", `<p>new</p>`)
	l.invalidate(path)

	b, err := l.Load("page.xml", "")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, `<p>new</p>`, render(t, b, nil))
}

func TestAutoReloadLoaderCloses(t *testing.T) {
	l, err := New([]string{t.TempDir()}, WithAutoReload())
	require.NoError(t, err)
	require.NoError(t, l.Close())
}
