package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newOutCmd() (*cobra.Command, *bytes.Buffer) {
	c := &cobra.Command{}
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetErr(&buf)
	return c, &buf
}

func TestRenderCommand(t *testing.T) {
	dir := inTempDir(t)
	writeFile(t, filepath.Join(dir, "page.html"),
		`<html xmlns:mk="http://marka.dev/ns/"><h1>$title</h1></html>`)
	writeFile(t, filepath.Join(dir, "data.yml"), "title: Hello\n")

	renderDataFile = filepath.Join(dir, "data.yml")
	renderMethod = "html"
	renderStrict = false
	renderOut = ""
	defer func() { renderDataFile, renderMethod = "", "" }()

	c, buf := newOutCmd()
	err := runRender(c, []string{"page.html"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "<h1>Hello</h1>")
}

func TestRenderCommandToFile(t *testing.T) {
	dir := inTempDir(t)
	writeFile(t, filepath.Join(dir, "note.txt"), "count: ${1 + 2}\n")

	renderDataFile = ""
	renderMethod = "text"
	renderOut = filepath.Join(dir, "out.txt")
	defer func() { renderMethod, renderOut = "", "" }()

	c, _ := newOutCmd()
	err := runRender(c, []string{"note.txt"})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "count: 3\n", string(raw))
}

func TestRenderCommandStrictUndefined(t *testing.T) {
	dir := inTempDir(t)
	writeFile(t, filepath.Join(dir, "page.html"),
		`<html xmlns:mk="http://marka.dev/ns/"><p>$missing</p></html>`)

	renderDataFile = ""
	renderMethod = "xml"
	renderStrict = true
	renderOut = ""
	defer func() { renderMethod, renderStrict = "", false }()

	c, _ := newOutCmd()
	err := runRender(c, []string{"page.html"})
	assert.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	dir := inTempDir(t)
	writeFile(t, filepath.Join(dir, "good.html"),
		`<div xmlns:mk="http://marka.dev/ns/" mk:if="x">ok</div>`)
	writeFile(t, filepath.Join(dir, "bad.html"),
		`<div xmlns:mk="http://marka.dev/ns/" mk:bogus="x">no</div>`)

	c, buf := newOutCmd()
	err := runCheck(c, []string{dir})
	assert.Error(t, err)
	assert.Contains(t, buf.String(), "good.html: ok")
	assert.Contains(t, buf.String(), "bad.html")
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestCheckCommandAllValid(t *testing.T) {
	dir := inTempDir(t)
	writeFile(t, filepath.Join(dir, "a.html"), `<p>plain</p>`)
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), "#if flag\nyes\n#end\n")

	c, buf := newOutCmd()
	err := runCheck(c, []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(buf.String(), ": ok"))
}

func TestVersionCommandJSON(t *testing.T) {
	versionFormat = "json"
	defer func() { versionFormat = "text" }()

	c, buf := newOutCmd()
	err := runVersion(c, nil)
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")
}

func TestVersionCommandBadFormat(t *testing.T) {
	versionFormat = "yaml"
	defer func() { versionFormat = "text" }()

	c, _ := newOutCmd()
	err := runVersion(c, nil)
	assert.ErrorContains(t, err, "unsupported format")
}
