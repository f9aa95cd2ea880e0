package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err, "explicit missing file should fail")

	// No explicit file: defaults apply.
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(old)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"."}, cfg.Templates.Paths)
	assert.Equal(t, "xml", cfg.Render.Method)
	assert.Equal(t, 100, cfg.Render.MaxRecursion)
	assert.Equal(t, "localhost:8420", cfg.Serve.Addr())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marka.yml")
	content := `
templates:
  paths: [tmpl, shared]
  auto_reload: true
render:
  method: html
  strict: true
serve:
  port: 9000
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"tmpl", "shared"}, cfg.Templates.Paths)
	assert.True(t, cfg.Templates.AutoReload)
	assert.Equal(t, "html", cfg.Render.Method)
	assert.True(t, cfg.Render.Strict)
	assert.Equal(t, "localhost:9000", cfg.Serve.Addr())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MARKA_RENDER_METHOD", "text")
	t.Setenv("MARKA_SERVE_PORT", "7777")

	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(old)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.Render.Method)
	assert.Equal(t, 7777, cfg.Serve.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad method", func(c *Config) { c.Render.Method = "pdf" }, "render.method"},
		{"zero recursion", func(c *Config) { c.Render.MaxRecursion = 0 }, "max_recursion"},
		{"bad port", func(c *Config) { c.Serve.Port = 70000 }, "serve.port"},
		{"no paths", func(c *Config) { c.Templates.Paths = nil }, "templates.paths"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Templates: TemplatesConfig{Paths: []string{"."}},
				Render:    RenderConfig{Method: "xml", MaxRecursion: 100},
				Serve:     ServeConfig{Host: "localhost", Port: 8420},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
