package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string            `json:"name" yaml:"name"`
	Count   int               `json:"count" yaml:"count"`
	Headers map[string]string `json:"headers" yaml:"headers"`
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.json5")

	require.NoError(t, os.WriteFile(path, []byte(`{
		// comments are allowed
		name: "base",
		count: 1,
	}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.local.json5"), []byte(`{count: 5}`), 0600))

	cfg, err := ReadConfig[testConfig](path)
	require.NoError(t, err)
	require.Equal(t, "base", cfg.Name)
	require.Equal(t, 5, cfg.Count)
}

func TestReadConfigYaml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: yml\nheaders:\n  a: b\n"), 0600))

	cfg, err := ReadConfig[testConfig](path)
	require.NoError(t, err)
	require.Equal(t, "yml", cfg.Name)
	require.Equal(t, map[string]string{"a": "b"}, cfg.Headers)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "nope.json5"))
	require.True(t, os.IsNotExist(err))
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, filepath.Join("a", "backends.local.json5"), LocalPath(filepath.Join("a", "backends.json5")))
}

func TestReadFileSkipsLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{name: "base", count: 1}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.local.json5"), []byte(`{count: 5}`), 0600))

	cfg, err := ReadFile[testConfig](path)
	require.NoError(t, err)
	require.Equal(t, testConfig{Name: "base", Count: 1}, cfg)

	_, err = ReadFile[testConfig](filepath.Join(dir, "nope.json5"))
	require.True(t, os.IsNotExist(err))
}

type layeredConfig struct {
	Layers []string `json:"layers"`
}

func (c layeredConfig) Override(local layeredConfig) layeredConfig {
	return layeredConfig{Layers: append(append([]string{}, c.Layers...), local.Layers...)}
}

func TestReadConfigOverridable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{layers: ["main"]}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.local.json5"), []byte(`{layers: ["local"]}`), 0600))

	cfg, err := ReadConfig[layeredConfig](path)
	require.NoError(t, err)
	require.Equal(t, []string{"main", "local"}, cfg.Layers)
}

func TestReadConfigLocalOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.json5")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.local.json5"), []byte(`{name: "local"}`), 0600))

	cfg, err := ReadConfig[testConfig](path)
	require.NoError(t, err)
	require.Equal(t, "local", cfg.Name)
}
