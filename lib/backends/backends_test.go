package backends

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"outweb/lib/capabilities/base"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type greeter interface {
	Greet() string
}

type hello struct {
	name   string
	params map[string]string
}

func (h hello) Greet() string {
	return "hello " + h.params["who"]
}

func testRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(Module{
		Name:         "hello",
		Capabilities: []base.Capability{"greeter"},
		Params: []ParamSpec{
			{Key: "who", Default: "world"},
			{Key: "lang", Choices: []string{"en", "fr"}, Default: "en"},
			{Key: "token", Regexp: "[a-f0-9]+"},
		},
		New: func(ctx context.Context, env Env) (any, error) {
			return hello{name: env.Name, params: env.Params}, nil
		},
	})
	reg.Register(Module{
		Name:   "strict",
		Params: []ParamSpec{{Key: "password", Required: true, Secret: true}},
		New: func(ctx context.Context, env Env) (any, error) {
			return struct{}{}, nil
		},
	})
	return reg
}

func TestRegistry(t *testing.T) {
	reg := testRegistry()

	var names []string
	for _, m := range reg.Modules() {
		names = append(names, m.Name)
	}
	require.Equal(t, []string{"hello", "strict"}, names)

	_, ok := reg.Get("missing")
	require.False(t, ok)

	require.Panics(t, func() {
		reg.Register(Module{Name: "hello"})
	})
}

func TestResolveParams(t *testing.T) {
	m, _ := testRegistry().Get("hello")

	params, err := m.ResolveParams(map[string]string{"who": "gopher", "token": "beef"})
	require.NoError(t, err)
	if diff := cmp.Diff(map[string]string{"who": "gopher", "lang": "en", "token": "beef"}, params); diff != "" {
		t.Fatal(diff)
	}

	_, err = m.ResolveParams(map[string]string{"lang": "de"})
	require.Error(t, err)
	_, err = m.ResolveParams(map[string]string{"token": "xyz"})
	require.Error(t, err)
	_, err = m.ResolveParams(map[string]string{"unknown": "1"})
	require.Error(t, err)

	strict, _ := testRegistry().Get("strict")
	_, err = strict.ResolveParams(nil)
	require.ErrorContains(t, err, "required")
}

func TestLoad(t *testing.T) {
	disabled := false
	cfg := Config{Backends: map[string]BackendConfig{
		"a":      {Module: "hello", Params: map[string]string{"who": "a"}},
		"b":      {Module: "hello", Enabled: &disabled},
		"broken": {Module: "strict"},
		"ghost":  {Module: "nope"},
	}}

	loaded, err := Load(context.Background(), testRegistry(), cfg, LoadOptions{})
	require.Error(t, err)
	require.ErrorContains(t, err, `backend "broken"`)
	require.ErrorContains(t, err, `unknown module "nope"`)
	require.Len(t, loaded, 1)
	require.Equal(t, "a", loaded[0].Name)
	require.Equal(t, "hello a", loaded[0].Impl.(greeter).Greet())

	loaded, err = Load(context.Background(), testRegistry(), cfg, LoadOptions{Names: []string{"b"}})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "hello world", loaded[0].Impl.(greeter).Greet())

	_, err = Load(context.Background(), testRegistry(), cfg, LoadOptions{Names: []string{"zzz"}})
	require.ErrorContains(t, err, "not configured")
}

func TestFilter(t *testing.T) {
	backends := []Backend{
		{Name: "a", Impl: hello{}},
		{Name: "b", Impl: struct{}{}},
	}
	filtered := Filter[greeter](backends)
	require.Len(t, filtered, 1)
	require.Equal(t, "a", filtered[0].Name)
}

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg, err := ReadConfig(filepath.Join(dir, "backends.json5"))
	require.NoError(t, err)
	require.Empty(t, cfg.Backends)

	for _, name := range []string{"backends.json5", "backends.yaml"} {
		path := filepath.Join(dir, name)
		cfg := Config{Backends: map[string]BackendConfig{
			"nyaa": {Module: "nyaa"},
			"work": {Module: "redmine", Params: map[string]string{"url": "https://redmine.example.com"}},
		}}
		require.NoError(t, Save(path, cfg))

		stat, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0600), stat.Mode().Perm())

		read, err := ReadConfig(path)
		require.NoError(t, err)
		if diff := cmp.Diff(cfg, read); diff != "" {
			t.Fatal(name, diff)
		}
	}
}

func TestConfigLocalOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backends.json5")

	err := os.WriteFile(path, []byte(`{
		// shared backends
		backends: {
			nyaa: { module: "nyaa" },
		},
	}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "backends.local.json5"), []byte(`{
		backends: {
			work: { module: "redmine", params: { username: "me" } },
		},
	}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"nyaa", "work"}, cfg.Names())
	require.Equal(t, "me", cfg.Backends["work"].Params["username"])
}

func TestConfigLocalOverridesParam(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backends.json5")

	require.NoError(t, Save(path, Config{Backends: map[string]BackendConfig{
		"work": {Module: "redmine", Params: map[string]string{
			"url":      "https://redmine.example.com",
			"username": "me",
		}},
	}}))
	err := os.WriteFile(filepath.Join(dir, "backends.local.json5"), []byte(`{
		backends: {
			work: { params: { password: "s3cret" }, enabled: false },
		},
	}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	disabled := false
	expected := BackendConfig{
		Module: "redmine",
		Params: map[string]string{
			"url":      "https://redmine.example.com",
			"username": "me",
			"password": "s3cret",
		},
		Enabled: &disabled,
	}
	if diff := cmp.Diff(expected, cfg.Backends["work"]); diff != "" {
		t.Fatal(diff)
	}

	main, err := ReadMainConfig(path)
	require.NoError(t, err)
	require.NotContains(t, main.Backends["work"].Params, "password")
	require.True(t, main.Backends["work"].IsEnabled())
}

func TestParamValidateBadRegexp(t *testing.T) {
	err := ParamSpec{Key: "x", Regexp: "("}.Validate("a")
	require.Error(t, err)
	require.False(t, errors.Is(err, os.ErrNotExist))
}
