package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"outweb/lib/backends"
	"outweb/lib/capabilities/base"
	"outweb/lib/capabilities/torrent"
	"outweb/lib/configutil"
	"outweb/lib/telemetry"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

var constructed atomic.Int64

type fakeSearcher struct {
	name string
	fail bool
}

func (f fakeSearcher) IterTorrents(ctx context.Context, pattern string) ([]torrent.Torrent, error) {
	if f.fail {
		return nil, errors.New("site is down")
	}
	return []torrent.Torrent{
		{Object: base.Object{ID: "2", Backend: f.name}, Name: "something else", Seeders: 50},
		{Object: base.Object{ID: "1", Backend: f.name}, Name: "show one", Seeders: 5},
	}, nil
}

func (f fakeSearcher) GetTorrent(ctx context.Context, id string) (torrent.Torrent, error) {
	if id != "1" {
		return torrent.Torrent{}, base.ErrNotFound
	}
	return torrent.Torrent{
		Object:      base.Object{ID: "1", Backend: f.name},
		Name:        "show one",
		Description: "the first one",
	}, nil
}

func (f fakeSearcher) GetTorrentFile(ctx context.Context, id string) ([]byte, error) {
	return []byte("d8:announce0:e"), nil
}

var fakeModule = backends.Module{
	Name:         "fake",
	Capabilities: []base.Capability{base.CapTorrent},
	Params: []backends.ParamSpec{
		{Key: "url", Required: true},
		{Key: "password", Secret: true},
		{Key: "fail", Default: "no", Choices: []string{"yes", "no"}},
	},
	New: func(ctx context.Context, env backends.Env) (any, error) {
		constructed.Add(1)
		return fakeSearcher{name: env.Name, fail: env.Params["fail"] == "yes"}, nil
	},
}

type harness struct {
	app    *App
	out    *bytes.Buffer
	errOut *bytes.Buffer
	config string
}

func setup(t *testing.T, input string) *harness {
	cleanup := telemetry.SetupForTesting("test:commands")
	t.Cleanup(cleanup)
	constructed.Store(0)

	registry := backends.NewRegistry()
	registry.Register(fakeModule)
	h := &harness{
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
		config: filepath.Join(t.TempDir(), "backends.json5"),
	}
	h.app = newApp(registry, strings.NewReader(input), h.out, h.errOut)
	return h
}

func (h *harness) run(args ...string) error {
	return Execute(context.Background(), h.app, append([]string{"--config", h.config}, args...))
}

func (h *harness) writeConfig(t *testing.T, cfg backends.Config) {
	require.NoError(t, backends.Save(h.config, cfg))
}

func twoBackends() backends.Config {
	return backends.Config{Backends: map[string]backends.BackendConfig{
		"a": {Module: "fake", Params: map[string]string{"url": "https://a.example"}},
		"b": {Module: "fake", Params: map[string]string{"url": "https://b.example", "fail": "yes"}},
	}}
}

func TestBackendsAddListRemove(t *testing.T) {
	h := setup(t, "HTTPS://Example.COM/\n")

	err := h.run("backends", "add", "fake", "--name", "mine", "password=hunter2")
	require.NoError(t, err)
	require.Contains(t, h.out.String(), "added backend mine")

	cfg, err := backends.ReadConfig(h.config)
	require.NoError(t, err)
	require.Equal(t, backends.BackendConfig{
		Module: "fake",
		Params: map[string]string{"url": "https://example.com", "password": "hunter2"},
	}, cfg.Backends["mine"])

	err = h.run("backends", "add", "fake", "--name", "mine", "url=https://x.example")
	require.ErrorContains(t, err, "already exists")
	err = h.run("backends", "add", "nope")
	require.ErrorContains(t, err, "unknown module")
	err = h.run("backends", "add", "fake", "--name", "other", "url=https://x.example", "color=red")
	require.ErrorContains(t, err, "no param")

	h.out.Reset()
	err = h.run("backends", "list", "-f", "json")
	require.NoError(t, err)
	var listed []backendInfo
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &listed))
	require.Len(t, listed, 1)
	require.Equal(t, secretMask, listed[0].Params["password"])
	require.True(t, listed[0].Enabled)

	err = h.run("backends", "disable", "mine")
	require.NoError(t, err)
	cfg, err = backends.ReadConfig(h.config)
	require.NoError(t, err)
	require.False(t, cfg.Backends["mine"].IsEnabled())

	err = h.run("backends", "remove", "mine")
	require.NoError(t, err)
	cfg, err = backends.ReadConfig(h.config)
	require.NoError(t, err)
	require.Empty(t, cfg.Backends)
}

func TestBackendsEditKeepsLocalOverride(t *testing.T) {
	h := setup(t, "")
	require.NoError(t, backends.Save(h.config, backends.Config{Backends: map[string]backends.BackendConfig{
		"a": {Module: "fake", Params: map[string]string{"url": "https://a.example"}},
	}}))
	local := configutil.LocalPath(h.config)
	require.NoError(t, os.WriteFile(local, []byte(`{
		backends: {
			a: { params: { password: "s3cret" } },
			b: { module: "fake", params: { url: "https://b.example", password: "hunter2" } },
		},
	}`), 0600))

	err := h.run("backends", "disable", "a")
	require.NoError(t, err)
	err = h.run("backends", "add", "fake", "--name", "c", "url=https://c.example")
	require.NoError(t, err)
	err = h.run("backends", "add", "fake", "--name", "b", "url=https://x.example")
	require.ErrorContains(t, err, "already exists")

	contents, err := os.ReadFile(h.config)
	require.NoError(t, err)
	require.NotContains(t, string(contents), "hunter2")
	require.NotContains(t, string(contents), "s3cret")

	main, err := backends.ReadMainConfig(h.config)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, main.Names())
	require.False(t, main.Backends["a"].IsEnabled())

	err = h.run("backends", "remove", "b")
	require.ErrorContains(t, err, "only defined in")
	err = h.run("backends", "enable", "b")
	require.ErrorContains(t, err, "only defined in")
	err = h.run("backends", "remove", "zzz")
	require.ErrorContains(t, err, "not configured")

	merged, err := backends.ReadConfig(h.config)
	require.NoError(t, err)
	require.Equal(t, "s3cret", merged.Backends["a"].Params["password"])
	require.Equal(t, "hunter2", merged.Backends["b"].Params["password"])
}

func TestSearchPartialFailure(t *testing.T) {
	h := setup(t, "")
	h.writeConfig(t, twoBackends())

	err := h.run("torrent", "search", "show", "one", "-f", "json")
	require.NoError(t, err)

	var found []torrent.Torrent
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &found))
	require.Len(t, found, 2)
	// ranked by similarity to the pattern
	require.Equal(t, "show one", found[0].Name)
	require.Contains(t, h.errOut.String(), "warning: b: site is down")
}

func TestSearchAllFailed(t *testing.T) {
	h := setup(t, "")
	h.writeConfig(t, twoBackends())

	err := h.run("-b", "b", "torrent", "search", "show")
	require.ErrorContains(t, err, "site is down")
}

func TestSearchConditionAndCount(t *testing.T) {
	h := setup(t, "")
	h.writeConfig(t, twoBackends())

	err := h.run("-b", "a", "-c", "seeders>10", "torrent", "search", "show", "-f", "json")
	require.NoError(t, err)
	var found []torrent.Torrent
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &found))
	require.Len(t, found, 1)
	require.Equal(t, "2", found[0].ID)

	h.out.Reset()
	err = h.run("-b", "a", "-n", "1", "torrent", "search", "show", "-f", "json")
	require.NoError(t, err)
	found = nil
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &found))
	require.Len(t, found, 1)

	err = h.run("-c", "seeders!", "torrent", "search", "show")
	require.Error(t, err)
}

func TestInfo(t *testing.T) {
	h := setup(t, "")
	h.writeConfig(t, twoBackends())

	err := h.run("torrent", "info", "1@a", "-f", "json")
	require.NoError(t, err)
	var info torrent.Torrent
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &info))
	require.Equal(t, "the first one", info.Description)

	err = h.run("torrent", "info", "9@a")
	require.ErrorContains(t, err, "torrent 9 not found on a")

	// two backends could have it
	err = h.run("torrent", "info", "1")
	require.ErrorContains(t, err, "ambiguous")

	err = h.run("-b", "a", "torrent", "info", "1", "-f", "json")
	require.NoError(t, err)
}

func TestGetFile(t *testing.T) {
	h := setup(t, "")
	h.writeConfig(t, twoBackends())

	dest := filepath.Join(t.TempDir(), "out.torrent")
	err := h.run("torrent", "getfile", "1@a", "-O", dest)
	require.NoError(t, err)
	contents, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "d8:announce0:e", string(contents))
}

func TestSqliteNeedsOutput(t *testing.T) {
	h := setup(t, "")
	h.writeConfig(t, twoBackends())

	err := h.run("-b", "a", "-f", "sqlite", "torrent", "search", "show")
	require.ErrorContains(t, err, "needs an output file")

	err = h.run("-f", "yaml", "torrent", "search", "show")
	require.ErrorContains(t, err, "unknown format")
}

func TestRepl(t *testing.T) {
	h := setup(t, strings.Join([]string{
		`torrent search "show one" -f csv`,
		`torrent info 1 -f json`,
		`repl`,
		`torrent info "unterminated`,
		`exit`,
		`torrent search never`,
	}, "\n")+"\n")
	h.writeConfig(t, twoBackends())

	err := h.run("-b", "a", "repl")
	require.NoError(t, err)

	out := h.out.String()
	require.Contains(t, out, `"description": "the first one"`)
	require.NotContains(t, out, "never")
	require.Contains(t, h.errOut.String(), "already in the repl")
	require.Contains(t, h.errOut.String(), "EOF")
	// the backend was built once and reused by every command
	require.Equal(t, int64(1), constructed.Load())
}

func TestReplEOF(t *testing.T) {
	h := setup(t, "torrent info 1@a -f json")
	h.writeConfig(t, twoBackends())

	err := h.run("repl")
	require.NoError(t, err)
	require.Contains(t, h.out.String(), `"name": "show one"`)
}

func TestChangedFlags(t *testing.T) {
	var got []string
	root := &cobra.Command{Use: "root"}
	root.PersistentFlags().String("config", "", "")
	root.PersistentFlags().StringSliceP("backends", "b", nil, "")
	root.PersistentFlags().BoolP("verbose", "v", false, "")
	root.PersistentFlags().Int("count", 10, "")
	root.AddCommand(&cobra.Command{
		Use: "child",
		RunE: func(cmd *cobra.Command, args []string) error {
			got = changedFlags(cmd.Flags())
			return nil
		},
	})
	root.SetArgs([]string{"--config", "/tmp/x.json5", "-b", "a,b", "child", "-v"})
	require.NoError(t, root.Execute())

	require.ElementsMatch(t, []string{
		"--config=/tmp/x.json5",
		"--backends=a",
		"--backends=b",
		"--verbose=true",
	}, got)
}

func TestReplKeepsConfigFlag(t *testing.T) {
	h := setup(t, "backends list -f json\n")
	h.writeConfig(t, twoBackends())

	err := h.run("repl")
	require.NoError(t, err)
	require.Empty(t, h.errOut.String())
	require.Contains(t, h.out.String(), "https://a.example")
	require.Contains(t, h.out.String(), "https://b.example")
}

func TestNormalizeParam(t *testing.T) {
	value, err := normalizeParam("url", "HTTP://Example.com:80/a/")
	require.NoError(t, err)
	require.Equal(t, "http://example.com/a", value)

	value, err = normalizeParam("username", "Alice/")
	require.NoError(t, err)
	require.Equal(t, "Alice/", value)
}
