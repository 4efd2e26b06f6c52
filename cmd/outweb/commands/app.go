package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"outweb/lib/backends"
	"outweb/lib/capabilities/base"
	"outweb/lib/configutil"
	"outweb/lib/formatter"
	"outweb/lib/restyutil"
	"outweb/lib/scrapers/all"
	"outweb/lib/telemetry"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// App is the state that outlives a single command, so that the repl reuses
// backends along with their login sessions.
type App struct {
	Registry *backends.Registry
	In       io.Reader
	Out      io.Writer
	Err      io.Writer

	mutex       sync.Mutex
	reader      *bufio.Reader
	loaded      map[string][]backends.Backend
	perfStarted bool

	// index in the last listing -> id@backend
	listing *expirable.LRU[string, string]
}

func NewApp() *App {
	return newApp(all.Registry(), os.Stdin, os.Stdout, os.Stderr)
}

func newApp(registry *backends.Registry, in io.Reader, out, errOut io.Writer) *App {
	return &App{
		Registry: registry,
		In:       in,
		Out:      out,
		Err:      errOut,
		loaded:   map[string][]backends.Backend{},
		listing:  expirable.NewLRU[string, string](4096, nil, time.Hour),
	}
}

// input is shared by the repl and prompts so neither reads ahead of the other.
func (a *App) input() *bufio.Reader {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.reader == nil {
		a.reader = bufio.NewReader(a.In)
	}
	return a.reader
}

func (a *App) invalidate() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.loaded = map[string][]backends.Backend{}
}

func (a *App) startPerfStats(ctx context.Context) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.perfStarted {
		return
	}
	a.perfStarted = true
	telemetry.InstrumentPerfStats(ctx)
}

// remember replaces the last listing.
func (a *App) remember(ids []string) {
	a.listing.Purge()
	for i, id := range ids {
		a.listing.Add(strconv.Itoa(i+1), id)
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "backends.json5"
	}
	return filepath.Join(dir, "outweb", "backends.json5")
}

type flags struct {
	config         string
	backends       []string
	format         string
	output         string
	columns        []string
	count          int
	condition      string
	verbose        bool
	maxConcurrency int
	timeout        time.Duration
	dumpDir        string
}

// session is one command invocation.
type session struct {
	app   *App
	flags *flags
}

func (s *session) readConfig() (backends.Config, error) {
	return backends.ReadConfig(s.flags.config)
}

// editConfig returns the main config file, the one commands change, and the
// merged view used to check which backends exist.
func (s *session) editConfig() (backends.Config, backends.Config, error) {
	main, err := backends.ReadMainConfig(s.flags.config)
	if err != nil {
		return backends.Config{}, backends.Config{}, err
	}
	merged, err := s.readConfig()
	if err != nil {
		return backends.Config{}, backends.Config{}, err
	}
	return main, merged, nil
}

// editable returns an error when name can't be changed in the main config.
func (s *session) editable(main, merged backends.Config, name string) error {
	if _, ok := main.Backends[name]; ok {
		return nil
	}
	if _, ok := merged.Backends[name]; ok {
		return fmt.Errorf("backend %q is only defined in %s", name, configutil.LocalPath(s.flags.config))
	}
	return fmt.Errorf("backend %q is not configured", name)
}

func (s *session) saveConfig(cfg backends.Config) error {
	err := backends.Save(s.flags.config, cfg)
	if err != nil {
		return err
	}
	s.app.invalidate()
	return nil
}

// backends loads the selected backends once per app.
func (s *session) backends(ctx context.Context) ([]backends.Backend, error) {
	key := strings.Join([]string{
		s.flags.config,
		strings.Join(s.flags.backends, ","),
		s.flags.dumpDir,
	}, "|")

	s.app.mutex.Lock()
	defer s.app.mutex.Unlock()
	if cached, ok := s.app.loaded[key]; ok {
		return cached, nil
	}

	cfg, err := s.readConfig()
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	opts := backends.LoadOptions{
		Names:     s.flags.backends,
		Telemetry: telemetry.SlogAPI{},
	}
	if s.flags.dumpDir != "" {
		out, err := restyutil.NewFilesystemOutput(s.flags.dumpDir)
		if err != nil {
			return nil, err
		}
		opts.Dump = out
	}

	list, err := backends.Load(ctx, s.app.Registry, cfg, opts)
	if err != nil {
		if len(list) == 0 {
			return nil, err
		}
		slog.Warn("some backends failed to load", "err", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no backend is configured in %s, add one with `outweb backends add`", s.flags.config)
	}
	s.app.loaded[key] = list
	return list, nil
}

// resolveID turns a listing index or an `id@backend` into its parts. The
// backend is empty when the argument names none.
func (s *session) resolveID(arg string) (string, string, error) {
	if _, err := strconv.Atoi(arg); err == nil {
		if full, ok := s.app.listing.Get(arg); ok {
			arg = full
		}
	}
	return base.ParseFullID(arg)
}

// pickBackend settles the backend of an id given without one, which only
// works when a single loaded backend implements C.
func pickBackend[C any](list []backends.Backend, id, backend string) (string, error) {
	if backend != "" {
		return backend, nil
	}
	candidates := backends.Filter[C](list)
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("no loaded backend supports this")
	case 1:
		return candidates[0].Name, nil
	}
	return "", fmt.Errorf("ambiguous id %q, use %s@<backend>", id, id)
}

func (s *session) print(ctx context.Context, kind string, records []formatter.Record, details bool) error {
	f, err := formatter.Get(s.flags.format)
	if err != nil {
		return err
	}
	opts := formatter.Options{
		Kind:    kind,
		Columns: s.flags.columns,
		Details: details,
	}

	var w io.Writer = s.app.Out
	if formatter.NeedsPath(s.flags.format) {
		if s.flags.output == "" {
			return fmt.Errorf("format %s needs an output file, set it with -o", s.flags.format)
		}
		opts.Path = s.flags.output
	} else if s.flags.output != "" {
		file, err := os.Create(s.flags.output)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	return f.Write(ctx, w, records, opts)
}

func (s *session) warn(format string, args ...any) {
	fmt.Fprintf(s.app.Err, "warning: "+format+"\n", args...)
}
