package backends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"outweb/lib/configutil"
	"outweb/lib/restyutil"
	"outweb/lib/telemetry"

	"gopkg.in/yaml.v3"
)

type BackendConfig struct {
	Module string            `json:"module" yaml:"module"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	// nil means enabled
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

func (c BackendConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type Config struct {
	Backends map[string]BackendConfig `json:"backends" yaml:"backends"`
}

// Names returns the backend names sorted.
func (c Config) Names() []string {
	out := make([]string, 0, len(c.Backends))
	for name := range c.Backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Override merges a local override into c backend by backend. A module
// replaces the module, params are merged key by key and a set enabled flag
// replaces the flag.
func (c Config) Override(local Config) Config {
	out := Config{Backends: make(map[string]BackendConfig, len(c.Backends)+len(local.Backends))}
	maps.Copy(out.Backends, c.Backends)
	for name, o := range local.Backends {
		b := out.Backends[name]
		if o.Module != "" {
			b.Module = o.Module
		}
		if len(o.Params) > 0 {
			params := make(map[string]string, len(b.Params)+len(o.Params))
			maps.Copy(params, b.Params)
			maps.Copy(params, o.Params)
			b.Params = params
		}
		if o.Enabled != nil {
			b.Enabled = o.Enabled
		}
		out.Backends[name] = b
	}
	return out
}

func emptyIfMissing(cfg Config, err error) (Config, error) {
	if errors.Is(err, os.ErrNotExist) {
		return Config{Backends: map[string]BackendConfig{}}, nil
	}
	if err != nil {
		return Config{}, err
	}
	if cfg.Backends == nil {
		cfg.Backends = map[string]BackendConfig{}
	}
	return cfg, nil
}

// ReadConfig reads the backends file along with its `.local` override. A
// missing file is an empty config.
func ReadConfig(path string) (Config, error) {
	return emptyIfMissing(configutil.ReadConfig[Config](path))
}

// ReadMainConfig reads the backends file without its `.local` override, this
// is what commands editing the file start from.
func ReadMainConfig(path string) (Config, error) {
	return emptyIfMissing(configutil.ReadFile[Config](path))
}

// Save writes cfg to path, as YAML for `.yaml`/`.yml` and as JSON otherwise
// (which json5 reads back). The `.local` override is never written.
func Save(path string, cfg Config) error {
	var out []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		out, err = yaml.Marshal(cfg)
	default:
		out, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		return err
	}
	// params may hold passwords
	return os.WriteFile(path, out, 0600)
}

type Backend struct {
	Name   string
	Module Module
	Impl   any
}

type LoadOptions struct {
	// Names restricts loading to these backends, empty means all enabled
	// backends. A named backend is loaded even when disabled.
	Names     []string
	Telemetry telemetry.API
	Dump      restyutil.Output
}

// Load instantiates the configured backends. A backend that fails to load
// does not stop the others, its error is joined into the returned error.
func Load(ctx context.Context, registry *Registry, cfg Config, opts LoadOptions) ([]Backend, error) {
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}

	names := opts.Names
	explicit := len(names) > 0
	if !explicit {
		names = cfg.Names()
	}

	var out []Backend
	var errs []error
	for _, name := range names {
		bcfg, ok := cfg.Backends[name]
		if !ok {
			errs = append(errs, fmt.Errorf("backend %q is not configured", name))
			continue
		}
		if !explicit && !bcfg.IsEnabled() {
			continue
		}

		backend, err := load(ctx, registry, name, bcfg, tel, opts.Dump)
		if err != nil {
			errs = append(errs, fmt.Errorf("backend %q: %w", name, err))
			continue
		}
		out = append(out, backend)
	}
	return out, errors.Join(errs...)
}

func load(ctx context.Context, registry *Registry, name string, cfg BackendConfig, tel telemetry.API, dump restyutil.Output) (Backend, error) {
	module, ok := registry.Get(cfg.Module)
	if !ok {
		return Backend{}, fmt.Errorf("unknown module %q", cfg.Module)
	}
	params, err := module.ResolveParams(cfg.Params)
	if err != nil {
		return Backend{}, err
	}
	impl, err := module.New(ctx, Env{
		Name:      name,
		Params:    params,
		Telemetry: tel,
		Dump:      dump,
	})
	if err != nil {
		return Backend{}, fmt.Errorf("init %s: %w", module.Name, err)
	}
	return Backend{Name: name, Module: module, Impl: impl}, nil
}

// Filter returns the backends implementing capability C.
func Filter[C any](backends []Backend) []Backend {
	var out []Backend
	for _, b := range backends {
		if _, ok := b.Impl.(C); ok {
			out = append(out, b)
		}
	}
	return out
}
