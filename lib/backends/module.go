package backends

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"sync"

	"outweb/lib/browser"
	"outweb/lib/capabilities/base"
	"outweb/lib/restyutil"
	"outweb/lib/telemetry"
)

// ParamSpec describes one configuration value a module accepts.
type ParamSpec struct {
	Key      string
	Label    string
	Default  string
	Required bool
	// Secret values are masked when prompted for and when listed.
	Secret  bool
	Choices []string
	// Regexp must match the whole value when set.
	Regexp string
}

func (p ParamSpec) Validate(value string) error {
	if value == "" {
		if p.Required {
			return fmt.Errorf("param %q is required", p.Key)
		}
		return nil
	}
	if len(p.Choices) > 0 && !slices.Contains(p.Choices, value) {
		return fmt.Errorf("param %q must be one of %v, got %q", p.Key, p.Choices, value)
	}
	if p.Regexp != "" {
		re, err := regexp.Compile("^(?:" + p.Regexp + ")$")
		if err != nil {
			return fmt.Errorf("param %q has an invalid regexp: %w", p.Key, err)
		}
		if !re.MatchString(value) {
			return fmt.Errorf("param %q does not match %s", p.Key, p.Regexp)
		}
	}
	return nil
}

// Env is everything a module constructor gets to build a backend.
type Env struct {
	// Name of the backend instance, not of the module.
	Name      string
	Params    map[string]string
	Telemetry telemetry.API
	Dump      restyutil.Output
}

// BrowserOptions returns browser options scoped to this backend.
func (e Env) BrowserOptions(baseUrl string) browser.Options {
	return browser.Options{
		BaseUrl:   baseUrl,
		Name:      e.Name,
		Telemetry: e.Telemetry,
		Dump:      e.Dump,
	}
}

// Module is a backend implementation that can be instantiated any number of
// times with different params.
type Module struct {
	Name         string
	Description  string
	Maintainer   string
	Version      string
	License      string
	Capabilities []base.Capability
	Params       []ParamSpec
	// New builds the backend. The returned value implements the capability
	// interfaces listed in Capabilities.
	New func(ctx context.Context, env Env) (any, error)
}

func (m Module) Param(key string) (ParamSpec, bool) {
	for _, p := range m.Params {
		if p.Key == key {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// ResolveParams validates given against the module params and fills in
// defaults. Unknown keys are an error.
func (m Module) ResolveParams(given map[string]string) (map[string]string, error) {
	for key := range given {
		if _, ok := m.Param(key); !ok {
			return nil, fmt.Errorf("module %s has no param %q", m.Name, key)
		}
	}

	out := make(map[string]string, len(m.Params))
	for _, p := range m.Params {
		value, ok := given[p.Key]
		if !ok || value == "" {
			value = p.Default
		}
		err := p.Validate(value)
		if err != nil {
			return nil, err
		}
		out[p.Key] = value
	}
	return out, nil
}

type Registry struct {
	lock    sync.RWMutex
	modules map[string]Module
}

func NewRegistry() *Registry {
	return &Registry{modules: map[string]Module{}}
}

// Register panics on a duplicate name, registration happens at startup.
func (r *Registry) Register(m Module) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if m.Name == "" {
		panic("backends: module without a name")
	}
	if _, ok := r.modules[m.Name]; ok {
		panic(fmt.Sprintf("backends: module %q registered twice", m.Name))
	}
	r.modules[m.Name] = m
}

func (r *Registry) Get(name string) (Module, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Modules returns every registered module sorted by name.
func (r *Registry) Modules() []Module {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
