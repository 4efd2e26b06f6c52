package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// Unmarshal decodes contents according to the extension of name. `.yaml` and
// `.yml` are decoded as YAML, everything else as json5.
func Unmarshal(name string, contents []byte, out any) error {
	_, ext := splitExt(filepath.Base(name))
	switch strings.ToLower(ext) {
	case "yaml", "yml":
		return yaml.Unmarshal(contents, out)
	default:
		return json5.Unmarshal(contents, out)
	}
}

// LocalPath returns the path of the local override file for name,
// `backends.json5` becomes `backends.local.json5`.
func LocalPath(name string) string {
	prefixname, ext := splitExt(filepath.Base(name))
	return filepath.Join(
		filepath.Dir(name),
		fmt.Sprintf("%s.local.%s", prefixname, ext),
	)
}

// ReadFile reads a single configuration file, local overrides are not merged.
// An empty file is the zero value of T.
func ReadFile[T any](name string) (T, error) {
	var out T
	contents, err := os.ReadFile(name)
	if err != nil {
		return out, err
	}
	if len(contents) == 0 {
		return out, nil
	}
	err = Unmarshal(name, contents, &out)
	if err != nil {
		return out, fmt.Errorf("parse %s: %w", name, err)
	}
	return out, nil
}

// Overridable is implemented by configs which merge their local overrides
// themselves, mergo replaces struct values held in maps as a whole.
type Overridable[T any] interface {
	Override(local T) T
}

func merge[T any](base, override T) (T, error) {
	if o, ok := any(base).(Overridable[T]); ok {
		return o.Override(override), nil
	}
	err := mergo.Merge(&base, override, mergo.WithOverride)
	return base, err
}

// ReadConfig reads a configuration file, `name` should come with a file extension.
// The following files are merged, where higher number is more prioritized.
// 1. <name>.<ext>
// 2. <name>.local.<ext>
// os.ErrNotExist is returned if neither exists.
func ReadConfig[T any](name string) (T, error) {
	out, err := ReadFile[T](name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	found := err == nil

	localFilepath := LocalPath(name)
	override, err := ReadFile[T](localFilepath)
	if os.IsNotExist(err) {
		if !found {
			return out, os.ErrNotExist
		}
		return out, nil
	}
	if err != nil {
		return out, err
	}

	out, err = merge(out, override)
	if err != nil {
		return out, err
	}
	slog.Debug("merging config with local overrides", "local", localFilepath)
	return out, nil
}

// ReadRecursively is ReadConfig but it goes up the filesystem from the cwd
// until the root to find a configuration file matching the name.
func ReadRecursively[T any](name string) (T, error) {
	var defaultOut T

	current, err := os.Getwd()
	if err != nil {
		return defaultOut, err
	}

	for {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if err == nil {
			return config, nil
		}
		if !os.IsNotExist(err) {
			return defaultOut, err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return defaultOut, os.ErrNotExist
		}
		current = parent
	}
}
