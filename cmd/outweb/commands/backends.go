package commands

import (
	"fmt"
	"os"
	"strings"

	"outweb/lib/backends"
	"outweb/lib/formatter"

	"github.com/PuerkitoBio/purell"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

const secretMask = "********"

func newBackendsCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "Manage the configured backends.",
	}
	cmd.AddCommand(
		newBackendsModulesCmd(s),
		newBackendsListCmd(s),
		newBackendsAddCmd(s),
		newBackendsRemoveCmd(s),
		newBackendsToggleCmd(s, "enable", true),
		newBackendsToggleCmd(s, "disable", false),
	)
	return cmd
}

func newBackendsModulesCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the modules backends can be created from.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := table.NewWriter()
			t.SetStyle(table.StyleRounded)
			t.SetOutputMirror(s.app.Out)
			t.AppendHeader(table.Row{"Module", "Version", "Capabilities", "Params", "Description"})
			for _, m := range s.app.Registry.Modules() {
				caps := make([]string, len(m.Capabilities))
				for i, c := range m.Capabilities {
					caps[i] = string(c)
				}
				params := make([]string, len(m.Params))
				for i, p := range m.Params {
					params[i] = p.Key
					if p.Required {
						params[i] += "*"
					}
				}
				t.AppendRow(table.Row{
					m.Name,
					m.Version,
					strings.Join(caps, ", "),
					strings.Join(params, ", "),
					m.Description,
				})
			}
			t.Render()
			return nil
		},
	}
}

type backendInfo struct {
	Module  string            `json:"module"`
	Enabled bool              `json:"enabled"`
	Params  map[string]string `json:"params"`
}

func newBackendsListCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the configured backends, secrets are masked.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := s.readConfig()
			if err != nil {
				return err
			}
			var records []formatter.Record
			for _, name := range cfg.Names() {
				bcfg := cfg.Backends[name]
				params := make(map[string]string, len(bcfg.Params))
				module, known := s.app.Registry.Get(bcfg.Module)
				for key, value := range bcfg.Params {
					if spec, ok := module.Param(key); known && ok && spec.Secret {
						value = secretMask
					}
					params[key] = value
				}
				records = append(records, formatter.Record{
					Backend: name,
					Value: backendInfo{
						Module:  bcfg.Module,
						Enabled: bcfg.IsEnabled(),
						Params:  params,
					},
				})
			}
			return s.print(cmd.Context(), "backend", records, false)
		},
	}
}

// normalizeParam cleans up urls typed by hand so that equivalent urls are
// stored the same way.
func normalizeParam(key, value string) (string, error) {
	if key != "url" && !strings.HasSuffix(key, "_url") {
		return value, nil
	}
	return purell.NormalizeURLString(value, purell.FlagsSafe|purell.FlagRemoveTrailingSlash)
}

func parseAssignments(args []string) (map[string]string, error) {
	out := map[string]string{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out[key] = value
	}
	return out, nil
}

func (s *session) prompt(spec backends.ParamSpec) (string, error) {
	label := spec.Label
	if label == "" {
		label = spec.Key
	}
	ui := &input.UI{Writer: s.app.Out, Reader: s.app.input()}

	if len(spec.Choices) > 0 {
		return ui.Select(label, spec.Choices, &input.Options{
			Default: spec.Default,
			Loop:    true,
		})
	}

	opts := &input.Options{
		Default:      spec.Default,
		Required:     spec.Required,
		Loop:         true,
		HideOrder:    true,
		ValidateFunc: spec.Validate,
	}
	// masking reads from the terminal directly
	if file, ok := s.app.In.(*os.File); ok && spec.Secret {
		ui.Reader = file
		opts.Mask = true
		opts.MaskDefault = true
	}
	return ui.Ask(label, opts)
}

func newBackendsAddCmd(s *session) *cobra.Command {
	var name string
	var all bool
	cmd := &cobra.Command{
		Use:   "add <module> [key=value...]",
		Short: "Add a backend, prompting for the params that are not given.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, ok := s.app.Registry.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown module %q, see `outweb backends modules`", args[0])
			}
			if name == "" {
				name = module.Name
			}

			cfg, merged, err := s.editConfig()
			if err != nil {
				return err
			}
			if _, exists := merged.Backends[name]; exists {
				return fmt.Errorf("backend %q already exists, pick another --name", name)
			}

			params, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			for _, spec := range module.Params {
				if _, given := params[spec.Key]; given {
					continue
				}
				if !spec.Required && !all {
					continue
				}
				value, err := s.prompt(spec)
				if err != nil {
					return fmt.Errorf("read %s: %w", spec.Key, err)
				}
				if value != "" && value != spec.Default {
					params[spec.Key] = value
				}
			}
			for key, value := range params {
				params[key], err = normalizeParam(key, value)
				if err != nil {
					return fmt.Errorf("param %s: %w", key, err)
				}
			}

			_, err = module.ResolveParams(params)
			if err != nil {
				return err
			}

			if cfg.Backends == nil {
				cfg.Backends = map[string]backends.BackendConfig{}
			}
			cfg.Backends[name] = backends.BackendConfig{
				Module: module.Name,
				Params: params,
			}
			err = s.saveConfig(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.app.Out, "added backend %s (%s) to %s\n", name, module.Name, s.flags.config)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Name of the backend, defaults to the module name.")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Prompt for optional params too.")
	return cmd
}

func newBackendsRemoveCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>...",
		Short: "Remove backends from the config.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, merged, err := s.editConfig()
			if err != nil {
				return err
			}
			for _, name := range args {
				err = s.editable(cfg, merged, name)
				if err != nil {
					return err
				}
				delete(cfg.Backends, name)
			}
			return s.saveConfig(cfg)
		},
	}
}

func newBackendsToggleCmd(s *session, use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>...",
		Short: strings.ToUpper(use[:1]) + use[1:] + " backends.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, merged, err := s.editConfig()
			if err != nil {
				return err
			}
			for _, name := range args {
				err = s.editable(cfg, merged, name)
				if err != nil {
					return err
				}
				bcfg := cfg.Backends[name]
				bcfg.Enabled = &enabled
				cfg.Backends[name] = bcfg
			}
			return s.saveConfig(cfg)
		},
	}
}
