package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/weft/internal/cli/ui"
	"github.com/conduit-lang/weft/internal/deploy"
	"github.com/conduit-lang/weft/internal/descriptor"
)

type inspectOptions struct {
	json   bool
	output string
}

func newInspectCommand(g *globalOptions) *cobra.Command {
	opts := &inspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect [handler]",
		Short: "Show the handlers of the last deployment",
		Long: `Read the manifest of the last deployment and list its handlers.

Without arguments every controller, interceptor and initializer is
listed together with the failures of that deployment. With a handler
identity, or just its type name, the handler's parameters, context
bindings, actions and lifecycle methods are shown.`,
		Example: `  weft inspect
  weft inspect example.com/shop/app.Users
  weft inspect Users --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, g, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the manifest or descriptor as JSON")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output tree holding the manifest (default: deploy.output)")

	return cmd
}

func runInspect(cmd *cobra.Command, g *globalOptions, opts *inspectOptions, args []string) error {
	dir := opts.output
	if dir == "" {
		cfg, err := g.loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Deploy.Output
	}

	m, err := deploy.ReadManifest(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no deployment in %s, run weft build first", dir)
		}
		return fmt.Errorf("reading manifest: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		if opts.json {
			return writeJSON(out, m)
		}
		printManifest(out, g, m)
		return nil
	}

	d, err := findHandler(m, args[0])
	if err != nil {
		return err
	}
	if opts.json {
		return writeJSON(out, d)
	}
	printHandler(out, g, d)
	return nil
}

// findHandler resolves a full identity or an unambiguous type name
func findHandler(m *descriptor.Manifest, name string) (*descriptor.HandlerDescriptor, error) {
	if d, ok := m.Lookup(descriptor.Identity(name)); ok {
		return d, nil
	}

	var (
		byType []*descriptor.HandlerDescriptor
		ids    []string
	)
	for _, d := range m.Handlers() {
		ids = append(ids, string(d.Identity))
		if d.TypeName == name {
			byType = append(byType, d)
		}
	}
	switch len(byType) {
	case 1:
		return byType[0], nil
	case 0:
	default:
		names := make([]string, len(byType))
		for i, d := range byType {
			names[i] = string(d.Identity)
		}
		return nil, fmt.Errorf("%q is ambiguous: %s", name, strings.Join(names, ", "))
	}

	msg := fmt.Sprintf("no handler %q in the deployment", name)
	if similar := ui.FindSimilar(name, ids, 3); len(similar) > 0 {
		msg += "\n\nDid you mean?\n  " + strings.Join(similar, "\n  ")
	}
	return nil, errors.New(msg)
}

func printManifest(w io.Writer, g *globalOptions, m *descriptor.Manifest) {
	ui.KeyValue(w, [][2]string{
		{"module", m.Module},
		{"source hash", shortHash(m.SourceHash)},
	}, g.noColor)

	if len(m.Controllers) > 0 {
		fmt.Fprintln(w)
		ui.Header(w, "Controllers", g.noColor)
		t := ui.NewTable(w, g.noColor, "IDENTITY", "PATTERN", "ACTIONS", "INTERCEPTORS")
		for _, d := range m.Controllers {
			t.AddRow(string(d.Identity), patternString(d), actionNames(d), interceptorNames(d))
		}
		t.Render()
	}

	if len(m.Interceptors) > 0 {
		fmt.Fprintln(w)
		ui.Header(w, "Interceptors", g.noColor)
		t := ui.NewTable(w, g.noColor, "IDENTITY", "PARAMETERS", "BEFORE", "AFTER")
		for _, d := range m.Interceptors {
			t.AddRow(string(d.Identity), parameterNames(d), methodName(d.Before), methodName(d.After))
		}
		t.Render()
	}

	if len(m.Initializers) > 0 {
		fmt.Fprintln(w)
		ui.Header(w, "Initializers", g.noColor)
		t := ui.NewTable(w, g.noColor, "IDENTITY", "INIT", "DESTROY")
		for _, d := range m.Initializers {
			t.AddRow(string(d.Identity), methodName(d.Init), methodName(d.Destroy))
		}
		t.Render()
	}

	if len(m.Failures) > 0 {
		fmt.Fprintln(w)
		ui.Header(w, "Failures", g.noColor)
		t := ui.NewTable(w, g.noColor, "CODE", "HANDLER", "MESSAGE")
		for _, f := range m.Failures {
			where := string(f.Handler)
			if where == "" {
				where = f.File
			}
			t.AddRow(f.Code, where, f.Message)
		}
		t.Render()
	}

	if len(m.Handlers()) == 0 && len(m.Failures) == 0 {
		g.color(color.FgYellow).Fprintln(w, "\nNo handlers deployed")
	}
}

func printHandler(w io.Writer, g *globalOptions, d *descriptor.HandlerDescriptor) {
	ui.Header(w, string(d.Identity), g.noColor)
	pairs := [][2]string{
		{"kind", d.Kind.String()},
		{"file", d.File},
	}
	if d.Pattern != nil {
		pairs = append(pairs, [2]string{"pattern", d.Pattern.String()})
	}
	for _, lm := range []struct {
		name string
		m    *descriptor.LifecycleMethod
	}{{"before", d.Before}, {"after", d.After}, {"init", d.Init}, {"destroy", d.Destroy}} {
		if lm.m != nil {
			pairs = append(pairs, [2]string{lm.name, lm.m.Method})
		}
	}
	ui.KeyValue(w, pairs, g.noColor)

	if len(d.Parameters) > 0 {
		fmt.Fprintln(w)
		t := ui.NewTable(w, g.noColor, "PARAMETER", "TYPE", "CONVERTER")
		for _, p := range d.Parameters {
			t.AddRow(p.Name, p.Type, p.Converter)
		}
		t.Render()
	}

	if len(d.Contexts) > 0 {
		fmt.Fprintln(w)
		t := ui.NewTable(w, g.noColor, "CONTEXT", "MEMBER")
		for _, c := range d.Contexts {
			t.AddRow(string(c.Kind), c.Member)
		}
		t.Render()
	}

	if len(d.Actions) > 0 {
		fmt.Fprintln(w)
		t := ui.NewTable(w, g.noColor, "ACTION", "METHOD", "CONTENT TYPE", "INTERCEPTORS")
		for _, a := range d.Actions {
			t.AddRow(a.Name, a.Method, a.ContentType, joinIdentities(a.Interceptors))
		}
		t.Render()
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func patternString(d *descriptor.HandlerDescriptor) string {
	if d.Pattern == nil {
		return ""
	}
	return d.Pattern.String()
}

func actionNames(d *descriptor.HandlerDescriptor) string {
	names := make([]string, len(d.Actions))
	for i, a := range d.Actions {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

// interceptorNames lists the distinct interceptors used by any action
func interceptorNames(d *descriptor.HandlerDescriptor) string {
	seen := map[descriptor.Identity]bool{}
	var ids []descriptor.Identity
	for _, a := range d.Actions {
		for _, id := range a.Interceptors {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return joinIdentities(ids)
}

func parameterNames(d *descriptor.HandlerDescriptor) string {
	names := make([]string, len(d.Parameters))
	for i, p := range d.Parameters {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}

func joinIdentities(ids []descriptor.Identity) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.TypeName()
	}
	return strings.Join(names, ", ")
}

func methodName(m *descriptor.LifecycleMethod) string {
	if m == nil {
		return "-"
	}
	return m.Method
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
