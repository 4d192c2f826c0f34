package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/respack/internal/cli/ui"
	"github.com/conduit-lang/respack/internal/compiler"
	"github.com/conduit-lang/respack/internal/value"
)

type inspectOptions struct {
	path   string
	json   bool
	decode bool
}

func newInspectCommand(global *globalOptions) *cobra.Command {
	opts := &inspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect [name]",
		Short: "List resources or print one of them",
		Long: `Without a name, list every resource in the pack with its kind and symbol.
With a name, print the stored form of that resource. --path selects a value
inside it using the same syntax as lookups at run time.`,
		Example: `  respack inspect
  respack inspect hero
  respack inspect hero --path /frames/run
  respack inspect button --json
  respack inspect button --decode`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, global, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.path, "path", "p", "", "Path inside the resource, e.g. /frames/run or /list[0]")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the value as JSON")
	cmd.Flags().BoolVar(&opts.decode, "decode", false, "Load the resource through the cache and report its live object")

	return cmd
}

func runInspect(cmd *cobra.Command, global *globalOptions, opts *inspectOptions, args []string) error {
	p, err := openProject(cmd, global)
	if err != nil {
		return err
	}
	defer p.Close()

	if _, err := p.system.Open(cmd.Context(), false); err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.BuildError(err.Error(), global.noColor))
		return reportedError{err}
	}

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return listResources(out, p, global.noColor)
	}

	name := args[0]
	stored, ok, err := p.cache.Stored(name)
	if err != nil {
		return err
	}
	if !ok {
		suggestions := ui.FindSimilar(name, p.cache.ResourceObjectNames(), nil)
		fmt.Fprint(cmd.ErrOrStderr(), ui.ResourceNotFoundError(name, suggestions, global.noColor))
		return reportedError{fmt.Errorf("resource %q not found", name)}
	}

	v := stored
	if opts.path != "" {
		v, ok = value.Lookup(stored, opts.path)
		if !ok {
			fmt.Fprint(cmd.ErrOrStderr(), ui.PathNotFoundError(name, opts.path, global.noColor))
			return reportedError{fmt.Errorf("path %s not found in %q", opts.path, name)}
		}
	}

	if opts.decode {
		live, err := p.cache.Get(cmd.Context(), name)
		if err != nil {
			return err
		}
		if live == nil {
			return fmt.Errorf("resource %q loaded to no value", name)
		}
		fmt.Fprintf(out, "%s: %s (%s)\n", name, live.String(), live.Kind().Name())
	}

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonValue(v))
	}

	title := name
	if opts.path != "" {
		title += opts.path
	}
	ui.Header(out, title, global.noColor)
	writeValue(out, v, 0)
	return nil
}

func listResources(w io.Writer, p *project, noColor bool) error {
	symbols := make(map[string]string)
	if meta := p.cache.Metadata(); meta != nil {
		for symbol, name := range meta.Symbols {
			symbols[name] = symbol
		}
	}

	table := ui.NewTable(w, []string{"Name", "Kind", "Symbol"}, &ui.TableOptions{NoColor: noColor})
	for _, name := range p.cache.ResourceObjectNames() {
		stored, _, err := p.cache.Stored(name)
		if err != nil {
			return err
		}
		table.AddRow(name, kindOf(stored), symbols[name])
	}
	table.Render()
	return nil
}

// kindOf names the factory type of typed dictionaries and the value kind otherwise
func kindOf(v value.Value) string {
	if v == nil {
		return "none"
	}
	if d, ok := v.(*value.Dict); ok {
		if t, ok := d.Lookup(compiler.KeyType); ok {
			if s, ok := t.(value.String); ok {
				return string(s)
			}
		}
	}
	return v.Kind().Name()
}

// dictOrSelf opens dictionary blobs so they print like dictionaries
func dictOrSelf(v value.Value) value.Value {
	if b, ok := v.(*value.Blob); ok && b.IsDict() {
		if d, ok := value.AsDict(b); ok {
			return d
		}
	}
	return v
}

func writeValue(w io.Writer, v value.Value, depth int) {
	v = dictOrSelf(v)
	indent := strings.Repeat("  ", depth)
	switch t := v.(type) {
	case *value.Dict:
		for _, k := range t.Keys() {
			child, _ := t.Lookup(k)
			if isContainer(child) {
				fmt.Fprintf(w, "%s%s:\n", indent, k)
				writeValue(w, child, depth+1)
				continue
			}
			fmt.Fprintf(w, "%s%s: %s\n", indent, k, scalarText(child))
		}
	case value.Vector:
		for i, child := range t {
			if isContainer(child) {
				fmt.Fprintf(w, "%s[%d]:\n", indent, i)
				writeValue(w, child, depth+1)
				continue
			}
			fmt.Fprintf(w, "%s[%d]: %s\n", indent, i, scalarText(child))
		}
	default:
		fmt.Fprintf(w, "%s%s\n", indent, scalarText(v))
	}
}

func isContainer(v value.Value) bool {
	switch t := dictOrSelf(v).(type) {
	case *value.Dict:
		return t.Len() > 0
	case value.Vector:
		return len(t) > 0
	}
	return false
}

func scalarText(v value.Value) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case value.String:
		return fmt.Sprintf("%q", string(t))
	case *value.Blob:
		state := "raw"
		if t.Compressed() {
			state = "compressed"
		}
		if t.Deferred() {
			state += ", deferred"
		}
		return fmt.Sprintf("blob(%d bytes, %s, %d stored)", t.LoadedSize(), state, t.SavedSize())
	}
	return v.String()
}

// jsonValue converts a value into something encoding/json renders naturally
func jsonValue(v value.Value) any {
	switch t := dictOrSelf(v).(type) {
	case nil:
		return nil
	case value.Bool:
		return bool(t)
	case value.Int:
		return int64(t)
	case value.Float:
		return float32(t)
	case value.Double:
		return float64(t)
	case value.Fixed:
		return t.Float64()
	case value.String:
		return string(t)
	case value.Bytes:
		return []byte(t)
	case value.Point:
		return map[string]float64{"x": t.X, "y": t.Y}
	case value.Rect:
		return map[string]float64{"x": t.X, "y": t.Y, "w": t.W, "h": t.H}
	case value.Ref:
		return value.RefPrefix + t.Name()
	case *value.Dict:
		m := make(map[string]any, t.Len())
		for _, k := range t.Keys() {
			child, _ := t.Lookup(k)
			m[k] = jsonValue(child)
		}
		return m
	case value.Vector:
		list := make([]any, len(t))
		for i, child := range t {
			list[i] = jsonValue(child)
		}
		return list
	case *value.Blob:
		return map[string]any{
			"blob":        true,
			"size":        t.LoadedSize(),
			"stored_size": t.SavedSize(),
			"compressed":  t.Compressed(),
			"deferred":    t.Deferred(),
		}
	}
	return v.String()
}
