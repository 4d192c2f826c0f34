package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/respack/internal/build"
	"github.com/conduit-lang/respack/internal/cli/ui"
	cerrors "github.com/conduit-lang/respack/internal/compiler/errors"
)

type buildOptions struct {
	force bool
	json  bool
}

func newBuildCommand(global *globalOptions) *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile resources into a pack",
		Long: `Compile the configured sources and write the pack.

A pack whose recorded inputs are unchanged is reused without compiling.
The build process:
  1. expand-files    - parse sources, splice imports, resolve file: paths
  2. expand-values   - apply res:values and res:template
  3. start-load      - build every typed object through its factory
  4. extract-siblings - hoist sibling resources to the top level
  5. finish-load     - finish objects after their dependencies
  6. save-objects    - store the cache form of each object`,
		Example: `  # Build, reusing a fresh pack
  respack build

  # Always recompile
  respack build --force

  # Print diagnostics and the summary as JSON (useful for tooling)
  respack build --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, global, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Recompile even when the pack is fresh")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output diagnostics and summary in JSON format")

	return cmd
}

// buildSummary is the --json output of build
type buildSummary struct {
	Success     bool              `json:"success"`
	FromCache   bool              `json:"from_cache"`
	Reason      string            `json:"reason,omitempty"`
	Saved       bool              `json:"saved"`
	Resources   int               `json:"resources"`
	Added       int               `json:"added"`
	Changed     int               `json:"changed"`
	Removed     int               `json:"removed"`
	Unchanged   int               `json:"unchanged"`
	DurationMs  int64             `json:"duration_ms"`
	Diagnostics cerrors.ErrorList `json:"diagnostics"`
}

func runBuild(cmd *cobra.Command, global *globalOptions, opts *buildOptions) error {
	p, err := openProject(cmd, global)
	if err != nil {
		return err
	}
	defer p.Close()

	res, buildErr := p.system.Open(cmd.Context(), opts.force)
	if res == nil {
		// failed before compiling, e.g. context cancelled
		return buildErr
	}

	out := cmd.OutOrStdout()
	if opts.json {
		if err := writeBuildJSON(out, res, p.cache.Len(), buildErr == nil); err != nil {
			return err
		}
		if buildErr != nil {
			return reportedError{buildErr}
		}
		return nil
	}

	if len(res.Diagnostics) > 0 {
		ui.WriteDiagnostics(cmd.ErrOrStderr(), res.Diagnostics, global.noColor)
	}
	if buildErr != nil {
		if len(res.Diagnostics) == 0 {
			fmt.Fprint(cmd.ErrOrStderr(), ui.BuildError(buildErr.Error(), global.noColor))
		}
		return reportedError{buildErr}
	}

	writeBuildSummary(out, res, p.cache.Len(), p.system, global.noColor)
	return nil
}

func writeBuildJSON(w io.Writer, res *build.Result, resources int, success bool) error {
	summary := buildSummary{
		Success:     success,
		FromCache:   res.FromCache,
		Reason:      res.Reason,
		Saved:       res.Saved,
		Resources:   resources,
		Added:       res.Stats.Added,
		Changed:     res.Stats.Changed,
		Removed:     res.Stats.Removed,
		Unchanged:   res.Stats.Unchanged,
		DurationMs:  res.Duration.Milliseconds(),
		Diagnostics: res.Diagnostics,
	}
	if summary.Diagnostics == nil {
		summary.Diagnostics = cerrors.ErrorList{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func writeBuildSummary(w io.Writer, res *build.Result, resources int, sys *build.System, noColor bool) {
	if res.FromCache {
		ui.WriteSuccess(w, fmt.Sprintf("Pack is up to date (%d resources)", resources), noColor)
	} else {
		ui.WriteSuccess(w, fmt.Sprintf("Compiled %d resources in %s", resources, res.Duration.Round(time.Millisecond)), noColor)
	}

	kv := ui.NewKeyValueTable(w, noColor)
	if !res.FromCache {
		kv.AddRow("Reason", res.Reason)
		kv.AddRow("Added", strconv.Itoa(res.Stats.Added))
		kv.AddRow("Changed", strconv.Itoa(res.Stats.Changed))
		kv.AddRow("Removed", strconv.Itoa(res.Stats.Removed))
		kv.AddRow("Unchanged", strconv.Itoa(res.Stats.Unchanged))
		kv.AddRow("Saved", strconv.FormatBool(res.Saved))
	}
	kv.AddRow("Inputs", strconv.Itoa(sys.Inputs().Size()))
	if meta := sys.Cache().Metadata(); meta != nil && !meta.BuiltAt.IsZero() {
		kv.AddRow("Built", meta.BuiltAt.Format(time.RFC3339))
	}
	kv.Render()
}
