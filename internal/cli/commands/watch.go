package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/respack/internal/build"
	"github.com/conduit-lang/respack/internal/cli/ui"
	"github.com/conduit-lang/respack/internal/watch"
)

func newWatchCommand(global *globalOptions) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the pack whenever an input changes",
		Long: `Build once, then watch every source and referenced file. When the content
of an input changes the resources are recompiled, the pack is saved again and
live resources that changed are forwarded to their new values.

Press Ctrl+C to stop.`,
		Example: `  respack watch
  respack watch --debounce 500ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(cmd, global)
			if err != nil {
				return err
			}
			defer p.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, global, p, debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period before rebuilding (default: watch.debounce)")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, global *globalOptions, p *project, debounce time.Duration) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	res, err := p.system.Open(ctx, false)
	if err != nil {
		reportRebuild(out, errOut, res, err, global.noColor)
		// a broken source is watched like any other; fix it and save
		if p.system.Inputs().Size() == 0 {
			return reportedError{err}
		}
	} else {
		writeBuildSummary(out, res, p.cache.Len(), p.system, global.noColor)
	}

	if debounce <= 0 {
		debounce = p.cfg.Watch.Debounce
	}
	r, err := watch.NewRebuilder(p.system, watch.Options{
		Debounce: debounce,
		Ignored:  p.cfg.Watch.Ignore,
		Logger:   p.logger.Named("watch"),
		OnResult: func(res *build.Result, err error) {
			reportRebuild(out, errOut, res, err, global.noColor)
		},
	})
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	if global.noColor {
		cyan.DisableColor()
	}
	cyan.Fprintf(out, "Watching %d inputs in %d directories\n", p.system.Inputs().Size(), len(r.Watcher().Dirs()))
	return r.Run(ctx)
}

func reportRebuild(out, errOut io.Writer, res *build.Result, err error, noColor bool) {
	if err != nil {
		if res != nil && len(res.Diagnostics) > 0 {
			ui.WriteDiagnostics(errOut, res.Diagnostics, noColor)
			return
		}
		fmt.Fprint(errOut, ui.BuildError(err.Error(), noColor))
		return
	}
	msg := fmt.Sprintf("Rebuilt in %s: %d changed, %d added, %d removed",
		res.Duration.Round(time.Millisecond), res.Stats.Changed, res.Stats.Added, res.Stats.Removed)
	ui.WriteSuccess(out, msg, noColor)
	if len(res.Diagnostics) > 0 {
		ui.WriteDiagnostics(errOut, res.Diagnostics, noColor)
	}
}
