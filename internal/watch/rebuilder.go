package watch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/respack/internal/build"
)

// Options configures a Rebuilder
type Options struct {
	Debounce time.Duration
	// Ignored holds base-name glob patterns that never trigger a rebuild
	Ignored []string
	Logger  *zap.Logger
	// OnResult is called after every rebuild attempt
	OnResult func(*build.Result, error)
}

// Rebuilder recompiles a build system when one of its inputs changes
type Rebuilder struct {
	system   *build.System
	watcher  *FileWatcher
	logger   *zap.Logger
	onResult func(*build.Result, error)

	// mu serialises rebuilds
	mu  sync.Mutex
	ctx context.Context
}

// NewRebuilder watches the directories of the system's current inputs
func NewRebuilder(system *build.System, opts Options) (*Rebuilder, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	r := &Rebuilder{
		system:   system,
		logger:   opts.Logger,
		onResult: opts.OnResult,
		ctx:      context.Background(),
	}
	w, err := NewFileWatcher(opts.Debounce, opts.Ignored, opts.Logger, r.HandleChanges)
	if err != nil {
		return nil, err
	}
	if err := w.SetDirs(system.Inputs().Dirs()); err != nil {
		_ = w.Stop()
		return nil, err
	}
	r.watcher = w
	return r, nil
}

// Watcher returns the underlying file watcher
func (r *Rebuilder) Watcher() *FileWatcher { return r.watcher }

// Run delivers changes until ctx is done
func (r *Rebuilder) Run(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	r.watcher.Start()
	r.logger.Info("watching for changes", zap.Strings("dirs", r.watcher.Dirs()))
	<-ctx.Done()
	return r.watcher.Stop()
}

// HandleChanges rebuilds when any of files is an input whose content
// changed. Other files are ignored.
func (r *Rebuilder) HandleChanges(files []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inputs := r.system.Inputs()
	changed := make([]string, 0, len(files))
	for _, file := range files {
		if inputs.Changed(r.system.FS(), file) {
			changed = append(changed, file)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	for _, file := range changed {
		names, all := inputs.Resources(file)
		r.logger.Info("input changed", zap.String("file", file), zap.Strings("resources", names), zap.Bool("source", all))
	}

	res, err := r.system.Rebuild(r.ctx)
	if r.onResult != nil {
		r.onResult(res, err)
	}
	if err != nil {
		return err
	}
	r.logger.Info("rebuilt",
		zap.Int("changed", res.Stats.Changed),
		zap.Int("added", res.Stats.Added),
		zap.Int("removed", res.Stats.Removed),
		zap.Strings("forwarded", res.Stats.Forwarded),
		zap.Duration("duration", res.Duration),
	)
	// imports and file references may have moved
	return r.watcher.SetDirs(inputs.Dirs())
}
