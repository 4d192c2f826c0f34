// Package build ties the compiler, the object cache and a pack store
// together: open a fresh pack when there is one, compile otherwise, and
// rebuild on demand.
package build

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/respack/internal/compiler"
	cerrors "github.com/conduit-lang/respack/internal/compiler/errors"
	"github.com/conduit-lang/respack/internal/fsys"
	"github.com/conduit-lang/respack/internal/objcache"
	"github.com/conduit-lang/respack/internal/packstore"
)

// ErrNoSources is returned when there is nothing to compile
var ErrNoSources = errors.New("no source files configured")

// Options configures a System
type Options struct {
	// Sources are the root documents, merged in order
	Sources  []string
	Compiler *compiler.Compiler
	Cache    *objcache.Cache
	Store    packstore.Store
	FS       *fsys.FS
	Logger   *zap.Logger
}

// Result describes how the cache contents were obtained
type Result struct {
	// FromCache is set when a fresh pack was used without compiling
	FromCache bool
	// Reason says why the pack was not used
	Reason string
	// Saved is set when the compiled pack reached the store
	Saved       bool
	Stats       objcache.ReplaceStats
	Diagnostics cerrors.ErrorList
	Duration    time.Duration
}

// System owns the open pack behind the cache
type System struct {
	sources  []string
	compiler *compiler.Compiler
	cache    *objcache.Cache
	store    packstore.Store
	fs       *fsys.FS
	logger   *zap.Logger
	inputs   *InputGraph

	mu sync.Mutex
	// pack backs deferred entries of the cache
	pack packstore.Pack
}

// New creates a build system
func New(opts Options) *System {
	if opts.FS == nil {
		opts.FS = fsys.OS()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &System{
		sources:  opts.Sources,
		compiler: opts.Compiler,
		cache:    opts.Cache,
		store:    opts.Store,
		fs:       opts.FS,
		logger:   opts.Logger,
		inputs:   NewInputGraph(),
	}
}

// Cache returns the object cache
func (s *System) Cache() *objcache.Cache { return s.cache }

// FS returns the file system sources are read from
func (s *System) FS() *fsys.FS { return s.fs }

// Inputs returns the input graph of the current contents
func (s *System) Inputs() *InputGraph { return s.inputs }

// Open fills the cache from the store when the stored pack is fresh and
// compiles otherwise. Store failures are logged and compilation proceeds.
func (s *System) Open(ctx context.Context, force bool) (*Result, error) {
	start := time.Now()
	if force {
		return s.compile(ctx, start, "forced")
	}
	if s.store == nil {
		return s.compile(ctx, start, "no pack store")
	}

	pack, err := s.store.Open(ctx)
	switch {
	case errors.Is(err, packstore.ErrNotFound):
		return s.compile(ctx, start, "no pack in "+s.store.Describe())
	case err != nil:
		s.logger.Warn("pack store unavailable, compiling", zap.String("store", s.store.Describe()), zap.Error(err))
		return s.compile(ctx, start, "pack store unavailable")
	}

	if _, err := s.cache.LoadAt(pack); err != nil {
		_ = pack.Close()
		s.logger.Warn("pack unreadable, compiling", zap.String("store", s.store.Describe()), zap.Error(err))
		return s.compile(ctx, start, "pack unreadable")
	}
	s.swapPack(pack)

	fresh, reason := s.cache.IsFresh(s.fs)
	if fresh && !s.sourcesChanged() {
		s.inputs.Reset(s.fs, s.cache.Metadata())
		s.logger.Info("using cached pack",
			zap.String("store", s.store.Describe()),
			zap.Int("resources", s.cache.Len()),
			zap.Duration("duration", time.Since(start)),
		)
		return &Result{FromCache: true, Duration: time.Since(start)}, nil
	}
	if fresh {
		reason = "source list changed"
	}
	return s.compile(ctx, start, reason)
}

// Rebuild recompiles from the recorded sources and swaps the results into
// the cache, forwarding live resources that changed.
func (s *System) Rebuild(ctx context.Context) (*Result, error) {
	return s.compile(ctx, time.Now(), "rebuild")
}

func (s *System) compile(ctx context.Context, start time.Time, reason string) (*Result, error) {
	sources := s.sourceList()
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	s.logger.Info("compiling resources", zap.Strings("sources", sources), zap.String("reason", reason))

	out, err := s.compiler.Compile(ctx, sources...)
	if err != nil {
		if s.inputs.Size() == 0 {
			// nothing built yet; watch the sources so a fix triggers a rebuild
			s.inputs.Reset(s.fs, sourceMetadata(sources))
		}
		res := &Result{Reason: reason, Duration: time.Since(start)}
		if list, ok := compiler.Diagnostics(err); ok {
			res.Diagnostics = list
		}
		return res, err
	}

	stats, err := s.cache.Replace(out.Objects, out.Meta)
	if err != nil {
		return nil, fmt.Errorf("install compiled resources: %w", err)
	}
	// compiled entries live in memory; the old pack can go once nothing reads it
	if err := s.cache.FlushAllPending(ctx); err != nil {
		return nil, err
	}
	s.swapPack(nil)
	s.inputs.Reset(s.fs, out.Meta)

	res := &Result{
		Reason:      reason,
		Stats:       stats,
		Diagnostics: out.Diagnostics,
	}
	res.Saved = s.save(ctx, out)
	res.Duration = time.Since(start)
	return res, nil
}

// save writes the pack and auxiliary outputs. Failures only cost the next
// start a compilation, so they are logged.
func (s *System) save(ctx context.Context, out *compiler.Output) bool {
	if s.store == nil {
		return false
	}
	if err := s.store.Write(ctx, s.cache.Save); err != nil {
		s.logger.Warn("pack not saved", zap.String("store", s.store.Describe()), zap.Error(err))
		return false
	}
	for _, name := range out.Meta.AuxFiles {
		if err := s.store.WriteAux(ctx, name, out.Aux[name]); err != nil {
			s.logger.Warn("auxiliary output not saved", zap.String("file", name), zap.Error(err))
		}
	}
	s.logger.Debug("pack saved", zap.String("store", s.store.Describe()))
	return true
}

// sourceList prefers the configured sources, then those recorded in the pack
func (s *System) sourceList() []string {
	if len(s.sources) > 0 {
		return s.sources
	}
	if meta := s.cache.Metadata(); meta != nil {
		return meta.Sources
	}
	return nil
}

func sourceMetadata(sources []string) *compiler.Metadata {
	meta := compiler.NewMetadata()
	for _, src := range sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			abs = filepath.Clean(src)
		}
		meta.Sources = append(meta.Sources, abs)
	}
	return meta
}

func (s *System) sourcesChanged() bool {
	if len(s.sources) == 0 {
		return false
	}
	meta := s.cache.Metadata()
	if meta == nil || len(meta.Sources) != len(s.sources) {
		return true
	}
	for i, src := range s.sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			abs = filepath.Clean(src)
		}
		if abs != meta.Sources[i] {
			return true
		}
	}
	return false
}

func (s *System) swapPack(p packstore.Pack) {
	s.mu.Lock()
	old := s.pack
	s.pack = p
	s.mu.Unlock()
	if old != nil && old != p {
		if err := old.Close(); err != nil {
			s.logger.Warn("closing pack", zap.Error(err))
		}
	}
}

// Close waits for pending decodes and releases the open pack
func (s *System) Close() error {
	if err := s.cache.FlushAllPending(context.Background()); err != nil {
		return err
	}
	s.swapPack(nil)
	return nil
}
