package commands

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/respack/internal/build"
	"github.com/conduit-lang/respack/internal/cli/config"
	"github.com/conduit-lang/respack/internal/cli/ui"
	"github.com/conduit-lang/respack/internal/compiler"
	"github.com/conduit-lang/respack/internal/compress"
	"github.com/conduit-lang/respack/internal/factories"
	"github.com/conduit-lang/respack/internal/fsys"
	"github.com/conduit-lang/respack/internal/logging"
	"github.com/conduit-lang/respack/internal/objcache"
	"github.com/conduit-lang/respack/internal/packstore"
	"github.com/conduit-lang/respack/internal/workers"
)

// project is the wired build system for one command invocation
type project struct {
	cfg    *config.Config
	logger *zap.Logger
	system *build.System
	cache  *objcache.Cache
	pool   *workers.Pool
	redis  *packstore.RedisStore
}

func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.dir, opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*zap.Logger, error) {
	if cfg.Log.Format == logging.FormatJSON {
		return logging.New(cfg.Log.Level, cfg.Log.Format)
	}
	return logging.NewWriter(cmd.ErrOrStderr(), cfg.Log.Level)
}

// openProject wires compiler, cache and store from the configuration. The
// caller must close it.
func openProject(cmd *cobra.Command, opts *globalOptions) (*project, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, reportConfigError(cmd, opts, err)
	}
	if len(cfg.Sources) == 0 {
		return nil, reportConfigError(cmd, opts, fmt.Errorf("no sources configured; list them under \"sources\" in respack.yml"))
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, reportConfigError(cmd, opts, err)
	}

	size := cfg.Workers
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	pool := workers.NewPool("objcache", size, logger)
	pool.Start(context.Background())

	// the codec always decodes zstd so packs written with compression stay readable
	codec := compress.NewZstd(cfg.Pack.Level)
	reg := factories.NewRegistry()
	fs := fsys.OS()

	p := &project{cfg: cfg, logger: logger, pool: pool}
	p.cache = objcache.New(objcache.Options{
		Factories: reg,
		Codec:     codec,
		Compress:  cfg.Pack.Compress,
		Pool:      pool,
		Logger:    logger.Named("cache"),
	})

	var store packstore.Store
	switch cfg.Store.Kind {
	case config.StoreRedis:
		rs, err := packstore.NewRedisStore(cfg.RedisStore())
		if err != nil {
			logger.Warn("redis pack store unavailable, packs will not be saved",
				zap.String("addr", cfg.Store.Redis.Addr), zap.Error(err))
			break
		}
		p.redis = rs
		store = rs
	default:
		store = packstore.NewFileStore(fs, cfg.PackPath())
	}

	p.system = build.New(build.Options{
		Sources: cfg.SourcePaths(),
		Compiler: compiler.New(compiler.Options{
			Factories: reg,
			FS:        fs,
			Codec:     codec,
			Compress:  cfg.Pack.Compress,
			Workers:   cfg.Workers,
			Logger:    logger.Named("compiler"),
		}),
		Cache:  p.cache,
		Store:  store,
		FS:     fs,
		Logger: logger,
	})
	return p, nil
}

func reportConfigError(cmd *cobra.Command, opts *globalOptions, err error) error {
	fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), opts.noColor))
	return reportedError{err}
}

func (p *project) Close() error {
	err := p.system.Close()
	p.cache.Close()
	p.pool.Stop()
	if p.redis != nil {
		if cerr := p.redis.Close(); err == nil {
			err = cerr
		}
	}
	_ = p.logger.Sync()
	return err
}
