// Package compiler turns declarative resource documents into cache-ready
// object dictionaries.
//
// Compilation runs six passes over the merged root dictionary:
//
//	expand-files      file: strings become absolute, existence-checked paths
//	expand-values     res:values scopes, res:<name>, res:template, res:import, ref:
//	start-load        dictionaries with res:type are built by their factory
//	extract-siblings  objects contribute extra top-level resources
//	finish-load       objects complete depth-first through their dependencies
//	save-objects      objects are converted back to tagged dictionaries
//
// A pass that reports any error-severity diagnostic stops the pipeline.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	cerrors "github.com/conduit-lang/respack/internal/compiler/errors"
	"github.com/conduit-lang/respack/internal/compress"
	"github.com/conduit-lang/respack/internal/fsys"
	"github.com/conduit-lang/respack/internal/jsonsrc"
	"github.com/conduit-lang/respack/internal/resource"
	"github.com/conduit-lang/respack/internal/transform"
	"github.com/conduit-lang/respack/internal/value"
)

// Options configures a Compiler
type Options struct {
	Factories *FactoryRegistry
	FS        *fsys.FS
	Codec     compress.Codec
	// Compress asks factories to compress the blobs they produce
	Compress bool
	// Workers bounds the parallel passes; <= 0 uses GOMAXPROCS
	Workers int
	Logger  *zap.Logger
	// Now stamps Metadata.BuiltAt; defaults to time.Now
	Now func() time.Time
}

// Compiler holds the process-lifetime state shared by compilations
type Compiler struct {
	factories     *FactoryRegistry
	fs            *fsys.FS
	codec         compress.Codec
	compressBlobs bool
	engine        *transform.Engine
	logger        *zap.Logger
	now           func() time.Time
}

// New creates a compiler
func New(opts Options) *Compiler {
	if opts.Factories == nil {
		opts.Factories = NewFactoryRegistry()
	}
	if opts.FS == nil {
		opts.FS = fsys.OS()
	}
	if opts.Codec == nil {
		opts.Codec = compress.Identity{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Compiler{
		factories:     opts.Factories,
		fs:            opts.FS,
		codec:         opts.Codec,
		compressBlobs: opts.Compress,
		engine:        transform.NewEngine(opts.Workers, opts.Logger),
		logger:        opts.Logger,
		now:           opts.Now,
	}
}

// Factories returns the factory registry
func (c *Compiler) Factories() *FactoryRegistry { return c.factories }

// Output is the result of a successful compilation
type Output struct {
	// Objects maps each top-level resource name to its cache form
	Objects *value.Dict
	Meta    *Metadata
	// Aux holds auxiliary outputs by file name
	Aux map[string][]byte
	// Diagnostics holds the warnings reported on the way
	Diagnostics cerrors.ErrorList
}

// PassError reports the pass that stopped the pipeline
type PassError struct {
	Pass        string
	Diagnostics cerrors.ErrorList
}

func (e *PassError) Error() string {
	errs, _, _ := e.Diagnostics.ErrorCount()
	return fmt.Sprintf("%s: %d error(s)", e.Pass, errs)
}

// Unwrap exposes the diagnostics to errors.As
func (e *PassError) Unwrap() error { return e.Diagnostics }

// Diagnostics extracts the diagnostic list from a compile error
func Diagnostics(err error) (cerrors.ErrorList, bool) {
	var pe *PassError
	if errors.As(err, &pe) {
		return pe.Diagnostics, true
	}
	return nil, false
}

// pipeline is the state of one compilation
type pipeline struct {
	c     *Compiler
	rec   *recorder
	table *resource.Table
	done  *completer
}

func (c *Compiler) newPipeline() *pipeline {
	return &pipeline{
		c:     c,
		rec:   newRecorder(),
		table: resource.NewTable(),
		done:  &completer{graph: resource.NewWaitGraph()},
	}
}

func (p *pipeline) recordFile(owner, path string) error {
	mtime, err := p.c.fs.LastWriteTime(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	p.rec.addFile(owner, path, mtime.UnixNano())
	return nil
}

// Compile reads, parses and merges the source files in order (later files
// win on top-level name clashes) and runs the pipeline over the result.
func (c *Compiler) Compile(ctx context.Context, sources ...string) (*Output, error) {
	start := time.Now()
	p := c.newPipeline()

	abs := make([]string, 0, len(sources))
	for _, src := range sources {
		path, err := filepath.Abs(src)
		if err != nil {
			path = filepath.Clean(src)
		}
		abs = append(abs, path)
	}

	var diags cerrors.ErrorList
	merged := value.NewDict()
	for _, src := range abs {
		data, err := c.fs.ReadFile(src)
		if err != nil {
			diags = append(diags, cerrors.NewSourceRead(src, err))
			continue
		}
		if err := p.recordFile("", src); err != nil {
			diags = append(diags, cerrors.NewSourceRead(src, err))
			continue
		}
		doc, err := jsonsrc.ParseFile(src, data)
		if err != nil {
			diags = append(diags, syntaxDiagnostic(src, err))
			continue
		}
		out, list, err := c.engine.Run(ctx, &expandFiles{p: p, dir: filepath.Dir(src)}, doc)
		if err != nil {
			return nil, err
		}
		diags = append(diags, list...)
		merged.Set(out, false)
	}
	if diags.HasErrors() {
		return nil, &PassError{Pass: PassExpandFiles, Diagnostics: diags}
	}

	out, err := c.run(ctx, p, merged, abs, diags)
	if err != nil {
		return nil, err
	}
	c.logger.Info("compiled resources",
		zap.Strings("sources", abs),
		zap.Int("resources", out.Objects.Len()),
		zap.Int("files", len(out.Meta.Files)),
		zap.Int("warnings", len(out.Diagnostics)),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// CompileDict runs the pipeline over an already parsed root whose relative
// file references resolve against dir.
func (c *Compiler) CompileDict(ctx context.Context, root *value.Dict, dir string) (*Output, error) {
	p := c.newPipeline()
	out, diags, err := c.engine.Run(ctx, &expandFiles{p: p, dir: dir}, root)
	if err != nil {
		return nil, err
	}
	if diags.HasErrors() {
		return nil, &PassError{Pass: PassExpandFiles, Diagnostics: diags}
	}
	return c.run(ctx, p, out, nil, diags)
}

func (c *Compiler) run(ctx context.Context, p *pipeline, root *value.Dict, sources []string, diags cerrors.ErrorList) (*Output, error) {
	passes := []transform.Pass{
		&expandValues{p: p, stack: sources},
		&startLoad{p: p},
		&extractSiblings{p: p},
		&finishLoad{p: p},
		&saveObjects{p: p},
	}
	for _, pass := range passes {
		out, list, err := c.engine.Run(ctx, pass, root)
		if err != nil {
			return nil, err
		}
		diags = append(diags, list...)
		if list.HasErrors() {
			c.logger.Debug("pass failed", zap.String("pass", pass.Name()), zap.Int("diagnostics", len(list)))
			return nil, &PassError{Pass: pass.Name(), Diagnostics: diags}
		}
		root = out
	}

	aux := make(map[string][]byte, len(p.rec.aux))
	p.rec.mu.Lock()
	for name, data := range p.rec.aux {
		aux[name] = data
	}
	p.rec.mu.Unlock()

	return &Output{
		Objects:     root,
		Meta:        p.rec.metadata(root.Keys(), sources, c.now()),
		Aux:         aux,
		Diagnostics: diags,
	}, nil
}

func syntaxDiagnostic(file string, err error) *cerrors.CompilerError {
	var se *jsonsrc.SyntaxError
	if errors.As(err, &se) {
		return cerrors.NewSyntax(file, se.Offset, se.Line, se.Column, se.Excerpt, se.Message)
	}
	return cerrors.NewSourceRead(file, err)
}
