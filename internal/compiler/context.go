package compiler

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/conduit-lang/respack/internal/compress"
	"github.com/conduit-lang/respack/internal/fsys"
)

// BuildContext is handed to BuildFromSource
type BuildContext struct {
	ctx    context.Context
	p      *pipeline
	owner  string
	path   string
	logger *zap.Logger
}

// Context returns the compilation's context
func (c *BuildContext) Context() context.Context { return c.ctx }

// Owner returns the top-level resource the object is built under
func (c *BuildContext) Owner() string { return c.owner }

// Path returns the logical path of the object
func (c *BuildContext) Path() string { return c.path }

// Logger returns a logger tagged with the path
func (c *BuildContext) Logger() *zap.Logger { return c.logger }

// Codec returns the codec for blobs the factory produces
func (c *BuildContext) Codec() compress.Codec { return c.p.c.codec }

// Compress reports whether factories should compress their blobs
func (c *BuildContext) Compress() bool { return c.p.c.compressBlobs }

// FS returns the file system sources are read from
func (c *BuildContext) FS() *fsys.FS { return c.p.c.fs }

// AddFileDependency records path as an input of the owning resource
func (c *BuildContext) AddFileDependency(path string) error {
	return c.p.recordFile(c.owner, path)
}

// ReadFile reads path and records it as an input
func (c *BuildContext) ReadFile(path string) ([]byte, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("path %q is not absolute; use a file: reference", path)
	}
	data, err := c.p.c.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := c.AddFileDependency(path); err != nil {
		return nil, err
	}
	return data, nil
}

// AddAuxOutput stores an auxiliary file written next to the pack
func (c *BuildContext) AddAuxOutput(name string, data []byte) {
	c.p.rec.addAux(name, data)
}
