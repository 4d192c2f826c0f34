package build

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/conduit-lang/respack/internal/compiler"
	"github.com/conduit-lang/respack/internal/fsys"
)

// FileInput is one input file of the current build
type FileInput struct {
	Path string
	// Resources lists the top-level resources whose subtree read the file
	Resources []string
	// Source marks a root source document
	Source bool
	// Hash is the SHA-256 of the content when the build was recorded
	Hash string
}

// InputGraph tracks which resources depend on which input files
type InputGraph struct {
	nodes map[string]*FileInput
	mu    sync.RWMutex
}

// NewInputGraph creates an empty graph
func NewInputGraph() *InputGraph {
	return &InputGraph{nodes: make(map[string]*FileInput)}
}

// Reset rebuilds the graph from build metadata. Content hashes are taken
// from fs; unreadable files keep an empty hash.
func (g *InputGraph) Reset(fs *fsys.FS, meta *compiler.Metadata) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[string]*FileInput)
	if meta == nil {
		return
	}
	for _, file := range meta.FileNames() {
		g.addFileLocked(file)
	}
	for _, src := range meta.Sources {
		g.addFileLocked(src).Source = true
	}
	for name, files := range meta.ResourceFiles {
		for _, file := range files {
			node := g.addFileLocked(file)
			if !contains(node.Resources, name) {
				node.Resources = append(node.Resources, name)
			}
		}
	}
	for _, node := range g.nodes {
		sort.Strings(node.Resources)
		if fs != nil {
			node.Hash, _ = fs.HashFile(node.Path)
		}
	}
}

func (g *InputGraph) addFileLocked(path string) *FileInput {
	node, ok := g.nodes[path]
	if !ok {
		node = &FileInput{Path: path}
		g.nodes[path] = node
	}
	return node
}

// Contains reports whether path is an input
func (g *InputGraph) Contains(path string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[filepath.Clean(path)]
	return ok
}

// Resources returns the resources that read path. A root source affects
// every resource and is reported with all set.
func (g *InputGraph) Resources(path string) (names []string, all bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[filepath.Clean(path)]
	if !ok {
		return nil, false
	}
	if node.Source {
		return nil, true
	}
	return append([]string(nil), node.Resources...), false
}

// Files returns every input in sorted order
func (g *InputGraph) Files() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	files := make([]string, 0, len(g.nodes))
	for path := range g.nodes {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

// Dirs returns the directories holding inputs, for watching
func (g *InputGraph) Dirs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[string]bool)
	dirs := make([]string, 0)
	for path := range g.nodes {
		dir := filepath.Dir(path)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs
}

// Changed reports whether the content of path differs from the recorded
// hash and records the new one. Files outside the graph never change it.
func (g *InputGraph) Changed(fs *fsys.FS, path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[filepath.Clean(path)]
	if !ok {
		return false
	}
	hash, err := fs.HashFile(node.Path)
	if err != nil {
		// deleted or unreadable inputs force a rebuild
		node.Hash = ""
		return true
	}
	if hash == node.Hash {
		return false
	}
	node.Hash = hash
	return true
}

// Size returns the number of inputs
func (g *InputGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
