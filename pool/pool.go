// Package pool keeps the generations of a loaded artifact.
//
// A generation is one artifact file as observed on disk. Generations are never released: code of a
// superseded generation may still run on other goroutines, and go plugins can not be unloaded at all.
package pool

import (
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

type (
	// Generation of an artifact.
	Generation[C any] struct {
		Seq    int
		Path   string
		Info   fs.FileInfo
		Value  C
		Loaded time.Time
	}
	// Pool of generations, the latest added one is current.
	Pool[C any] struct {
		sync.RWMutex
		Loaded  []*Generation[C]
		current *Generation[C]
	}
)

// Same reports whether two observations are the same artifact file.
func Same(a, b fs.FileInfo) bool {
	return os.SameFile(a, b) && a.Size() == b.Size() && a.ModTime().Equal(b.ModTime())
}

// Key of an observation, stable while the file is unchanged.
func Key(path string, info fs.FileInfo) string {
	return fmt.Sprintf("%s@%d:%d", path, info.Size(), info.ModTime().UnixNano())
}

// NewPool create an empty pool
func NewPool[C any]() *Pool[C] {
	return new(Pool[C])
}

// Current generation, nil before the first Add.
func (p *Pool[C]) Current() *Generation[C] {
	p.RLock()
	defer p.RUnlock()
	return p.current
}

// Match returns the current generation if info observes its file.
func (p *Pool[C]) Match(path string, info fs.FileInfo) *Generation[C] {
	p.RLock()
	defer p.RUnlock()
	if c := p.current; c != nil && c.Path == path && Same(c.Info, info) {
		return c
	}
	return nil
}

// Add a generation and make it current.
func (p *Pool[C]) Add(path string, info fs.FileInfo, v C) *Generation[C] {
	p.Lock()
	defer p.Unlock()
	g := &Generation[C]{
		Seq:    len(p.Loaded) + 1,
		Path:   path,
		Info:   info,
		Value:  v,
		Loaded: time.Now(),
	}
	p.Loaded = append(p.Loaded, g)
	p.current = g
	return g
}

// Generations loaded so far, oldest first.
func (p *Pool[C]) Generations() []*Generation[C] {
	p.RLock()
	defer p.RUnlock()
	out := make([]*Generation[C], len(p.Loaded))
	copy(out, p.Loaded)
	return out
}

// Len of loaded generations.
func (p *Pool[C]) Len() int {
	p.RLock()
	defer p.RUnlock()
	return len(p.Loaded)
}
