// Package object opens relocatable object artifacts with [goloader], linking them against the symbols of
// the running host.
//
// Notes:
//
//  1. Only exported functions of package main can be resolved.
//  2. A resolved symbol is a raw code entry. Calling it with a different signature than compiled is undefined behaviour.
//  3. The host must be built with the go sdk prepared for goloader, see the reloader prepare command.
//
// [goloader]: https://github.com/pkujhd/goloader
package object

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/ZenLiuCN/fn"
	"github.com/pkujhd/goloader"

	"github.com/ZenLiuCN/hotreload"
)

type (
	// Options of the object opener.
	Options struct {
		Pkg    string       //package path of the object, default main
		Types  []any        //host types the artifact refers to, registered before linking
		Logger *slog.Logger //debug logging of link stages, nil disables it
	}
	opener struct {
		opt Options
		mu  sync.Mutex
	}
	capability struct {
		path   string
		pkg    string
		linker *goloader.Linker
		module *goloader.CodeModule
	}
)

var (
	// ErrUnresolved occurs when an object refers to symbols the host does not carry.
	ErrUnresolved = errors.New("unresolved symbols")

	host     map[string]uintptr
	hostErr  error
	hostOnce sync.Once
)

// New create an Opener of object artifacts.
func New(opt Options) hotreload.Opener {
	if opt.Pkg == "" {
		opt.Pkg = "main"
	}
	return &opener{opt: opt}
}

// Host returns a copy of the symbol table of the running executable.
func Host() (map[string]uintptr, error) {
	hostOnce.Do(func() {
		host = make(map[string]uintptr)
		hostErr = goloader.RegSymbol(host)
	})
	if hostErr != nil {
		return nil, hostErr
	}
	return maps.Clone(host), nil
}

func (o *opener) debug(msg string, args ...any) {
	if o.opt.Logger != nil {
		o.opt.Logger.Debug(msg, args...)
	}
}

// Open links the object file. Links are serialized, goloader registers modules process wide.
func (o *opener) Open(path string) (hotreload.Capability, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	syms, err := Host()
	if err != nil {
		return nil, fmt.Errorf("read host symbols: %w", err)
	}
	if len(o.opt.Types) > 0 {
		o.debug("register types", "count", len(o.opt.Types))
		goloader.RegTypes(syms, o.opt.Types...)
	}
	c := &capability{path: path, pkg: o.opt.Pkg}
	if c.linker, err = goloader.ReadObj(path, o.opt.Pkg); err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	o.debug("create linker", "path", path, "packages", len(c.linker.Packages))
	if missing := goloader.UnresolvedSymbols(c.linker, syms); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnresolved, strings.Join(missing, ", "))
	}
	if c.module, err = goloader.Load(c.linker, syms); err != nil {
		return nil, fmt.Errorf("link object: %w", err)
	}
	o.debug("create module", "path", path, "symbols", len(c.module.Syms))
	return c, nil
}

func (c *capability) Path() string {
	return c.path
}

func (c *capability) Lookup(name string) (hotreload.Symbol, error) {
	p, ok := c.module.Syms[Qualify(c.pkg, name)]
	if !ok {
		return hotreload.Symbol{}, fmt.Errorf("%w: %s", hotreload.ErrMissingSymbol, name)
	}
	return hotreload.CodeSymbol(name, p), nil
}

func (c *capability) Symbols() (v []string) {
	prefix := c.pkg + "."
	for _, s := range fn.MapKeys(c.module.Syms) {
		if n, ok := strings.CutPrefix(s, prefix); ok && !strings.ContainsAny(n, ".[") {
			v = append(v, n)
		}
	}
	slices.Sort(v)
	return
}

// Qualify a symbol with its package unless it already has one.
func Qualify(pkg, sym string) string {
	if strings.IndexByte(sym, '.') < 0 {
		return pkg + "." + sym
	}
	return sym
}
