// Package manifest derives the go.mod of the isolated artifact build from the host go.mod.
//
// The derived module is never merged with a previous one: every rebuild regenerates it
// from the host file, so edits to the host go.mod are picked up without drift.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

type (
	// Kind of loadable artifact the isolated module produces.
	Kind string
	// Lib declares the loadable library: how it is built and which package is its entry.
	Lib struct {
		Kind  Kind   `json:"kind" yaml:"kind"`
		Entry string `json:"entry" yaml:"entry"` //entry package, relative to the isolated directory
	}
	// Descriptor is the isolated build descriptor.
	Descriptor struct {
		Module     string //rewritten module path, the artifact id
		HostModule string //module path of the host project
		GoMod      []byte //formatted go.mod content
		Lib        Lib
	}
	// Options of Transform.
	Options struct {
		ArtifactID string //module path of the isolated build
		Depth      string //slash separated path from the isolated directory back to the project root
		Kind       Kind
		Entry      string
	}
)

const (
	// KindPlugin builds a go plugin loaded with the standard plugin package.
	KindPlugin Kind = "plugin"
	// KindObject builds a relocatable object file linked at runtime by goloader.
	KindObject Kind = "object"

	// HostVersion is the placeholder version required for the host module, which is always replaced by a directory.
	HostVersion = "v0.0.0-00010101000000-000000000000"
)

var (
	// ErrMalformedManifest occurs when the host go.mod can not be parsed or lacks a module statement.
	ErrMalformedManifest = errors.New("malformed go.mod")
	// ErrInvalidOptions occurs when Transform is called with incomplete options.
	ErrInvalidOptions = errors.New("invalid manifest options")
)

// Valid reports whether k is a known artifact kind.
func (k Kind) Valid() bool {
	return k == KindPlugin || k == KindObject
}

// IsRelative reports whether a replacement target is a relative filesystem path.
func IsRelative(p string) bool {
	if p == "." || p == ".." {
		return true
	}
	for _, prefix := range []string{"./", "../", `.\`, `..\`} {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Load reads a go.mod and transforms it.
func Load(file string, opt Options) (*Descriptor, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return Transform(data, opt)
}

// Transform the host go.mod into the isolated build descriptor.
//
//  1. the module path becomes opt.ArtifactID.
//  2. relative replacement directories are re-rooted at opt.Depth, absolute ones are kept.
//  3. the host module is required and replaced by opt.Depth so its packages keep their import paths.
//  4. the library is declared as opt.Kind with entry opt.Entry.
//
// The same input always produces byte-identical output.
func Transform(gomod []byte, opt Options) (d *Descriptor, err error) {
	if opt.ArtifactID == "" || opt.Depth == "" || opt.Entry == "" || !opt.Kind.Valid() {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidOptions, opt)
	}
	f, err := modfile.Parse("go.mod", gomod, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedManifest, err)
	}
	if f.Module == nil || f.Module.Mod.Path == "" {
		return nil, fmt.Errorf("%w: missing module statement", ErrMalformedManifest)
	}
	host := f.Module.Mod.Path
	if host == opt.ArtifactID {
		return nil, fmt.Errorf("%w: host module already named %s", ErrMalformedManifest, host)
	}
	if err = f.AddModuleStmt(opt.ArtifactID); err != nil {
		return nil, fmt.Errorf("rename module: %w", err)
	}
	// AddReplace rewrites matching statements in place, so collect first.
	type rewrite struct{ path, version, dir string }
	var rewrites []rewrite
	for _, r := range f.Replace {
		if r.New.Version != "" || !IsRelative(r.New.Path) {
			continue
		}
		rewrites = append(rewrites, rewrite{r.Old.Path, r.Old.Version, Rebase(opt.Depth, r.New.Path)})
	}
	for _, r := range rewrites {
		if err = f.AddReplace(r.path, r.version, r.dir, ""); err != nil {
			return nil, fmt.Errorf("rewrite replace %s: %w", r.path, err)
		}
	}
	if err = f.AddRequire(host, HostVersion); err != nil {
		return nil, fmt.Errorf("require host module: %w", err)
	}
	if err = f.AddReplace(host, "", opt.Depth, ""); err != nil {
		return nil, fmt.Errorf("replace host module: %w", err)
	}
	f.Cleanup()
	var out []byte
	if out, err = f.Format(); err != nil {
		return nil, fmt.Errorf("format go.mod: %w", err)
	}
	return &Descriptor{
		Module:     opt.ArtifactID,
		HostModule: host,
		GoMod:      out,
		Lib:        Lib{Kind: opt.Kind, Entry: opt.Entry},
	}, nil
}

// Rebase a relative directory onto depth.
func Rebase(depth, dir string) string {
	dir = strings.ReplaceAll(dir, `\`, "/")
	out := path.Join(depth, dir)
	if !IsRelative(out) && !path.IsAbs(out) && filepath.VolumeName(out) == "" {
		out = "./" + out
	}
	return out
}
