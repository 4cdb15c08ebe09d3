package object

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ZenLiuCN/fn"
	"github.com/pkujhd/goloader"
	"github.com/pkujhd/goloader/obj"
)

// Info contains the import information of an object file
type Info struct {
	File    string
	PkgPath string
	Imports map[string]string // with pairs of package import path and version
}

func (i Info) String() string {
	s := strings.Builder{}
	keys := fn.MapKeys(i.Imports)
	slices.Sort(keys)
	for _, p := range keys {
		if v := i.Imports[p]; v != "" {
			s.WriteString(fmt.Sprintf("\t%s@%s\n", p, v))
		} else {
			s.WriteString(fmt.Sprintf("\t%s\n", p))
		}
	}
	return s.String()
}

// Imports resolve all imported packages and their module version of an object file.
func Imports(file, pkgPath string) (info *Info, err error) {
	if pkgPath == "" {
		pkgPath = "main"
	}
	v := &obj.Pkg{Syms: make(map[string]*obj.ObjSymbol), File: file, PkgPath: pkgPath}
	if err = v.Symbols(); err != nil {
		return
	}
	info = versions(v.ImportPkgs, v.CUFiles)
	info.File = file
	info.PkgPath = pkgPath
	return
}

// Inspect lists the symbols of an object file.
func Inspect(file, pkg string) ([]string, error) {
	if pkg == "" {
		pkg = "main"
	}
	return goloader.Parse(file, pkg)
}

func versions(imports, files []string) (i *Info) {
	i = new(Info)
	i.Imports = make(map[string]string)
	for _, pkg := range imports {
		i.Imports[pkg] = ""
	}
	k := fn.MapKeys(i.Imports)
	for _, f := range files {
		f = strings.TrimPrefix(f, "gofile..")
		if strings.HasPrefix(f, "$GOROOT") {
			continue
		}
		if strings.IndexByte(f, '!') >= 0 {
			f = unescape(f)
		}
		for _, s := range k {
			x := strings.Index(f, s)
			if x < 0 || i.Imports[s] != "" {
				continue
			}
			g := f[x:]
			y := strings.IndexByte(g, '@')
			if y < 0 {
				continue
			}
			ver := g[y+1:]
			if y = strings.IndexByte(ver, '/'); y >= 0 {
				ver = ver[:y]
			}
			i.Imports[s] = ver
		}
	}
	return
}

// unescape a module cache path, where !x stands for X.
func unescape(f string) string {
	v := strings.Builder{}
	x := false
	for _, i := range []byte(f) {
		switch {
		case i == '!':
			x = true
		case x:
			x = false
			v.WriteByte(i - 32)
		default:
			v.WriteByte(i)
		}
	}
	return v.String()
}
