// Package variant generates the two build variants of reloadable functions.
//
// Reloadable functions are written once in a source file excluded from every build by //go:build ignore,
// each marked with a //hotreload:func line in its doc comment. From that file two files are rendered:
//
//   - the host form, built without the artifact tag: every marked function forwards through a hotreload.Site
//     and keeps its original body as the static fallback.
//   - the artifact form, built with the artifact tag: every marked function is exported under its symbol name.
package variant

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/build/constraint"
	"go/format"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/ZenLiuCN/hotreload/builder"
)

type (
	// Kind of a build variant.
	Kind int
	// Param of a reloadable function.
	Param struct {
		Name     string
		Type     string
		Variadic bool
	}
	// Func is one marked function.
	Func struct {
		Name     string
		Receiver string //receiver type name of a method
		Recv     *Param //receiver of a method
		Params   []Param
		Results  string //result list source, empty without results
		Body     string //body block source
		Doc      string //doc comment without the marker
		Original string //declaration source without the doc comment
	}
	// File parsed from a reloadable source.
	File struct {
		Name    string
		Package string
		Imports []string //import line sources
		Decls   []string //unmarked declaration sources, rendered into both forms
		Funcs   []Func
	}
	// Options of Render.
	Options struct {
		Runtime string //package level *hotreload.Runtime variable of the host, default Reload
		Module  string //import path of the hotreload package, default github.com/ZenLiuCN/hotreload
	}
)

const (
	Host Kind = iota
	Artifact
)

const (
	// Marker of a reloadable function.
	Marker = "//hotreload:func"

	defaultRuntime = "Reload"
	defaultModule  = "github.com/ZenLiuCN/hotreload"
)

var (
	// ErrNotIgnored occurs when the source is not excluded from normal builds.
	ErrNotIgnored = errors.New("source must be excluded with //go:build ignore")
	// ErrNoFuncs occurs when the source marks no function.
	ErrNoFuncs = errors.New("no function marked " + Marker)
	// ErrUnsupportedFunc occurs for marked functions that can not be exported by an artifact.
	ErrUnsupportedFunc = errors.New("unsupported reloadable function")
)

// Select the variant of the current build from the artifact build signal.
func Select(signal bool) Kind {
	if signal {
		return Artifact
	}
	return Host
}

func (k Kind) String() string {
	if k == Artifact {
		return "artifact"
	}
	return "host"
}

// Constraint of the variant's build constraint line.
func (k Kind) Constraint() string {
	if k == Artifact {
		return builder.BuildTag
	}
	return "!" + builder.BuildTag
}

// Symbol exported by the artifact for f.
func (f Func) Symbol() string {
	if f.Receiver == "" {
		return f.Name
	}
	return f.Receiver + "_" + f.Name
}

// Names of the rendered files of a reloadable source file.
func Names(file string) (host, artifact string) {
	base := strings.TrimSuffix(file, filepath.Ext(file))
	return base + "_host.go", base + "_artifact.go"
}

// Parse a reloadable source file.
func Parse(name string, src []byte) (f *File, err error) {
	fs := token.NewFileSet()
	var af *ast.File
	if af, err = parser.ParseFile(fs, name, src, parser.ParseComments); err != nil {
		return
	}
	if !ignored(af) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotIgnored)
	}
	text := func(from, to token.Pos) string {
		return string(src[fs.Position(from).Offset:fs.Position(to).Offset])
	}
	f = &File{Name: filepath.Base(name), Package: af.Name.Name}
	for _, imp := range af.Imports {
		f.Imports = append(f.Imports, text(imp.Pos(), imp.End()))
	}
	for _, d := range af.Decls {
		switch x := d.(type) {
		case *ast.GenDecl:
			if x.Tok == token.IMPORT {
				continue
			}
			start := x.Pos()
			if x.Doc != nil {
				start = x.Doc.Pos()
			}
			f.Decls = append(f.Decls, text(start, x.End()))
		case *ast.FuncDecl:
			if !marked(x.Doc) {
				start := x.Pos()
				if x.Doc != nil {
					start = x.Doc.Pos()
				}
				f.Decls = append(f.Decls, text(start, x.End()))
				continue
			}
			var fn Func
			if fn, err = parseFunc(x, text); err != nil {
				return nil, fmt.Errorf("%s: %s: %w", fs.Position(x.Pos()), x.Name.Name, err)
			}
			f.Funcs = append(f.Funcs, fn)
		}
	}
	if len(f.Funcs) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoFuncs)
	}
	return
}

func ignored(f *ast.File) bool {
	for _, g := range f.Comments {
		if g.Pos() > f.Package {
			break
		}
		for _, c := range g.List {
			if !constraint.IsGoBuild(c.Text) {
				continue
			}
			x, err := constraint.Parse(c.Text)
			if err != nil {
				return false
			}
			return x.Eval(func(tag string) bool { return tag == "ignore" }) && !x.Eval(func(string) bool { return false })
		}
	}
	return false
}

func marked(doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		if strings.TrimSpace(c.Text) == Marker {
			return true
		}
	}
	return false
}

func parseFunc(x *ast.FuncDecl, text func(from, to token.Pos) string) (fn Func, err error) {
	if x.Type.TypeParams != nil && len(x.Type.TypeParams.List) > 0 {
		return fn, fmt.Errorf("%w: type parameters", ErrUnsupportedFunc)
	}
	if x.Body == nil {
		return fn, fmt.Errorf("%w: no body", ErrUnsupportedFunc)
	}
	if !x.Name.IsExported() {
		return fn, fmt.Errorf("%w: not exported", ErrUnsupportedFunc)
	}
	fn.Name = x.Name.Name
	if x.Recv != nil && len(x.Recv.List) == 1 {
		r := x.Recv.List[0]
		p := Param{Name: "recv", Type: text(r.Type.Pos(), r.Type.End())}
		if len(r.Names) == 1 && r.Names[0].Name != "_" {
			p.Name = r.Names[0].Name
		}
		fn.Recv = &p
		if fn.Receiver, err = receiverName(r.Type); err != nil {
			return
		}
	}
	i := 0
	for _, field := range x.Type.Params.List {
		typ := text(field.Type.Pos(), field.Type.End())
		_, variadic := field.Type.(*ast.Ellipsis)
		if len(field.Names) == 0 {
			fn.Params = append(fn.Params, Param{Name: fmt.Sprintf("p%d", i), Type: typ, Variadic: variadic})
			i++
			continue
		}
		for _, n := range field.Names {
			name := n.Name
			if name == "_" {
				name = fmt.Sprintf("p%d", i)
			}
			fn.Params = append(fn.Params, Param{Name: name, Type: typ, Variadic: variadic})
			i++
		}
	}
	if x.Type.Results != nil {
		fn.Results = text(x.Type.Results.Pos(), x.Type.Results.End())
	}
	fn.Body = text(x.Body.Pos(), x.Body.End())
	fn.Original = text(x.Pos(), x.End())
	if x.Doc != nil {
		var lines []string
		for _, c := range x.Doc.List {
			if strings.TrimSpace(c.Text) != Marker {
				lines = append(lines, c.Text)
			}
		}
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "//" {
			lines = lines[:len(lines)-1]
		}
		fn.Doc = strings.Join(lines, "\n")
	}
	return
}

func receiverName(t ast.Expr) (string, error) {
	switch x := t.(type) {
	case *ast.StarExpr:
		return receiverName(x.X)
	case *ast.Ident:
		return x.Name, nil
	default:
		return "", fmt.Errorf("%w: generic receiver", ErrUnsupportedFunc)
	}
}

// params declaration list, with the receiver first when recv is set.
func (f Func) params(recv bool) string {
	var s []string
	if recv && f.Recv != nil {
		s = append(s, f.Recv.Name+" "+f.Recv.Type)
	}
	for _, p := range f.Params {
		s = append(s, p.Name+" "+p.Type)
	}
	return strings.Join(s, ", ")
}

// args forwarding the parameters, with the receiver first when recv is set.
func (f Func) args(recv bool) string {
	var s []string
	if recv && f.Recv != nil {
		s = append(s, f.Recv.Name)
	}
	for _, p := range f.Params {
		if p.Variadic {
			s = append(s, p.Name+"...")
		} else {
			s = append(s, p.Name)
		}
	}
	return strings.Join(s, ", ")
}

// Type of the site, a method receiver becomes the first parameter.
func (f Func) Type() string {
	var s []string
	if f.Recv != nil {
		s = append(s, f.Recv.Type)
	}
	for _, p := range f.Params {
		s = append(s, p.Type)
	}
	return strings.TrimSpace("func(" + strings.Join(s, ", ") + ") " + f.Results)
}

func (f Func) signature() string {
	if f.Recv != nil {
		return strings.TrimSpace(fmt.Sprintf("func (%s %s) %s(%s) %s", f.Recv.Name, f.Recv.Type, f.Name, f.params(false), f.Results))
	}
	return strings.TrimSpace(fmt.Sprintf("func %s(%s) %s", f.Name, f.params(false), f.Results))
}

func (f Func) call(target string, recv bool) string {
	c := fmt.Sprintf("%s(%s)", target, f.args(recv))
	if f.Results != "" {
		return "return " + c
	}
	return c
}

func (f Func) site() string {
	return "site" + f.Symbol()
}

func (f Func) static() string {
	return "static" + f.Symbol()
}

func (f Func) doc() string {
	if f.Doc == "" {
		return ""
	}
	return f.Doc + "\n"
}

func (f Func) host(runtime string) string {
	b := new(strings.Builder)
	if f.Recv != nil {
		fmt.Fprintf(b, "var %s = hotreload.NewMethodSite(%s, %q, %q, %s)\n\n", f.site(), runtime, f.Receiver, f.Name, f.static())
	} else {
		fmt.Fprintf(b, "var %s = hotreload.NewSite(%s, %q, %s)\n\n", f.site(), runtime, f.Name, f.static())
	}
	fmt.Fprintf(b, "%s%s {\n\t%s\n}\n\n", f.doc(), f.signature(), f.call(f.site()+".Func()", true))
	fmt.Fprintf(b, "func %s(%s) %s %s\n", f.static(), f.params(true), f.Results, f.Body)
	return b.String()
}

func (f Func) artifact() string {
	if f.Recv == nil {
		return f.doc() + f.Original + "\n"
	}
	b := new(strings.Builder)
	fmt.Fprintf(b, "%s%s {\n\t%s\n}\n\n", f.doc(), f.signature(), f.call(f.Symbol(), true))
	fmt.Fprintf(b, "func %s(%s) %s %s\n", f.Symbol(), f.params(true), f.Results, f.Body)
	return b.String()
}

var tmpl = template.Must(template.New("variant").Parse(`// Code generated by reloader gen from {{.Source}}; DO NOT EDIT.

//go:build {{.Constraint}}

package {{.Package}}
{{if .Imports}}
import (
{{- range .Imports}}
	{{.}}
{{- end}}
)
{{end}}
{{- range .Decls}}
{{.}}
{{end}}
{{- range .Funcs}}
{{.}}
{{end}}`))

// Render the variant k of f.
func Render(f *File, k Kind, opt Options) ([]byte, error) {
	if opt.Runtime == "" {
		opt.Runtime = defaultRuntime
	}
	if opt.Module == "" {
		opt.Module = defaultModule
	}
	data := struct {
		Source     string
		Constraint string
		Package    string
		Imports    []string
		Decls      []string
		Funcs      []string
	}{
		Source:     f.Name,
		Constraint: k.Constraint(),
		Package:    f.Package,
		Decls:      f.Decls,
	}
	if k == Host {
		data.Imports = append(data.Imports, fmt.Sprintf("%q", opt.Module))
	}
	data.Imports = append(data.Imports, f.Imports...)
	for _, fn := range f.Funcs {
		if k == Host {
			data.Funcs = append(data.Funcs, fn.host(opt.Runtime))
		} else {
			data.Funcs = append(data.Funcs, fn.artifact())
		}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format %s form of %s: %w\n%s", k, f.Name, err, buf.Bytes())
	}
	return out, nil
}
