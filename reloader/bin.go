package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/ZenLiuCN/hotreload"
	"github.com/ZenLiuCN/hotreload/builder"
	"github.com/ZenLiuCN/hotreload/manifest"
	"github.com/ZenLiuCN/hotreload/object"
	"github.com/ZenLiuCN/hotreload/variant"
)

func main() {
	app := cli.NewApp()
	app.Usage = "hot reload artifact builder"
	app.Name = "reloader"
	app.Description = "builds the loadable artifact of a hot reloaded go project, watches its sources and generates reloadable function variants"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}},
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file, default hotreload.yaml of the project root"},
		&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "project root, default working directory"},
		&cli.StringFlag{Name: "backend", Aliases: []string{"b"}, Usage: "artifact kind: plugin or object"},
	}
	app.Commands = []*cli.Command{
		{Name: "build", Action: build, Usage: "rebuild the artifact once"},
		{Name: "watch", Action: watch, Usage: "rebuild the artifact on start and on every source change"},
		{Name: "prepare",
			Action: prepare,
			Usage:  "materialize the isolated build directory",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "sdk", Usage: "also copy internals of go sdk required by the object backend"},
			},
		},
		{Name: "clean",
			Action: clean,
			Usage:  "remove the isolated build directory",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "sdk", Usage: "also remove copied internals of go sdk"},
			},
		},
		{Name: "manifest", Action: printManifest, Usage: "print the go.mod of the isolated build"},
		{Name: "path", Action: printPath, Usage: "print the artifact path"},
		{Name: "gen",
			Action: gen,
			Usage:  "generate host and artifact forms of reloadable functions. the arguments are //go:build ignore sources.",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "runtime", Value: "Reload", Usage: "package level *hotreload.Runtime of the host"},
			},
			Args: true,
		},
		{Name: "inspect",
			Action: inspect,
			Usage:  "display symbols and imports of object artifacts, default the project artifact",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "pkg", Aliases: []string{"p"}, Usage: "package path or default main"},
			},
			Args: true,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("failure %s", err)
	}
}

func logger(ctx *cli.Context) *slog.Logger {
	level := slog.LevelInfo
	if ctx.Bool("debug") {
		level = slog.LevelDebug
	}
	opt := &slog.HandlerOptions{Level: level}
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewJSONHandler(os.Stderr, opt))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opt))
}

func config(ctx *cli.Context) (c hotreload.Config, err error) {
	root := ctx.String("root")
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return
		}
	}
	file := ctx.String("config")
	if file == "" {
		file, _ = hotreload.FindConfig(root)
	}
	if file != "" {
		if c, err = hotreload.LoadConfig(file); err != nil {
			return
		}
	} else {
		c = hotreload.DefaultConfig()
		c.ProjectRoot = root
		if err = c.FromEnv(); err != nil {
			return
		}
	}
	if b := ctx.String("backend"); b != "" {
		c.Backend = manifest.Kind(b)
	}
	if ctx.Bool("debug") {
		c.Debug = true
	}
	err = c.Normalize()
	return
}

func open(ctx *cli.Context) (rt *hotreload.Runtime, err error) {
	var c hotreload.Config
	if c, err = config(ctx); err != nil {
		return
	}
	l := logger(ctx)
	opts := []hotreload.Option{hotreload.WithLogger(l)}
	if c.Backend == manifest.KindObject {
		opts = append(opts, hotreload.WithOpener(object.New(object.Options{Logger: l})))
	}
	return hotreload.New(c, opts...)
}

func build(ctx *cli.Context) (err error) {
	var rt *hotreload.Runtime
	if rt, err = open(ctx); err != nil {
		return
	}
	var res builder.Result
	if res, err = rt.Rebuild(ctx.Context); err != nil {
		var be *builder.BuildError
		if errors.As(err, &be) {
			_, _ = os.Stderr.Write(be.Output)
		}
		return
	}
	fmt.Println(res.Artifact)
	return
}

func watch(ctx *cli.Context) (err error) {
	var rt *hotreload.Runtime
	if rt, err = open(ctx); err != nil {
		return
	}
	c, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
	defer stop()
	rt.Logger().Info("watching", "source", rt.Layout().SourcePath(), "artifact", rt.Layout().ArtifactPath())
	if err = rt.Watch(c); errors.Is(err, context.Canceled) {
		err = nil
	}
	return
}

func prepare(ctx *cli.Context) (err error) {
	var c hotreload.Config
	if c, err = config(ctx); err != nil {
		return
	}
	l := logger(ctx)
	b := builder.New(c.Layout(), builder.Options{GoCmd: c.GoCmd, Flags: c.BuildFlags, Logger: l})
	var d *manifest.Descriptor
	if d, err = b.Prepare(); err != nil {
		return
	}
	l.Info("prepared isolated build", "dir", c.Layout().IsolatedDir(), "kind", d.Lib.Kind, "entry", d.Lib.Entry)
	if !ctx.Bool("sdk") {
		return
	}
	src := filepath.Join(runtime.GOROOT(), "src", "cmd", "internal")
	dir := filepath.Join(runtime.GOROOT(), "src", "cmd", "objfile")
	if _, err = os.Stat(dir); err != nil && os.IsNotExist(err) {
		if err = builder.CopyDir(src, dir, nil); err != nil {
			return
		}
		l.Debug("copied go sdk internals", "from", src, "to", dir)
	} else {
		l.Debug("did nothing for go sdk", "dir", dir)
	}
	return nil
}

func clean(ctx *cli.Context) (err error) {
	var c hotreload.Config
	if c, err = config(ctx); err != nil {
		return
	}
	l := logger(ctx)
	iso := c.Layout().IsolatedDir()
	if err = os.RemoveAll(iso); err != nil {
		return
	}
	l.Debug("removed isolated build", "dir", iso)
	if !ctx.Bool("sdk") {
		return
	}
	dir := filepath.Join(runtime.GOROOT(), "src", "cmd", "objfile")
	if _, err = os.Stat(dir); err == nil {
		err = os.RemoveAll(dir)
		l.Debug("removed go sdk internals", "dir", dir)
	} else {
		l.Debug("did nothing for go sdk", "dir", dir)
		err = nil
	}
	return
}

func printManifest(ctx *cli.Context) (err error) {
	var c hotreload.Config
	if c, err = config(ctx); err != nil {
		return
	}
	l := c.Layout()
	var d *manifest.Descriptor
	if d, err = manifest.Load(filepath.Join(l.ProjectRoot, "go.mod"), l.ManifestOptions()); err != nil {
		return
	}
	_, err = os.Stdout.Write(d.GoMod)
	return
}

func printPath(ctx *cli.Context) (err error) {
	var c hotreload.Config
	if c, err = config(ctx); err != nil {
		return
	}
	fmt.Println(c.Layout().ArtifactPath())
	return
}

func gen(ctx *cli.Context) (err error) {
	o := ctx.Args().Slice()
	if len(o) == 0 {
		return fmt.Errorf("missing reloadable sources list")
	}
	l := logger(ctx)
	opt := variant.Options{Runtime: ctx.String("runtime")}
	for _, s := range o {
		var src []byte
		if src, err = os.ReadFile(s); err != nil {
			return
		}
		var f *variant.File
		if f, err = variant.Parse(s, src); err != nil {
			return
		}
		host, artifact := variant.Names(s)
		for k, out := range map[variant.Kind]string{variant.Host: host, variant.Artifact: artifact} {
			var b []byte
			if b, err = variant.Render(f, k, opt); err != nil {
				return
			}
			if err = os.WriteFile(out, b, 0o644); err != nil {
				return
			}
			l.Info("generated", "source", s, "form", k, "file", out, "functions", len(f.Funcs))
		}
	}
	return
}

func inspect(ctx *cli.Context) (err error) {
	o := ctx.Args().Slice()
	if len(o) == 0 {
		var c hotreload.Config
		if c, err = config(ctx); err != nil {
			return
		}
		o = []string{c.Layout().ArtifactPath()}
	}
	pkg := ctx.String("pkg")
	for _, s := range o {
		if !strings.HasSuffix(s, ".o") && !strings.HasSuffix(s, ".a") {
			return fmt.Errorf("%s: %w: only object artifacts can be inspected", s, hotreload.ErrUnsupported)
		}
		var syms []string
		if syms, err = object.Inspect(s, pkg); err != nil {
			return
		}
		var v *object.Info
		if v, err = object.Imports(s, pkg); err != nil {
			return
		}
		fmt.Printf("%s\nsymbols:\n", s)
		for _, sym := range syms {
			fmt.Printf("\t%s\n", sym)
		}
		fmt.Printf("imports:\n%s", v.String())
	}
	return
}
