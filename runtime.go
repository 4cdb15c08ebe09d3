package hotreload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ZenLiuCN/hotreload/builder"
	"github.com/ZenLiuCN/hotreload/manifest"
	"github.com/ZenLiuCN/hotreload/watch"
)

// Runtime composes the reload machinery of one host project: the builder publishing the artifact,
// the loader reading it and the lifecycle starting the background rebuilds.
type Runtime struct {
	cfg       Config
	layout    builder.Layout
	builder   *builder.Builder
	loader    *Loader
	lifecycle *Lifecycle
	logger    *slog.Logger
	metrics   *metrics
}

// New create a Runtime. Nothing runs until the first site call or Activate.
func New(cfg Config, opts ...Option) (r *Runtime, err error) {
	if err = cfg.Normalize(); err != nil {
		return
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	r = &Runtime{cfg: cfg, layout: cfg.Layout(), metrics: newMetrics(o.reg)}
	r.logger = o.logger
	if r.logger == nil {
		if cfg.Debug {
			r.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		} else {
			r.logger = slog.Default()
		}
	}
	r.logger = r.logger.With("component", "hotreload")
	opener := o.opener
	if opener == nil {
		if cfg.Backend == manifest.KindObject {
			return nil, fmt.Errorf("%w: backend %s", ErrNoOpener, cfg.Backend)
		}
		opener = PluginOpener(r.layout.ShadowDir())
	}
	r.builder = builder.New(r.layout, builder.Options{
		Runner: o.runner,
		GoCmd:  cfg.GoCmd,
		Flags:  cfg.BuildFlags,
		Logger: r.logger,
	})
	r.loader = NewLoader(r.layout.ArtifactPath(), opener, r.logger)
	r.loader.loaded = func(g *Generation) {
		r.metrics.generations.Set(float64(g.Seq))
	}
	run := o.worker
	if run == nil {
		run = r.background
	}
	r.lifecycle = NewLifecycle(run)
	return
}

// MustNew is New panicking on error, for package level runtimes of generated code.
func MustNew(cfg Config, opts ...Option) *Runtime {
	r, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Config after normalization.
func (r *Runtime) Config() Config {
	return r.cfg
}

// Layout of the host project.
func (r *Runtime) Layout() builder.Layout {
	return r.layout
}

// Loader of the artifact.
func (r *Runtime) Loader() *Loader {
	return r.loader
}

// Lifecycle of the background worker.
func (r *Runtime) Lifecycle() *Lifecycle {
	return r.lifecycle
}

// Logger of the runtime.
func (r *Runtime) Logger() *slog.Logger {
	return r.logger
}

// Activate starts the background worker unless already started.
func (r *Runtime) Activate() bool {
	return r.lifecycle.Activate()
}

// Rebuild the artifact once. A failure leaves the published artifact untouched.
func (r *Runtime) Rebuild(ctx context.Context) (res builder.Result, err error) {
	if res, err = r.builder.Rebuild(ctx); err != nil {
		r.metrics.rebuilds.WithLabelValues("failure").Inc()
		var be *builder.BuildError
		if errors.As(err, &be) {
			r.logger.Error("hot reload build failed", "command", be.Command, "exit", be.ExitCode, "output", string(be.Output))
		} else {
			r.logger.Error("hot reload build failed", "error", err)
		}
		return
	}
	r.metrics.rebuilds.WithLabelValues("success").Inc()
	r.metrics.rebuildTime.Observe(res.Duration.Seconds())
	r.logger.Info("hot reload artifact rebuilt", "id", res.ID, "artifact", res.Artifact, "duration", res.Duration)
	return
}

// Watch the source directory, rebuilding on start and after every settled burst of changes.
// It returns when ctx is done or the watch could not be set up.
func (r *Runtime) Watch(ctx context.Context) error {
	ignore := r.cfg.Ignore
	if ignore != nil {
		ignore = append(append([]string{}, watch.DefaultIgnore...), ignore...)
	}
	w := watch.New(r.layout.SourcePath(), func(ctx context.Context, changes []watch.Change) {
		if len(changes) > 0 {
			r.logger.Debug("source changed", "changes", len(changes), "path", watch.Trim(r.layout.SourcePath(), changes[len(changes)-1].Path))
		}
		_, _ = r.Rebuild(ctx)
	}, watch.Options{
		Window:  r.cfg.Debounce,
		Ignore:  ignore,
		Initial: true,
		Logger:  r.logger,
	})
	return w.Run(ctx)
}

func (r *Runtime) background() {
	if err := r.Watch(context.Background()); err != nil {
		r.logger.Error("hot reload watcher stopped", "root", r.layout.SourcePath(), "error", err)
	}
}

func (r *Runtime) diagnose(err error) {
	var le *LoadError
	if errors.As(err, &le) {
		r.logger.Warn("hot reload fallback", "path", le.Path, "symbol", le.Symbol, "stage", le.Stage, "cause", le.Err)
		return
	}
	r.logger.Warn("hot reload fallback", "cause", err)
}
