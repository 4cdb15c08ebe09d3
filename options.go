package hotreload

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ZenLiuCN/hotreload/builder"
)

type (
	// Option of Runtime.
	Option  func(o *options)
	options struct {
		logger *slog.Logger
		reg    prometheus.Registerer
		opener Opener
		runner builder.Runner
		worker func()
	}
)

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegisterer registers the runtime metrics. Without it metrics are collected but not exposed.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.reg = reg
	}
}

// WithOpener sets the artifact opener. The object backend requires one, see package object.
func WithOpener(op Opener) Option {
	return func(o *options) {
		o.opener = op
	}
}

// WithRunner replaces the go tool runner of rebuilds.
func WithRunner(r builder.Runner) Option {
	return func(o *options) {
		o.runner = r
	}
}

// WithWorker replaces the background worker started on activation, which by default watches
// the source directory and rebuilds.
func WithWorker(run func()) Option {
	return func(o *options) {
		o.worker = run
	}
}
