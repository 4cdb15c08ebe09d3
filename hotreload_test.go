package hotreload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ZenLiuCN/fn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ZenLiuCN/hotreload/builder"
	"github.com/ZenLiuCN/hotreload/manifest"
)

type (
	fakeCapability struct {
		path string
		syms map[string]any
	}
	// fakeOpener serves the symbols registered for the artifact content.
	fakeOpener struct {
		opens    atomic.Int32
		versions map[string]map[string]any
		panics   bool
	}
	fakeRunner struct {
		mu     sync.Mutex
		builds int
		fail   bool
		output string
	}
	harness struct {
		rt      *Runtime
		opener  *fakeOpener
		runner  *fakeRunner
		log     *syncBuffer
		reg     *prometheus.Registry
		workers *atomic.Int32
	}
	syncBuffer struct {
		mu sync.Mutex
		b  bytes.Buffer
	}
)

func (c fakeCapability) Path() string {
	return c.path
}

func (c fakeCapability) Lookup(name string) (Symbol, error) {
	v, ok := c.syms[name]
	if !ok {
		return Symbol{}, fmt.Errorf("%w: %s", ErrMissingSymbol, name)
	}
	return ValueSymbol(name, v), nil
}

func (c fakeCapability) Symbols() []string {
	return fn.MapKeys(c.syms)
}

func (o *fakeOpener) Open(path string) (Capability, error) {
	o.opens.Add(1)
	if o.panics {
		panic("corrupt artifact")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	syms, ok := o.versions[string(b)]
	if !ok {
		return nil, fmt.Errorf("unknown artifact %q", b)
	}
	return fakeCapability{path: path, syms: syms}, nil
}

func (f *fakeRunner) Run(_ context.Context, cmd builder.Command) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	if f.fail {
		return []byte("src/main.go:3:1: syntax error"), &builder.BuildError{Command: cmd.String(), ExitCode: 1, Output: []byte("syntax error")}
	}
	if i := slices.Index(cmd.Args, "-o"); i >= 0 {
		return nil, os.WriteFile(cmd.Args[i+1], []byte(f.output), 0o644)
	}
	return nil, nil
}

func (f *fakeRunner) set(output string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.output = output
	f.fail = fail
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func (s *syncBuffer) warnings() int {
	return strings.Count(s.String(), "level=WARN")
}

func (s *syncBuffer) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.b.Reset()
}

func double(x int) int { return x * 2 }
func triple(x int) int { return x * 3 }
func identity(x int) int { return x }

// project creates a host project with a source directory.
func project(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/sim\n\ngo 1.22\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main\n"), 0o644))
	return root
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		opener: &fakeOpener{versions: map[string]map[string]any{
			"v1":       {"Step": double, "World_Step": double, "Name": func() string { return "v1" }},
			"v2":       {"Step": triple, "World_Step": triple},
			"mismatch": {"Step": func(s string) string { return s }},
		}},
		runner:  &fakeRunner{},
		log:     new(syncBuffer),
		reg:     prometheus.NewRegistry(),
		workers: new(atomic.Int32),
	}
	cfg := Config{
		ProjectRoot: project(t),
		SourceDir:   "src",
		Backend:     manifest.KindPlugin,
		GoCmd:       "go",
	}
	base := []Option{
		WithOpener(h.opener),
		WithRunner(h.runner),
		WithLogger(slog.New(slog.NewTextHandler(h.log, nil))),
		WithRegisterer(h.reg),
		WithWorker(func() { h.workers.Add(1) }),
	}
	rt, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	h.rt = rt
	return h
}

// publish an artifact the way the builder does.
func (h *harness) publish(t *testing.T, content string) {
	t.Helper()
	path := h.rt.Layout().ArtifactPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}
