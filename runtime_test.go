package hotreload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZenLiuCN/hotreload/builder"
	"github.com/ZenLiuCN/hotreload/manifest"
)

func TestRuntimeRebuild(t *testing.T) {
	h := newHarness(t)
	s := NewSite(h.rt, "Step", identity)

	h.runner.set("v1", false)
	res, err := h.rt.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h.rt.Layout().ArtifactPath(), res.Artifact)
	assert.Equal(t, 10, s.Func()(5))

	h.runner.set("v2", true)
	_, err = h.rt.Rebuild(context.Background())
	var be *builder.BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.ExitCode)
	assert.Equal(t, 10, s.Func()(5), "a failed build keeps serving the previous artifact")
	assert.Contains(t, h.log.String(), "hot reload build failed")

	h.runner.set("v2", false)
	_, err = h.rt.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, s.Func()(5))

	assert.Equal(t, 2.0, testutil.ToFloat64(h.rt.metrics.rebuilds.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.rt.metrics.rebuilds.WithLabelValues("failure")))
}

func TestRuntimeWatch(t *testing.T) {
	h := newHarness(t)
	h.runner.set("v1", false)
	h.rt.cfg.Debounce = 300 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.rt.Watch(ctx)
	}()
	require.Eventually(t, func() bool { return h.runner.count() == 1 }, 2*time.Second, 10*time.Millisecond, "rebuild on start")

	src := filepath.Join(h.rt.Layout().SourcePath(), "main.go")
	require.NoError(t, os.WriteFile(src, []byte("package main\n\nfunc Step(x int) int { return x }\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(src, []byte("package main\n\nfunc Step(x int) int { return x * 3 }\n"), 0o644))

	require.Eventually(t, func() bool { return h.runner.count() == 2 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 2, h.runner.count(), "two edits within the window rebuild once")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestRuntimeWatchSetupFailure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.RemoveAll(h.rt.Layout().SourcePath()))
	err := h.rt.Watch(context.Background())
	require.Error(t, err)
	assert.Zero(t, h.runner.count())
}

func TestNewObjectRequiresOpener(t *testing.T) {
	_, err := New(Config{ProjectRoot: t.TempDir(), SourceDir: "src", Backend: manifest.KindObject, GoCmd: "go"})
	assert.ErrorIs(t, err, ErrNoOpener)
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(Config{ProjectRoot: t.TempDir(), SourceDir: "src", Backend: "wasm", GoCmd: "go"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
