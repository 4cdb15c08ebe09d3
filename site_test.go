package hotreload

import (
	"errors"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiteFallbackWithoutArtifact(t *testing.T) {
	h := newHarness(t)
	s := NewSite(h.rt, "Step", identity)

	f, o, err := s.Resolve()
	assert.Equal(t, Fallback, o)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, StageOpen, le.Stage)
	assert.Equal(t, "Step", le.Symbol)
	assert.Equal(t, 7, f(7))

	h.log.reset()
	assert.Equal(t, 7, s.Func()(7), "fallback result equals the static body")
	assert.Equal(t, 1, h.log.warnings())
	assert.Contains(t, h.log.String(), h.rt.Layout().ArtifactPath())
	assert.Contains(t, h.log.String(), "symbol=Step")
	assert.Contains(t, h.log.String(), "stage=open")
}

func TestSiteReloaded(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "v1")
	s := NewSite(h.rt, "Step", identity)

	_, o, err := s.Resolve()
	require.NoError(t, err)
	assert.Equal(t, Reloaded, o)
	assert.Equal(t, 10, s.Func()(5))
	assert.Zero(t, h.log.warnings(), "present symbol logs no diagnostic")
}

func TestSiteSwap(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "v1")
	s := NewSite(h.rt, "Step", identity)

	first := s.Func()
	assert.Equal(t, 10, first(5))
	assert.Equal(t, 10, s.Func()(5))
	assert.EqualValues(t, 1, h.opener.opens.Load(), "an unchanged artifact is opened once")

	h.publish(t, "v2")
	assert.Equal(t, 15, s.Func()(5))
	assert.Equal(t, 10, first(5), "earlier resolutions keep their generation")
	assert.Len(t, h.rt.Loader().Generations(), 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.rt.metrics.generations))
}

func TestSiteMissingSymbol(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "v2")
	s := NewSite(h.rt, "Name", func() string { return "static" })

	f, o, err := s.Resolve()
	assert.Equal(t, Fallback, o)
	assert.ErrorIs(t, err, ErrMissingSymbol)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, StageResolve, le.Stage)
	assert.Equal(t, "static", f())
}

func TestSiteSignatureMismatch(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "mismatch")
	s := NewSite(h.rt, "Step", identity)

	_, o, err := s.Resolve()
	assert.Equal(t, Fallback, o)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
	assert.Equal(t, 3, s.Func()(3))
	assert.Equal(t, 1, h.log.warnings())
}

func TestSiteOpenerPanic(t *testing.T) {
	h := newHarness(t)
	h.opener.panics = true
	h.publish(t, "v1")
	s := NewSite(h.rt, "Step", identity)

	assert.NotPanics(t, func() {
		assert.Equal(t, 4, s.Func()(4))
	})
	_, _, err := s.Resolve()
	assert.ErrorContains(t, err, "corrupt artifact")
}

func TestSiteBrokenArtifactOpenedOnce(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "garbage")
	s := NewSite(h.rt, "Step", identity)

	for i := 0; i < 100; i++ {
		assert.Equal(t, i, s.Func()(i))
	}
	assert.EqualValues(t, 1, h.opener.opens.Load(), "an unchanged broken artifact is opened once")
	_, _, err := s.Resolve()
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, StageOpen, le.Stage)
	assert.ErrorContains(t, err, "unknown artifact")

	h.publish(t, "v1")
	assert.Equal(t, 10, s.Func()(5), "a replaced artifact is opened again")
	assert.EqualValues(t, 2, h.opener.opens.Load())
}

func TestMethodSite(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "v1")
	s := NewMethodSite(h.rt, "World", "Step", identity)
	assert.Equal(t, "World_Step", s.Symbol)
	assert.Equal(t, 8, s.Func()(4))
}

func TestSiteInvalidSymbol(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "v1")
	s := NewSite(h.rt, "step", identity)
	_, o, err := s.Resolve()
	assert.Equal(t, Fallback, o)
	assert.ErrorIs(t, err, ErrInvalidSymbol)
	assert.EqualValues(t, 0, h.opener.opens.Load())
}

func TestSiteActivatesOnce(t *testing.T) {
	h := newHarness(t)
	s := NewSite(h.rt, "Step", identity)
	assert.False(t, h.rt.Lifecycle().Active())
	_, _, _ = s.Resolve()
	assert.False(t, h.rt.Lifecycle().Active(), "resolve does not activate")

	var w sync.WaitGroup
	for i := 0; i < 16; i++ {
		w.Add(1)
		go func() {
			defer w.Done()
			s.Use(func(f func(int) int) { f(1) })
		}()
	}
	w.Wait()
	assert.True(t, h.rt.Lifecycle().Active())
	assert.Eventually(t, func() bool { return h.workers.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, h.workers.Load())
}

func TestSiteMetrics(t *testing.T) {
	h := newHarness(t)
	s := NewSite(h.rt, "Step", identity)
	s.Func()
	h.publish(t, "v1")
	s.Func()
	s.Func()
	assert.Equal(t, 1.0, testutil.ToFloat64(h.rt.metrics.calls.WithLabelValues("Step", "fallback")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.rt.metrics.calls.WithLabelValues("Step", "reloaded")))
	n, err := testutil.GatherAndCount(h.reg, "hotreload_site_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLoaderCoalescesOpen(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "v1")
	var w sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		w.Add(1)
		go func() {
			defer w.Done()
			if _, err := h.rt.Loader().Open(); err != nil {
				errs <- err
			}
		}()
	}
	w.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, h.opener.opens.Load())
}

func TestLoaderWithoutOpener(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "v1")
	l := NewLoader(h.rt.Layout().ArtifactPath(), nil, nil)
	_, err := l.Lookup("Step")
	assert.True(t, errors.Is(err, ErrNoOpener))
}

func BenchmarkSiteFunc(b *testing.B) {
	root := b.TempDir()
	rt, err := New(Config{ProjectRoot: root, SourceDir: "src", Backend: "plugin", GoCmd: "go"},
		WithOpener(&fakeOpener{}), WithWorker(func() {}))
	if err != nil {
		b.Fatal(err)
	}
	s := NewSite(rt, "Step", identity)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = s.Resolve()
	}
}

func BenchmarkExecuteRaw(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		identity(i)
	}
}
