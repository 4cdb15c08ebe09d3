package hotreload

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/ZenLiuCN/fn"
	"golang.org/x/sync/singleflight"

	"github.com/ZenLiuCN/hotreload/pool"
)

type (
	// Stage of artifact access that failed.
	Stage string
	// LoadError reports an artifact that could not be used for a symbol. Sites never return it, they fall back.
	LoadError struct {
		Stage  Stage
		Path   string
		Symbol string
		Err    error
	}
	// Generation of a loaded artifact.
	Generation = pool.Generation[Capability]
	// Loader opens the artifact at one path, keeping every generation it opened.
	Loader struct {
		path   string
		opener Opener
		pool   *pool.Pool[Capability]
		group  singleflight.Group
		logger *slog.Logger
		loaded func(g *Generation)
		mu     sync.Mutex
		failed *failure //last artifact that could not be opened
	}
	failure struct {
		info fs.FileInfo
		err  error
	}
)

const (
	StageOpen    Stage = "open"
	StageResolve Stage = "resolve"
)

func (e *LoadError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("%s artifact %s: %v", e.Stage, e.Path, e.Err)
	}
	return fmt.Sprintf("%s symbol %s of artifact %s: %v", e.Stage, e.Symbol, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoader of the artifact at path.
func NewLoader(path string, opener Opener, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		path:   path,
		opener: opener,
		pool:   pool.NewPool[Capability](),
		logger: logger,
	}
}

// Path of the artifact.
func (l *Loader) Path() string {
	return l.path
}

// Generations opened so far, oldest first.
func (l *Loader) Generations() []*Generation {
	return l.pool.Generations()
}

// Open the artifact as currently on disk. An unchanged file reuses the current generation,
// an unchanged file that failed to open fails again without reopening.
func (l *Loader) Open() (*Generation, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, &LoadError{Stage: StageOpen, Path: l.path, Err: err}
	}
	if g := l.pool.Match(l.path, info); g != nil {
		return g, nil
	}
	if err = l.failedOpen(info); err != nil {
		return nil, &LoadError{Stage: StageOpen, Path: l.path, Err: err}
	}
	v, err, _ := l.group.Do(pool.Key(l.path, info), func() (any, error) {
		if g := l.pool.Match(l.path, info); g != nil {
			return g, nil
		}
		c, err := l.open()
		if err != nil {
			l.mu.Lock()
			l.failed = &failure{info: info, err: err}
			l.mu.Unlock()
			return nil, err
		}
		g := l.pool.Add(l.path, info, c)
		l.logger.Info("loaded hot reload artifact", "path", l.path, "generation", g.Seq, "size", info.Size())
		if l.loaded != nil {
			l.loaded(g)
		}
		return g, nil
	})
	if err != nil {
		return nil, &LoadError{Stage: StageOpen, Path: l.path, Err: err}
	}
	return v.(*Generation), nil
}

// failedOpen returns the open error of the artifact observed by info, nil unless that file already failed.
func (l *Loader) failedOpen(info fs.FileInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failed != nil && pool.Same(l.failed.info, info) {
		return l.failed.err
	}
	return nil
}

// Lookup a symbol in the current artifact.
func (l *Loader) Lookup(name string) (s Symbol, err error) {
	var g *Generation
	if g, err = l.Open(); err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Symbol = name
		}
		return
	}
	if s, err = lookup(g.Value, name); err != nil {
		err = &LoadError{Stage: StageResolve, Path: l.path, Symbol: name, Err: err}
	}
	return
}

func (l *Loader) open() (c Capability, err error) {
	if l.opener == nil {
		return nil, ErrNoOpener
	}
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return l.opener.Open(l.path)
}

func lookup(c Capability, name string) (s Symbol, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return c.Lookup(name)
}

func recovered(r any) error {
	switch e := r.(type) {
	case error:
		return e
	default:
		return fmt.Errorf("%v", e)
	}
}

// Digest of a file content as hex encoded sha256.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fn.IgnoreClose(f)
	h := sha256.New()
	if _, err = io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
