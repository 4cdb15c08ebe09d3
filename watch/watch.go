// Package watch observes a source tree and coalesces bursts of changes into single triggers.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

type (
	// Change is one filesystem event.
	Change struct {
		Path string
		Op   fsnotify.Op
		Time time.Time
	}
	// Handler receives the deduplicated changes of one burst. It runs on the watcher goroutine.
	Handler func(ctx context.Context, changes []Change)
	// Options of Watcher.
	Options struct {
		Window  time.Duration //settle window, default DefaultWindow
		Ignore  []string      //base name glob patterns, default DefaultIgnore
		Buffer  int           //pending change buffer, default 1024
		Initial bool          //call the handler once before watching
		Logger  *slog.Logger
	}
	// Watcher recursively watches a directory.
	Watcher struct {
		root    string
		handler Handler
		opt     Options
		logger  *slog.Logger
	}
)

const DefaultWindow = 500 * time.Millisecond

var (
	DefaultIgnore = []string{".git", ".idea", ".vscode", "*.swp", "*.swx", "*.tmp", "*~", "4913", ".#*"}
	// ErrNotDirectory occurs when the watch root is not a directory.
	ErrNotDirectory = errors.New("watch root is not a directory")
)

// New create a Watcher of root.
func New(root string, handler Handler, opt Options) *Watcher {
	if opt.Window <= 0 {
		opt.Window = DefaultWindow
	}
	if opt.Ignore == nil {
		opt.Ignore = DefaultIgnore
	}
	if opt.Buffer <= 0 {
		opt.Buffer = 1024
	}
	w := &Watcher{root: root, handler: handler, opt: opt, logger: opt.Logger}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Run watches until ctx is done. A setup failure is returned before any handler call.
func (w *Watcher) Run(ctx context.Context) (err error) {
	var info fs.FileInfo
	if info, err = os.Stat(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: %w", w.root, ErrNotDirectory)
	}
	var fw *fsnotify.Watcher
	if fw, err = fsnotify.NewWatcher(); err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err = w.addRecursive(fw, w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	w.logger.Debug("watching for changes", "root", w.root, "window", w.opt.Window)
	if w.opt.Initial {
		w.handler(ctx, nil)
	}
	changes := make(chan Change, w.opt.Buffer)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.events(ctx, fw, changes)
		return nil
	})
	g.Go(func() error {
		Debounce(ctx, changes, w.opt.Window, func(batch []Change) {
			w.handler(ctx, batch)
		})
		return nil
	})
	return g.Wait()
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.opt.Ignore {
		if base == pattern {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) events(ctx context.Context, fw *fsnotify.Watcher, out chan<- Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if w.ignored(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err = w.addRecursive(fw, ev.Name); err != nil {
						w.logger.Warn("watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			select {
			case out <- Change{Path: ev.Name, Op: ev.Op, Time: time.Now()}:
			default:
				// a burst this large triggers a rebuild anyway
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("error watching for code changes", "root", w.root, "error", err)
		}
	}
}

// Debounce collects changes from in and calls fire once the window elapsed without a new change.
// Pending changes are dropped when ctx is done. It returns when ctx is done or in is closed.
func Debounce(ctx context.Context, in <-chan Change, window time.Duration, fire func([]Change)) {
	var (
		batch  []Change
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-in:
			if !ok {
				if len(batch) > 0 {
					fire(dedupe(batch))
				}
				return
			}
			batch = append(batch, c)
			if timer == nil {
				timer = time.NewTimer(window)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(window)
			}
		case <-timerC:
			timer, timerC = nil, nil
			b := dedupe(batch)
			batch = nil
			fire(b)
		}
	}
}

// dedupe keeps the latest change of every path, in first seen order.
func dedupe(changes []Change) []Change {
	seen := make(map[string]int, len(changes))
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if i, ok := seen[c.Path]; ok {
			out[i] = c
			continue
		}
		seen[c.Path] = len(out)
		out = append(out, c)
	}
	return out
}

// Trim a change path for logs, relative to root when possible.
func Trim(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
