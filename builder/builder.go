// Package builder materializes the isolated build directory and runs the go tool to publish
// the loadable artifact.
//
// A rebuild never writes the published artifact in place: the go tool writes a temporary file
// next to it, which is renamed over the artifact only when the build succeeded. Readers observe
// either the previous artifact or the new one.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ZenLiuCN/hotreload/manifest"
)

type (
	// Options of Builder, zero values are usable.
	Options struct {
		Runner Runner       //default CommandRunner
		GoCmd  string       //default "go"
		Flags  []string     //extra flags for go build
		Logger *slog.Logger //default slog.Default()
	}
	// Builder rebuilds the artifact of one Layout.
	Builder struct {
		layout Layout
		runner Runner
		goCmd  string
		flags  []string
		logger *slog.Logger
		mu     sync.Mutex
	}
	// Result of one successful rebuild.
	Result struct {
		ID       string
		Artifact string
		Duration time.Duration
	}
)

var (
	// ErrMissingManifest occurs when the host project has no go.mod.
	ErrMissingManifest = errors.New("host go.mod not found")
)

// New create a Builder for the layout.
func New(layout Layout, opt Options) *Builder {
	b := &Builder{
		layout: layout,
		runner: opt.Runner,
		goCmd:  opt.GoCmd,
		flags:  opt.Flags,
		logger: opt.Logger,
	}
	if b.runner == nil {
		b.runner = CommandRunner{}
	}
	if b.goCmd == "" {
		b.goCmd = "go"
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Layout of this builder.
func (b *Builder) Layout() Layout {
	return b.layout
}

// Env of isolated builds.
func Env() []string {
	return []string{EnvSignal + "=true", "GOWORK=off"}
}

// Prepare the isolated directory: relink the source tree and write the transformed go.mod.
func (b *Builder) Prepare() (d *manifest.Descriptor, err error) {
	l := b.layout
	iso := l.IsolatedDir()
	if err = os.MkdirAll(l.OutputDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create isolated directory: %w", err)
	}
	if err = Relink(l.SourcePath(), l.SourceLink()); err != nil {
		return nil, err
	}
	hostMod := filepath.Join(l.ProjectRoot, "go.mod")
	isoMod := filepath.Join(iso, "go.mod")
	if err = CopyFile(hostMod, isoMod, nil); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingManifest, hostMod)
		}
		return nil, fmt.Errorf("copy go.mod: %w", err)
	}
	hostSum := filepath.Join(l.ProjectRoot, "go.sum")
	if err = CopyFile(hostSum, filepath.Join(iso, "go.sum"), nil); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("copy go.sum: %w", err)
	}
	if d, err = manifest.Load(isoMod, l.ManifestOptions()); err != nil {
		return nil, err
	}
	if err = os.WriteFile(isoMod, d.GoMod, 0o644); err != nil {
		return nil, fmt.Errorf("write go.mod: %w", err)
	}
	return d, nil
}

// Rebuild the artifact. Calls are serialized; the published artifact is replaced only on success.
func (b *Builder) Rebuild(ctx context.Context) (r Result, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := time.Now()
	r.ID = uuid.NewString()
	r.Artifact = b.layout.ArtifactPath()
	var d *manifest.Descriptor
	if d, err = b.Prepare(); err != nil {
		return
	}
	tmp := filepath.Join(b.layout.OutputDir(), fmt.Sprintf(".%s.%s.tmp", b.layout.ArtifactName(), r.ID[:8]))
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	b.logger.Debug("rebuilding hot reload artifact", "id", r.ID, "kind", d.Lib.Kind, "dir", b.layout.IsolatedDir())
	switch d.Lib.Kind {
	case manifest.KindObject:
		err = b.object(ctx, d, tmp)
	default:
		err = b.plugin(ctx, r.ID[:8], tmp)
	}
	if err != nil {
		return
	}
	if err = os.Rename(tmp, r.Artifact); err != nil {
		err = fmt.Errorf("publish artifact: %w", err)
		return
	}
	r.Duration = time.Since(start)
	return
}

func (b *Builder) plugin(ctx context.Context, id, output string) error {
	entry, err := b.link(id)
	if err != nil {
		return err
	}
	args := []string{
		"build",
		"-buildmode=plugin",
		"-mod=mod",
		"-tags", BuildTag,
		"-o", output,
	}
	args = append(args, b.flags...)
	args = append(args, entry)
	_, err = b.runner.Run(ctx, Command{Dir: b.layout.IsolatedDir(), Name: b.goCmd, Args: args, Env: Env()})
	return err
}

// link the sources for the build id, removing the links of earlier builds.
// The runtime refuses a plugin whose main package path was loaded before.
func (b *Builder) link(id string) (entry string, err error) {
	var old []string
	if old, err = filepath.Glob(filepath.Join(b.layout.IsolatedDir(), SourceLinkName+"_*")); err != nil {
		return
	}
	for _, o := range old {
		if err = os.Remove(o); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("remove stale link %s: %w", o, err)
		}
	}
	if err = Relink(b.layout.SourcePath(), b.layout.BuildLink(id)); err != nil {
		return
	}
	return b.layout.BuildEntry(id), nil
}

func (b *Builder) object(ctx context.Context, d *manifest.Descriptor, output string) (err error) {
	iso := b.layout.IsolatedDir()
	var files []string
	if files, err = Sources(ctx, b.runner, b.goCmd, iso, d.Lib.Entry, Env()); err != nil {
		return
	}
	cfg := filepath.Join(iso, "importcfg")
	if err = Imports(ctx, b.runner, b.goCmd, iso, d.Lib.Entry, cfg, Env()); err != nil {
		return
	}
	return Compile(ctx, b.runner, b.goCmd, iso, cfg, output, files, Env())
}
