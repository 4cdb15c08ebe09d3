package builder

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/ZenLiuCN/hotreload/manifest"
)

const (
	// ArtifactID names the isolated module and the artifact file.
	ArtifactID = "hot_reload_shared_lib"
	// HotBuildDir is the isolated build directory name under the target directory.
	HotBuildDir = "hot_reload_target"
	// EnvSignal is set to "true" in the environment of every isolated build.
	EnvSignal = "HOT_RELOAD_BUILD"
	// BuildTag is passed to the go tool for isolated builds, selecting the artifact form of reloadable functions.
	BuildTag = "hotreload_artifact"
	// SourceLinkName is the name of the link to the host source directory inside the isolated directory.
	SourceLinkName = "src"
)

// Layout of the host project and of the isolated build. All paths are derived, nothing is stored on disk.
type Layout struct {
	ProjectRoot string        //absolute host project root, holding go.mod
	TargetDir   string        //absolute build output root
	SourceDir   string        //host source directory relative to ProjectRoot, the watched tree and the artifact entry
	Kind        manifest.Kind //artifact kind
	GOOS        string        //target os, runtime.GOOS when empty
}

// SharedLibraryName of id following the loadable library convention of goos.
func SharedLibraryName(goos, id string) string {
	switch goos {
	case "darwin", "ios":
		return fmt.Sprintf("lib%s.dylib", id)
	case "windows":
		return fmt.Sprintf("%s.dll", id)
	default:
		return fmt.Sprintf("lib%s.so", id)
	}
}

// ArtifactName of the layout's kind.
func (l Layout) ArtifactName() string {
	if l.Kind == manifest.KindObject {
		return ArtifactID + ".o"
	}
	goos := l.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	return SharedLibraryName(goos, ArtifactID)
}

// IsolatedDir is where the artifact module is materialized.
func (l Layout) IsolatedDir() string {
	return filepath.Join(l.TargetDir, HotBuildDir)
}

// SourcePath is the absolute host source directory.
func (l Layout) SourcePath() string {
	return filepath.Join(l.ProjectRoot, l.SourceDir)
}

// SourceLink inside the isolated directory, pointing at SourcePath.
func (l Layout) SourceLink() string {
	return filepath.Join(l.IsolatedDir(), SourceLinkName)
}

// BuildLink inside the isolated directory for the build id, pointing at SourcePath.
// Go plugins are identified by the import path of their main package, each plugin build compiles the
// sources under its own link.
func (l Layout) BuildLink(id string) string {
	return filepath.Join(l.IsolatedDir(), SourceLinkName+"_"+id)
}

// BuildEntry of the build id, relative to the isolated directory.
func (l Layout) BuildEntry(id string) string {
	return "./" + SourceLinkName + "_" + id
}

// OutputDir holds the published artifact.
func (l Layout) OutputDir() string {
	return filepath.Join(l.IsolatedDir(), "target", "debug")
}

// ShadowDir holds digest named copies of loaded artifacts.
func (l Layout) ShadowDir() string {
	return filepath.Join(l.IsolatedDir(), "target", "shadow")
}

// ArtifactPath is the well known path shared by the builder and the loader.
func (l Layout) ArtifactPath() string {
	return filepath.Join(l.OutputDir(), l.ArtifactName())
}

// Entry package of the artifact, relative to the isolated directory.
func (l Layout) Entry() string {
	return "./" + SourceLinkName
}

// Depth is the slash separated path from the isolated directory back to the project root.
// It is absolute when no relative path exists, e.g. across volumes.
func (l Layout) Depth() string {
	rel, err := filepath.Rel(l.IsolatedDir(), l.ProjectRoot)
	if err != nil {
		return filepath.ToSlash(l.ProjectRoot)
	}
	return filepath.ToSlash(rel)
}

// ManifestOptions for transforming the host go.mod of this layout.
func (l Layout) ManifestOptions() manifest.Options {
	return manifest.Options{
		ArtifactID: ArtifactID,
		Depth:      l.Depth(),
		Kind:       l.Kind,
		Entry:      l.Entry(),
	}
}
