package hotreload

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZenLiuCN/hotreload/manifest"
	"github.com/ZenLiuCN/hotreload/watch"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, ConfigFile)
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	return file
}

func TestLoadConfig(t *testing.T) {
	file := writeConfig(t, `
project_root: game
source_dir: ./cmd/sim/
backend: object
debounce: 250ms
build_flags: [-race]
ignore: ["*.bak"]
`)
	c, err := LoadConfig(file)
	require.NoError(t, err)
	root := filepath.Join(filepath.Dir(file), "game")
	assert.Equal(t, root, c.ProjectRoot)
	assert.Equal(t, filepath.Join(root, "target"), c.TargetDir)
	assert.Equal(t, filepath.FromSlash("cmd/sim"), c.SourceDir)
	assert.Equal(t, manifest.KindObject, c.Backend)
	assert.Equal(t, 250*time.Millisecond, c.Debounce)
	assert.Equal(t, "go", c.GoCmd)
	assert.Equal(t, []string{"-race"}, c.BuildFlags)
	assert.Equal(t, []string{"*.bak"}, c.Ignore)

	l := c.Layout()
	assert.Equal(t, filepath.Join(root, "cmd", "sim"), l.SourcePath())
	assert.Equal(t, "hot_reload_shared_lib.o", l.ArtifactName())
}

func TestLoadConfigEnv(t *testing.T) {
	file := writeConfig(t, "source_dir: src\n")
	t.Setenv(EnvTargetDir, "out")
	t.Setenv(EnvBackend, "object")
	t.Setenv(EnvDebug, "true")
	c, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.ProjectRoot, "out"), c.TargetDir)
	assert.Equal(t, manifest.KindObject, c.Backend)
	assert.True(t, c.Debug)

	t.Setenv(EnvDebug, "loud")
	_, err = LoadConfig(file)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfigDefaults(t *testing.T) {
	c, err := LoadConfig("")
	require.NoError(t, err)
	wd, _ := os.Getwd()
	assert.Equal(t, wd, c.ProjectRoot)
	assert.Equal(t, "src", c.SourceDir)
	assert.Equal(t, manifest.KindPlugin, c.Backend)
	assert.Equal(t, watch.DefaultWindow, c.Debounce)
}

func TestConfigInvalid(t *testing.T) {
	for name, c := range map[string]Config{
		"backend":    {ProjectRoot: "/p", SourceDir: "src", Backend: "wasm", GoCmd: "go"},
		"root":       {SourceDir: "src", Backend: manifest.KindPlugin, GoCmd: "go"},
		"module dir": {ProjectRoot: "/p", SourceDir: ".", Backend: manifest.KindPlugin, GoCmd: "go"},
		"outside":    {ProjectRoot: "/p", SourceDir: "../other", Backend: manifest.KindPlugin, GoCmd: "go"},
		"absolute":   {ProjectRoot: "/p", SourceDir: "/p/src", Backend: manifest.KindPlugin, GoCmd: "go"},
		"debounce":   {ProjectRoot: "/p", SourceDir: "src", Backend: manifest.KindPlugin, GoCmd: "go", Debounce: -time.Second},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, c.Normalize(), ErrInvalidConfig)
		})
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "debounce: [1, 2"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFindConfig(t *testing.T) {
	file := writeConfig(t, "source_dir: src\n")
	p, ok := FindConfig(filepath.Dir(file))
	assert.True(t, ok)
	assert.Equal(t, file, p)
	_, ok = FindConfig(t.TempDir())
	assert.False(t, ok)
}
