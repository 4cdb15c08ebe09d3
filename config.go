package hotreload

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ZenLiuCN/hotreload/builder"
	"github.com/ZenLiuCN/hotreload/manifest"
	"github.com/ZenLiuCN/hotreload/watch"
)

// Config of a Runtime, loadable from a yaml file such as hotreload.yaml.
type Config struct {
	// host project root holding go.mod, default working directory
	ProjectRoot string `yaml:"project_root" validate:"required"`
	// build output root, default <project_root>/target
	TargetDir string `yaml:"target_dir"`
	// main package holding reloadable functions, relative to project_root
	SourceDir string        `yaml:"source_dir" validate:"required"`
	Backend   manifest.Kind `yaml:"backend" validate:"required,oneof=plugin object"`
	// settle window of source changes
	Debounce   time.Duration `yaml:"debounce" validate:"gte=0"`
	GoCmd      string        `yaml:"go" validate:"required"`
	BuildFlags []string      `yaml:"build_flags"`
	// ignored base name patterns of the watcher
	Ignore []string `yaml:"ignore"`
	Debug  bool     `yaml:"debug"`
}

const (
	// ConfigFile is the conventional config file name in a project root.
	ConfigFile = "hotreload.yaml"

	EnvTargetDir = "HOT_RELOAD_TARGET_DIR"
	EnvBackend   = "HOT_RELOAD_BACKEND"
	EnvDebug     = "HOT_RELOAD_DEBUG"
)

var validate = validator.New()

// DefaultConfig rooted at the working directory.
func DefaultConfig() Config {
	wd, _ := os.Getwd()
	return Config{
		ProjectRoot: wd,
		SourceDir:   "src",
		Backend:     manifest.KindPlugin,
		Debounce:    watch.DefaultWindow,
		GoCmd:       "go",
	}
}

// LoadConfig reads a yaml file over DefaultConfig, applies environment overrides and validates.
// An empty file name skips reading, leaving the working directory as project root.
func LoadConfig(file string) (c Config, err error) {
	c = DefaultConfig()
	if file != "" {
		var data []byte
		if data, err = os.ReadFile(file); err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		c.ProjectRoot = ""
		if err = yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		// the project root is relative to the config file
		if !filepath.IsAbs(c.ProjectRoot) {
			c.ProjectRoot = filepath.Join(filepath.Dir(file), c.ProjectRoot)
		}
	}
	if err = c.FromEnv(); err != nil {
		return
	}
	err = c.Normalize()
	return
}

// FromEnv applies environment overrides.
func (c *Config) FromEnv() error {
	if v := os.Getenv(EnvTargetDir); v != "" {
		c.TargetDir = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.Backend = manifest.Kind(v)
	}
	if v := os.Getenv(EnvDebug); v != "" {
		d, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvDebug, v)
		}
		c.Debug = d
	}
	return nil
}

// Normalize makes paths absolute, fills the target directory and validates.
func (c *Config) Normalize() (err error) {
	if err = validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.ProjectRoot, err = filepath.Abs(c.ProjectRoot); err != nil {
		return fmt.Errorf("%w: project root: %w", ErrInvalidConfig, err)
	}
	if c.TargetDir == "" {
		c.TargetDir = filepath.Join(c.ProjectRoot, "target")
	} else if !filepath.IsAbs(c.TargetDir) {
		c.TargetDir = filepath.Join(c.ProjectRoot, c.TargetDir)
	}
	src := filepath.Clean(c.SourceDir)
	// the linked source must be a package directory below the module root, not the module itself
	if filepath.IsAbs(src) || src == "." || src == ".." || strings.HasPrefix(src, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: source_dir %q must be a directory inside the project root", ErrInvalidConfig, c.SourceDir)
	}
	c.SourceDir = src
	if c.Debounce == 0 {
		c.Debounce = watch.DefaultWindow
	}
	return nil
}

// Layout of the configured project.
func (c Config) Layout() builder.Layout {
	return builder.Layout{
		ProjectRoot: c.ProjectRoot,
		TargetDir:   c.TargetDir,
		SourceDir:   c.SourceDir,
		Kind:        c.Backend,
	}
}

// FindConfig returns the config file of root when it exists.
func FindConfig(root string) (string, bool) {
	p := filepath.Join(root, ConfigFile)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}
