//go:build (linux || darwin || freebsd) && cgo

package hotreload

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"plugin"

	"github.com/ZenLiuCN/hotreload/builder"
)

type (
	pluginOpener struct {
		shadow string
	}
	pluginCapability struct {
		path   string
		shadow string
		p      *plugin.Plugin
	}
)

// PluginOpener loads go plugins. The runtime caches plugins by path, so every distinct artifact content
// is opened from its own copy under shadowDir.
func PluginOpener(shadowDir string) Opener {
	return &pluginOpener{shadow: shadowDir}
}

func (o *pluginOpener) Open(path string) (Capability, error) {
	sum, err := Digest(path)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(o.shadow, 0o755); err != nil {
		return nil, err
	}
	shadow := filepath.Join(o.shadow, builder.ShadowName(path, sum[:16]))
	if _, err = os.Stat(shadow); errors.Is(err, fs.ErrNotExist) {
		tmp := shadow + ".tmp"
		if err = builder.CopyFile(path, tmp, nil); err != nil {
			return nil, fmt.Errorf("shadow copy: %w", err)
		}
		if err = os.Rename(tmp, shadow); err != nil {
			return nil, fmt.Errorf("shadow copy: %w", err)
		}
	} else if err != nil {
		return nil, err
	}
	p, err := plugin.Open(shadow)
	if err != nil {
		return nil, err
	}
	return &pluginCapability{path: path, shadow: shadow, p: p}, nil
}

func (c *pluginCapability) Path() string {
	return c.path
}

func (c *pluginCapability) Lookup(name string) (Symbol, error) {
	v, err := c.p.Lookup(name)
	if err != nil {
		return Symbol{}, fmt.Errorf("%w: %s", ErrMissingSymbol, name)
	}
	return ValueSymbol(name, v), nil
}

// Symbols can not be enumerated from a go plugin.
func (c *pluginCapability) Symbols() []string {
	return nil
}
