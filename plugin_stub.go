//go:build !((linux || darwin || freebsd) && cgo)

package hotreload

// PluginOpener is unsupported without cgo or on this platform.
func PluginOpener(string) Opener {
	return OpenerFunc(func(path string) (Capability, error) {
		return nil, ErrUnsupported
	})
}
