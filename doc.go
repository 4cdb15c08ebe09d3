/*
Package hotreload swaps the body of designated functions inside a running go process.

# Underwater

 1. The source directory of the host (a main package) is built again as a loadable artifact inside an isolated
    directory, whose go.mod is derived from the host one. Packages of the host module keep their import paths,
    so state types passed to reloadable functions are the same types on both sides.
 2. A background worker, started once by the first call of any Site, watches the source directory and rebuilds
    after every settled burst of changes. The artifact is published by rename, readers never see it half written.
 3. Every call of a Site stats the artifact, opens it when it changed, resolves the symbol and calls it. Anything
    failing on that path falls back to the body compiled into the host, with one warning logged.
 4. Loaded artifacts are never unloaded.

# Backends

  - plugin: a go plugin opened with the standard plugin package, requires cgo. Symbols are typed values, a site
    with a different signature falls back.
  - object: a relocatable object file linked at runtime by [goloader], see package object. Symbols are raw code
    entries, calling one with a different signature than compiled is undefined behaviour.

# Notes

 1. Only function bodies reload. Changing the layout of a state type needs a restart.
 2. The source directory must not hold its own go.mod.
 3. The reloader command generates host and artifact forms of functions marked with //hotreload:func.

[goloader]: https://github.com/pkujhd/goloader
*/
package hotreload
