//go:build !hotreload_artifact

package main

import "github.com/ZenLiuCN/hotreload"

var Reload = hotreload.MustNew(func() hotreload.Config {
	c, err := hotreload.LoadConfig("hotreload.yaml")
	if err != nil {
		panic(err)
	}
	return c
}())
