//go:build ignore

package main

import "example.com/sim/state"

// Step advances the world by dt.
//
//hotreload:func
func Step(w *state.World, dt float64) {
	w.Tick++
	w.Y -= w.Speed * dt
}
