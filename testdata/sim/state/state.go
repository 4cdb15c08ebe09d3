// Package state holds the data shared by the host and the reloaded functions.
package state

type World struct {
	Tick  int
	Y     float64
	Speed float64
}
