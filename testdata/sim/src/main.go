package main

import (
	"fmt"
	"time"

	"example.com/sim/state"
)

func main() {
	w := &state.World{Y: 100, Speed: 1}
	for range time.Tick(time.Second) {
		Step(w, 1)
		fmt.Printf("tick %d y %.2f\n", w.Tick, w.Y)
	}
}
