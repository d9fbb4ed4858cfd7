// main.go
//
// Entry point. Flags, config resolution and observer wiring live in cmd/.

package main

import (
	"github.com/binsim/binsim/cmd"
)

func main() {
	cmd.Execute()
}
