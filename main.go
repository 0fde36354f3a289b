// The main package for the carbuzz executable.
package main

import (
	"github.com/JakeFAU/carbuzz/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
