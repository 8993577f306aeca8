// The main package for the censusctl executable.
package main

import (
	"github.com/JakeFAU/census-pipeline/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
