// The main package for the guidecrawler executable.
package main

import (
	"github.com/JakeFAU/guidecrawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
