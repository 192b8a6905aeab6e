// The main package for the spiders executable.
package main

import (
	"github.com/zhidu-qidian/Spiders/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
