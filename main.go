// The main package for the collector executable.
package main

import (
	"github.com/redlens/collector/cmd"
)

func main() {
	cmd.Execute()
}
