// Command gateway is the entry point for the AI gateway binary.
package main

import (
	"os"

	"github.com/gateway/multiapi/cmd/gateway/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
