// Package main provides the flashattn command-line tool.
package main

import (
	"fmt"
	"os"

	"github.com/tessellate-ml/flashattn"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("flashattn %s\n", version)
		return
	}

	fmt.Println("flashattn - variable-length flash-attention adapter")
	fmt.Printf("Version: %s\n\n", version)

	ops := flashattn.Ops()
	if len(ops) == 0 {
		fmt.Println("Registered operations: none (no backend linked)")
	} else {
		fmt.Println("Registered operations:")
		for _, op := range ops {
			fmt.Printf("  %s\n", op)
		}
	}
	fmt.Println("\nCommands:")
	fmt.Println("  version    Show version")
}
