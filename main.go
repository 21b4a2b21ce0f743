package main

import (
	"fmt"
	"os"

	"evalconsole/presentation/terminal"
)

func main() {
	if err := terminal.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
