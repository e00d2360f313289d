package main

import (
	"fmt"
	"os"

	"github.com/hyqhyq3/wmtr/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
