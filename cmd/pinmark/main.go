package main

import (
	"os"

	"pinmark/cmd/pinmark/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr, nil))
}
