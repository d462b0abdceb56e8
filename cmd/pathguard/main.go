// Package main is the entry point for the pathguard CLI.
//
// The command tree lives in internal/cli. main only wires the process
// arguments and standard streams through it and turns the result into an
// exit status:
//
//	0  success
//	1  general error
//	2  path rejected (traversal, out of bounds, symlink, too permissive)
//	3  not found (missing file, unknown root, unknown secret)
package main

import (
	"os"

	"pathguard/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
