// Package main is the entry point for the rocev2 tool.
package main

import (
	"os"

	"firestige.xyz/rocev2/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
