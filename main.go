// Package main is the entry point for the udptrain probe sender and collector.
package main

import (
	"os"

	"firestige.xyz/udptrain/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
