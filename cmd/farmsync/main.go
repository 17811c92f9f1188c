package main

import (
	"os"
)

func main() {
	// Styled help needs every command registered first
	initHelp(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		outputError(os.Stderr, err)
		os.Exit(1)
	}
}
