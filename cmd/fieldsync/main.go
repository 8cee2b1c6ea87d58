package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"fieldsync/internal/cli"
)

func main() {
	// Secrets referenced by config.yaml placeholders may live in a .env file.
	_ = godotenv.Load()

	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
