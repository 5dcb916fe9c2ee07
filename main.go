package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"slack-pr-approve/models"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitConfigError = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		reportError(stderr, err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	var cfgErr *models.ConfigError
	if errors.As(err, &cfgErr) {
		return exitConfigError
	}
	return exitFailure
}

// reportError はエラーを出力する。GitHub Actions上ではワークフローコマンドとしても出す
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
	if os.Getenv("GITHUB_ACTIONS") == "true" {
		fmt.Fprintf(os.Stdout, "::error::%s\n", err)
	}
}
