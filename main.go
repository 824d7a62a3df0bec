package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/tonimelisma/widgetctl/internal/api"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	printError(os.Stderr, err)
	os.Exit(1)
}

func printError(w io.Writer, err error) {
	color.New(color.FgRed).Fprint(w, "Error: ")
	fmt.Fprintf(w, "%v\n", err)

	if errors.Is(err, api.ErrNotLoggedIn) || errors.Is(err, api.ErrSessionExpired) {
		fmt.Fprintln(w, "Run 'widgetctl login' to sign in.")
	}
}
