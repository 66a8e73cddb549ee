package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tonimelisma/portal-go/internal/portal"
)

// exitAuthFailed is the exit status when the session had to be discarded.
const exitAuthFailed = 3

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, portal.ErrAuthenticationFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\nYour session has ended. Run 'portal-go login' to log in again.\n", err)
			os.Exit(exitAuthFailed)
		}

		exitOnError(err)
	}
}
