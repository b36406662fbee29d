// Command larpctl administers a campaign store: schema migrations, credential
// dumps and a few staff actions that are handy from a shell.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
