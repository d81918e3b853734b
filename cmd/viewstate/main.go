// Command viewstate inspects and edits viewer preferences, scalar settings
// and persisted state from the terminal.
package main

import (
	"fmt"
	"os"
)

func main() {
	cli := newApp(os.Stdout)
	err := cli.command().Execute()
	cli.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
