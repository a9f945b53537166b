// Command ragmail indexes a policy document and answers incoming email from it.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	a := &app{}
	defer a.Close()

	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	return cmd.Execute()
}
