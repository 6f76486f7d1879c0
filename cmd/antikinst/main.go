package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/smarty/antikinst/contracts"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app := newApplication(stdin)
	defer app.close()

	command := app.rootCommand()
	command.SetArgs(args)
	command.SetIn(stdin)
	command.SetOut(stdout)
	command.SetErr(stderr)
	err := command.Execute()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "[ERROR]", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, contracts.ErrPartialDeletion):
		return 2
	default:
		return 1
	}
}

var ldflagsSoftwareVersion = "debug"
