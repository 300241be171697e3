// Command qbsloader is a small driver around the loader library: it
// parses a qbs.toml project config, validates it, and reports the
// resulting SetupProjectParameters. It does not perform a load itself,
// since that requires an Evaluator, ItemReader and Profiles supplied by
// the embedding tool (spec.md Non-goals: those three collaborators, and
// configuration CLIs generally, are out of scope for this package).
// Grounded on golang-dep/cmd/dep/main.go's hand-rolled flag.FlagSet
// subcommand dispatch.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
)

type command interface {
	Name() string
	Args() string
	ShortHelp() string
	Register(*flag.FlagSet)
	Run(stdout io.Writer, args []string) error
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) (exitCode int) {
	commands := []command{
		&validateCommand{},
		&versionCommand{},
	}

	errLogger := log.New(stderr, "", 0)

	usage := func() {
		errLogger.Println("qbsloader drives the loader library from the command line")
		errLogger.Println()
		errLogger.Println("Usage: qbsloader <command> [flags]")
		errLogger.Println()
		errLogger.Println("Commands:")
		errLogger.Println()
		w := tabwriter.NewWriter(stderr, 0, 4, 2, ' ', 0)
		for _, cmd := range commands {
			fmt.Fprintf(w, "\t%s\t%s\n", cmd.Name(), cmd.ShortHelp())
		}
		w.Flush()
	}

	if len(args) < 2 || strings.ToLower(args[1]) == "-h" || strings.ToLower(args[1]) == "help" {
		usage()
		return 1
	}

	cmdName := args[1]
	for _, cmd := range commands {
		if cmd.Name() != cmdName {
			continue
		}
		fs := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		fs.SetOutput(stderr)
		cmd.Register(fs)
		fs.Usage = func() {
			errLogger.Printf("Usage: qbsloader %s %s\n", cmdName, cmd.Args())
		}
		if err := fs.Parse(args[2:]); err != nil {
			return 1
		}
		if err := cmd.Run(stdout, fs.Args()); err != nil {
			errLogger.Printf("qbsloader %s: %v\n", cmdName, err)
			return 1
		}
		return 0
	}

	errLogger.Printf("qbsloader: %s: no such command\n", cmdName)
	usage()
	return 1
}
