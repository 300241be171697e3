package main

import (
	"flag"
	"fmt"
	"io"
)

// loaderCLIVersion tracks this driver, not the library's module version
// (the library has no version constant of its own to report here).
const loaderCLIVersion = "0.1.0"

type versionCommand struct{}

func (c *versionCommand) Name() string      { return "version" }
func (c *versionCommand) Args() string      { return "" }
func (c *versionCommand) ShortHelp() string { return "print the qbsloader driver version" }
func (c *versionCommand) Register(fs *flag.FlagSet) {}

func (c *versionCommand) Run(stdout io.Writer, args []string) error {
	fmt.Fprintln(stdout, "qbsloader", loaderCLIVersion)
	return nil
}
