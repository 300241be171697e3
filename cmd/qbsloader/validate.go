package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/qbs-loader/loader"
	"github.com/qbs-loader/loader/internal/config"
)

type validateCommand struct {
	configPath string
}

func (c *validateCommand) Name() string      { return "validate" }
func (c *validateCommand) Args() string      { return "[-config qbs.toml]" }
func (c *validateCommand) ShortHelp() string { return "parse and validate a project config file" }

func (c *validateCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", config.FileName, "path to the project config file")
}

func (c *validateCommand) Run(stdout io.Writer, args []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	params := loader.SetupProjectParameters{
		ProjectFilePath:         cfg.ProjectFilePath,
		BuildRoot:               cfg.BuildRoot,
		SettingsDirectory:       cfg.SettingsDirectory,
		TopLevelProfile:         cfg.TopLevelProfile,
		ConfigurationName:       cfg.ConfigurationName,
		OverriddenValues:        cfg.OverriddenValues,
		LibexecPath:             cfg.LibexecPath,
		SearchPaths:             cfg.SearchPaths,
		FallbackProviderEnabled: cfg.FallbackProviderEnabled,
		ForceProbeExecution:     cfg.ForceProbeExecution,
		DryRun:                  cfg.DryRun,
	}

	if err := params.Validate(); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "config OK: project=%s buildRoot=%s profile=%s\n",
		params.ProjectFilePath, params.BuildRoot, params.ProfileOrDefault())
	return nil
}
