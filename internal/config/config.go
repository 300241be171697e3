// Package config loads build parameters from a TOML project-config file,
// the on-disk counterpart of loader.SetupProjectParameters (spec §6).
// Grounded on golang-dep's registry_config.go: a small `raw*` struct
// tagged for github.com/pelletier/go-toml, unmarshaled then copied into
// the real domain type field by field.
package config

import (
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// FileName is the conventional project-config file name read from a
// build root, analogous to golang-dep's Gopkg.toml/Gopkg.reg.
const FileName = "qbs.toml"

type rawConfig struct {
	Project struct {
		FilePath          string `toml:"filePath"`
		TopLevelProfile   string `toml:"profile"`
		ConfigurationName string `toml:"configurationName"`
	} `toml:"project"`

	Build struct {
		Root                    string `toml:"root"`
		SettingsDirectory       string `toml:"settingsDirectory"`
		LibexecPath             string `toml:"libexecPath"`
		SearchPaths             []string `toml:"searchPaths"`
		FallbackProviderEnabled bool   `toml:"fallbackProviderEnabled"`
		ForceProbeExecution     bool   `toml:"forceProbeExecution"`
		DryRun                  bool   `toml:"dryRun"`
	} `toml:"build"`

	Overrides map[string]string `toml:"overrides"`
}

// Params is the subset of loader.SetupProjectParameters this package
// knows how to populate from a TOML file; the caller copies these fields
// into its own loader.SetupProjectParameters (this package doesn't import
// the root package, keeping internal/config usable standalone).
type Params struct {
	ProjectFilePath         string
	BuildRoot               string
	SettingsDirectory       string
	TopLevelProfile         string
	ConfigurationName       string
	LibexecPath             string
	SearchPaths             []string
	FallbackProviderEnabled bool
	ForceProbeExecution     bool
	DryRun                  bool
	OverriddenValues        map[string]string
}

// Load reads and parses a TOML config file at path into Params.
func Load(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return Parse(data)
}

// Parse parses TOML-encoded config data into Params, independent of disk
// access (used directly by tests with in-memory fixtures).
func Parse(data []byte) (*Params, error) {
	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse config as TOML")
	}

	p := &Params{
		ProjectFilePath:         raw.Project.FilePath,
		BuildRoot:               raw.Build.Root,
		SettingsDirectory:       raw.Build.SettingsDirectory,
		TopLevelProfile:         raw.Project.TopLevelProfile,
		ConfigurationName:       raw.Project.ConfigurationName,
		LibexecPath:             raw.Build.LibexecPath,
		SearchPaths:             raw.Build.SearchPaths,
		FallbackProviderEnabled: raw.Build.FallbackProviderEnabled,
		ForceProbeExecution:     raw.Build.ForceProbeExecution,
		DryRun:                  raw.Build.DryRun,
		OverriddenValues:        raw.Overrides,
	}
	return p, nil
}

// Write serializes p back to a TOML config file at path, the inverse of
// Load (e.g. for a `qbs config --list`-style round trip).
func Write(path string, p *Params) error {
	var raw rawConfig
	raw.Project.FilePath = p.ProjectFilePath
	raw.Project.TopLevelProfile = p.TopLevelProfile
	raw.Project.ConfigurationName = p.ConfigurationName
	raw.Build.Root = p.BuildRoot
	raw.Build.SettingsDirectory = p.SettingsDirectory
	raw.Build.LibexecPath = p.LibexecPath
	raw.Build.SearchPaths = p.SearchPaths
	raw.Build.FallbackProviderEnabled = p.FallbackProviderEnabled
	raw.Build.ForceProbeExecution = p.ForceProbeExecution
	raw.Build.DryRun = p.DryRun
	raw.Overrides = p.OverriddenValues

	out, err := toml.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config to TOML")
	}
	return os.WriteFile(path, out, 0o644)
}
