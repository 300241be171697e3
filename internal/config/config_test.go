package config

import (
	"path/filepath"
	"testing"
)

const sampleTOML = `
[project]
filePath = "project.qbs"
profile = "release"
configurationName = "release"

[build]
root = "/tmp/build"
searchPaths = ["/opt/qbs/share"]
fallbackProviderEnabled = true

[overrides]
"qbs.architecture" = "x86_64"
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(sampleTOML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.ProjectFilePath != "project.qbs" {
		t.Errorf("ProjectFilePath = %q", p.ProjectFilePath)
	}
	if p.BuildRoot != "/tmp/build" {
		t.Errorf("BuildRoot = %q", p.BuildRoot)
	}
	if p.TopLevelProfile != "release" {
		t.Errorf("TopLevelProfile = %q", p.TopLevelProfile)
	}
	if !p.FallbackProviderEnabled {
		t.Error("FallbackProviderEnabled should be true")
	}
	if len(p.SearchPaths) != 1 || p.SearchPaths[0] != "/opt/qbs/share" {
		t.Errorf("SearchPaths = %v", p.SearchPaths)
	}
	if p.OverriddenValues["qbs.architecture"] != "x86_64" {
		t.Errorf("OverriddenValues = %v", p.OverriddenValues)
	}
}

func TestParseInvalidTOML(t *testing.T) {
	if _, err := Parse([]byte("this is not [ valid toml")); err == nil {
		t.Error("expected an error for malformed TOML")
	}
}

func TestLoadRoundTripsThroughWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	original := &Params{
		ProjectFilePath:   "p.qbs",
		BuildRoot:         "/build",
		TopLevelProfile:   "debug",
		ConfigurationName: "debug",
		SearchPaths:       []string{"/a", "/b"},
		OverriddenValues:  map[string]string{"modules.cpp.cxxLanguageVersion": "c++17"},
	}

	if err := Write(path, original); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ProjectFilePath != original.ProjectFilePath || loaded.BuildRoot != original.BuildRoot {
		t.Errorf("Load after Write = %+v, want fields matching %+v", loaded, original)
	}
	if len(loaded.SearchPaths) != 2 {
		t.Errorf("SearchPaths = %v", loaded.SearchPaths)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected an error loading a nonexistent config file")
	}
}
