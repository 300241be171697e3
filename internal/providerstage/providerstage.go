// Package providerstage stages a module provider's generated search-path
// output atomically: the provider's evaluateOutputs script writes into a
// scratch directory, and Commit only makes it visible under its final name
// once the write has fully succeeded, so a crash or cancellation mid-run
// never leaves a half-written search path for a later load to pick up
// (spec §4.E "Execution"). Grounded on golang-dep's vcs_source.go
// exportVersionTo/project_manager.go, the two call sites that stage a
// tree via github.com/termie/go-shutil before it becomes the real output.
package providerstage

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/termie/go-shutil"
)

// ignoreVCSDirs mirrors golang-dep's CopyTreeOptions.Ignore: provider
// output trees are plain generated files, but a provider script is free to
// shell out to a VCS-backed generator, so the same directories are kept
// out of the staged copy.
func ignoreVCSDirs(src string, contents []os.FileInfo) []string {
	var ignore []string
	for _, fi := range contents {
		if !fi.IsDir() {
			continue
		}
		switch fi.Name() {
		case "vendor", ".bzr", ".svn", ".hg", ".git":
			ignore = append(ignore, fi.Name())
		}
	}
	return ignore
}

// Stage returns a scratch directory under outDir's parent that the caller
// should populate, plus a Commit function that atomically publishes it (or
// a tree copied into it) as outDir.
func Stage(outDir string) (scratchDir string, commit func() error, err error) {
	parent := filepath.Dir(outDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", nil, errors.Wrapf(err, "failed to create %s", parent)
	}
	scratchDir = outDir + ".staging"
	if err := os.RemoveAll(scratchDir); err != nil {
		return "", nil, errors.Wrapf(err, "failed to clear stale staging directory %s", scratchDir)
	}
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return "", nil, errors.Wrapf(err, "failed to create staging directory %s", scratchDir)
	}

	commit = func() error {
		if err := os.RemoveAll(outDir); err != nil {
			return errors.Wrapf(err, "failed to clear previous output %s", outDir)
		}
		if err := os.Rename(scratchDir, outDir); err != nil {
			return errors.Wrapf(err, "failed to publish staged output %s", outDir)
		}
		return nil
	}
	return scratchDir, commit, nil
}

// CopyTreeInto stages a copy of src (e.g. a provider's template-generated
// module tree) into dst, preserving symlinks and skipping VCS metadata
// directories. dst is removed before the copy starts, so a failed copy
// leaves dst missing or partially populated.
func CopyTreeInto(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return errors.Wrapf(err, "failed to clear %s before staged copy", dst)
	}
	cfg := &shutil.CopyTreeOptions{
		Symlinks:     true,
		CopyFunction: shutil.Copy,
		Ignore:       ignoreVCSDirs,
	}
	if err := shutil.CopyTree(src, dst, cfg); err != nil {
		return errors.Wrapf(err, "failed to copy %s to %s", src, dst)
	}
	return nil
}
