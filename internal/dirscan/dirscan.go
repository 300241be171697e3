// Package dirscan enumerates search-path directories for the Module
// Loader and Module Provider Loader (spec §4.F, §4.E), backed by
// github.com/karrick/godirwalk for the directory listing golang-dep's own
// ItemReader default implementation does not provide (this loader's core
// never touches the filesystem itself; dirscan is reference plumbing for
// an ItemReader.FindDirectoryEntries implementation).
package dirscan

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// ListDir returns the immediate entries of dir (non-recursive), sorted
// lexically, or an empty slice if dir doesn't exist.
func ListDir(dir string) ([]string, error) {
	var names []string
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if osPathname == dir {
				return nil
			}
			names = append(names, osPathname)
			if de.ModeType().IsDir() {
				return filepath.SkipDir
			}
			return nil
		},
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to list directory %s", dir)
	}
	sort.Strings(names)
	return names, nil
}

// FindBuildLanguageFiles recursively finds every file under dir carrying
// one of the given extensions (e.g. ".qbs"), used to enumerate candidate
// module files within a `modules/<segments>` directory (spec §4.F).
func FindBuildLanguageFiles(dir string, extensions []string) ([]string, error) {
	extSet := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		extSet[e] = struct{}{}
	}

	var files []string
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.ModeType().IsDir() {
				return nil
			}
			if _, ok := extSet[filepath.Ext(osPathname)]; ok {
				files = append(files, osPathname)
			}
			return nil
		},
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to scan directory %s", dir)
	}
	sort.Strings(files)
	return files, nil
}
