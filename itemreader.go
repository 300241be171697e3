package loader

// ItemReader is the external capability (spec §1, §6) that parses a
// project source file into an Item tree, caches ASTs, and enforces
// no-cycle-on-import. The core never parses source text itself.
type ItemReader interface {
	// ReadFile parses path into an Item tree, using cached results where
	// available.
	ReadFile(path string) (*Item, error)

	// FindDirectoryEntries lists the immediate entries of dir, used by the
	// Module Loader and Module Provider Loader to enumerate build-language
	// files on a search path. internal/dirscan (godirwalk-backed) is
	// available for implementations that read a real filesystem; this
	// package only depends on the interface.
	FindDirectoryEntries(dir string) ([]string, error)

	// SetUpItemFromFile parses path (recording referencingLocation as the
	// importing site, for cycle diagnostics) and returns its root Item.
	SetUpItemFromFile(path string, referencingLocation Location) (*Item, error)

	// WrapInProjectIfNecessary ensures the given root item is a Project
	// item, synthesizing a wrapper if the file described a bare Product.
	WrapInProjectIfNecessary(root *Item) *Item

	// PushExtraSearchPaths / PopExtraSearchPaths manage a stack of
	// additional search paths that nested reads should honor (e.g. a
	// subproject pulling in sibling search paths).
	PushExtraSearchPaths(paths []string)
	PopExtraSearchPaths()

	// AllSearchPaths returns the currently active, flattened search path
	// list (explicit + pushed extras), in priority order.
	AllSearchPaths() []string
}
