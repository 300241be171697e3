package loader

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrorMode controls how the loader reacts to recoverable problems (spec
// §6 SetupProjectParameters.productErrorMode / deprecationWarningMode).
type ErrorMode uint8

const (
	ErrorModeRelaxed ErrorMode = iota
	ErrorModeStrict
)

// SetupProjectParameters mirrors spec §6's record of the same name: the
// full set of build parameters a caller supplies to start a load. Grounded
// on reference/gps-core/solver.go's SolveParameters (a flat struct of
// loader inputs validated once by Prepare()).
type SetupProjectParameters struct {
	ProjectFilePath string
	BuildRoot       string
	SettingsDirectory string
	TopLevelProfile string
	ConfigurationName string

	// OverriddenValues is the flat dotted-key override map (spec §6
	// "Override string syntax").
	OverriddenValues map[string]string

	// OverriddenValuesTree is the same data, pre-structured by the caller
	// (e.g. parsed straight out of a TOML/JSON file via internal/config).
	OverriddenValuesTree map[string]interface{}

	DeprecationWarningMode ErrorMode
	ProductErrorMode       ErrorMode

	LogElapsedTime bool
	DryRun         bool

	FallbackProviderEnabled bool
	ForceProbeExecution     bool

	LibexecPath string
	SearchPaths []string
}

// Validate performs the checks Prepare() would (spec: "Prepare() validates
// these, so by the time we have a solver instance, we know they're
// valid" — reference/gps-core/solver.go). Collects every problem rather
// than stopping at the first, the way solver.go's override-validation
// loop does for its `eovr` slice.
func (p *SetupProjectParameters) Validate() error {
	var problems []string
	if p.ProjectFilePath == "" {
		problems = append(problems, "projectFilePath must be non-empty")
	}
	if p.BuildRoot == "" {
		problems = append(problems, "buildRoot must be non-empty")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.Errorf("invalid SetupProjectParameters: %s", strings.Join(problems, "; "))
}

// ProfileOrDefault returns TopLevelProfile, or "none" if it's empty
// (SPEC_FULL.md "Supplemented features": default-profile resolution).
func (p *SetupProjectParameters) ProfileOrDefault() string {
	if p.TopLevelProfile == "" {
		return "none"
	}
	return p.TopLevelProfile
}

// overrideTarget is the parsed, classified form of one override key (spec
// §6 "Override string syntax").
type overrideTarget struct {
	kind     overrideKind
	project  string
	product  string
	module   string
	provider string
	property string
}

type overrideKind uint8

const (
	overrideProject overrideKind = iota
	overrideProduct
	overrideModule
	overrideProductModule
	overrideModuleProvider
	overrideQbsShorthand
)

// parseOverrideKey classifies a single dotted override key per spec §6.
// Grounded on reference/dep-cli/manifest.go's toProps: turn a loosely
// typed string into a validated domain value, surfacing one clear error
// for anything that doesn't fit a known shape.
func parseOverrideKey(key string) (overrideTarget, error) {
	segs := strings.Split(key, ".")
	switch {
	case len(segs) >= 3 && segs[0] == "projects":
		return overrideTarget{kind: overrideProject, project: segs[1], property: strings.Join(segs[2:], ".")}, nil
	case len(segs) >= 4 && segs[0] == "products":
		// products.<name>.<module>.<prop...>
		return overrideTarget{kind: overrideProductModule, product: segs[1], module: segs[2], property: strings.Join(segs[3:], ".")}, nil
	case len(segs) >= 3 && segs[0] == "products":
		return overrideTarget{kind: overrideProduct, product: segs[1], property: strings.Join(segs[2:], ".")}, nil
	case len(segs) >= 3 && segs[0] == "modules":
		return overrideTarget{kind: overrideModule, module: segs[1], property: strings.Join(segs[2:], ".")}, nil
	case len(segs) >= 3 && segs[0] == "moduleProviders":
		return overrideTarget{kind: overrideModuleProvider, provider: segs[1], property: strings.Join(segs[2:], ".")}, nil
	case len(segs) >= 2 && segs[0] == "qbs":
		return overrideTarget{kind: overrideQbsShorthand, module: "qbs", property: strings.Join(segs[1:], ".")}, nil
	default:
		return overrideTarget{}, &overrideError{key: key}
	}
}

// splitModuleProperty splits a "module.property" style flat key in two;
// used by the fallback Profiles implementation.
func splitModuleProperty(key string) (module, property string, ok bool) {
	i := strings.IndexByte(key, '.')
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}
