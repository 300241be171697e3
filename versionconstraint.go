package loader

import (
	"fmt"

	"github.com/Masterminds/semver"
)

// VersionConstraint restricts the acceptable version range of a dependency,
// backing a Depends item's `versionAtLeast`/`versionBelow` properties
// (spec §4.I). Grounded directly on reference/gps-core/constraints.go's
// Constraint interface, narrowed to the one shape this loader needs: a
// closed range rather than a general boolean-expression constraint
// language, since qbs versions are plain dotted triplets rather than a
// full semver/pre-release grammar.
type VersionConstraint struct {
	atLeast *semver.Version
	below   *semver.Version
}

// AnyVersion is the zero-value constraint: it matches every version.
var AnyVersion = VersionConstraint{}

// NewVersionConstraint builds a VersionConstraint from the optional
// "at least" / "below" bound strings a Depends item may specify. An empty
// string leaves that bound open.
func NewVersionConstraint(atLeast, below string) (VersionConstraint, error) {
	var vc VersionConstraint
	if atLeast != "" {
		v, err := semver.NewVersion(atLeast)
		if err != nil {
			return vc, fmt.Errorf("versionAtLeast %q: %v", atLeast, err)
		}
		vc.atLeast = v
	}
	if below != "" {
		v, err := semver.NewVersion(below)
		if err != nil {
			return vc, fmt.Errorf("versionBelow %q: %v", below, err)
		}
		vc.below = v
	}
	return vc, nil
}

// Matches reports whether version satisfies the constraint.
func (vc VersionConstraint) Matches(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		// An unparsable module version can't be judged against a semver
		// bound; per spec this loader doesn't invent a version grammar of
		// its own, so fail open only when no bound was actually requested.
		return vc.atLeast == nil && vc.below == nil
	}
	if vc.atLeast != nil && v.LessThan(vc.atLeast) {
		return false
	}
	if vc.below != nil && !v.LessThan(vc.below) {
		return false
	}
	return true
}

// IsAny reports whether vc places no restriction at all.
func (vc VersionConstraint) IsAny() bool {
	return vc.atLeast == nil && vc.below == nil
}

func (vc VersionConstraint) String() string {
	switch {
	case vc.atLeast != nil && vc.below != nil:
		return fmt.Sprintf("[%s,%s)", vc.atLeast, vc.below)
	case vc.atLeast != nil:
		return fmt.Sprintf(">=%s", vc.atLeast)
	case vc.below != nil:
		return fmt.Sprintf("<%s", vc.below)
	default:
		return "*"
	}
}
