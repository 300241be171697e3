package loader

import (
	"strings"
	"testing"
)

func TestLocationString(t *testing.T) {
	cases := []struct {
		loc  Location
		want string
	}{
		{Location{}, "<unknown location>"},
		{Location{FilePath: "a.qbs"}, "a.qbs"},
		{Location{FilePath: "a.qbs", Line: 3, Column: 5}, "a.qbs:3:5"},
	}
	for _, c := range cases {
		if got := c.loc.String(); got != c.want {
			t.Errorf("Location{%+v}.String() = %q, want %q", c.loc, got, c.want)
		}
	}
}

func TestCycleErrorTrace(t *testing.T) {
	err := &cycleError{chain: []string{"a", "b", "a"}}
	if !strings.Contains(err.Error(), "a -> b -> a") {
		t.Errorf("Error() = %q, missing chain", err.Error())
	}
	trace := err.traceString()
	if !strings.Contains(trace, "0: a") || !strings.Contains(trace, "2: a") {
		t.Errorf("traceString() = %q, missing indexed entries", trace)
	}
}

func TestMissingDependencyErrorLocation(t *testing.T) {
	loc := Location{FilePath: "x.qbs", Line: 1}
	err := &missingDependencyError{requester: "app", name: "cpp", loc: loc}
	var l locatable = err
	if l.Location() != loc {
		t.Errorf("Location() = %v, want %v", l.Location(), loc)
	}
	if !strings.Contains(err.Error(), "cpp") || !strings.Contains(err.Error(), "app") {
		t.Errorf("Error() = %q, missing names", err.Error())
	}
}

func TestMultiplexResolutionError(t *testing.T) {
	zero := &multiplexResolutionError{name: "qt", zero: true}
	if !strings.Contains(zero.Error(), "no multiplexed variant") {
		t.Errorf("Error() = %q", zero.Error())
	}
	ambiguous := &multiplexResolutionError{name: "qt", candidates: []string{"a", "b"}}
	if !strings.Contains(ambiguous.Error(), "ambiguous") {
		t.Errorf("Error() = %q", ambiguous.Error())
	}
}

func TestIsCancelError(t *testing.T) {
	if !IsCancelError(cancelError{}) {
		t.Error("IsCancelError(cancelError{}) = false, want true")
	}
	if IsCancelError(&internalError{msg: "oops"}) {
		t.Error("IsCancelError should not match a regular error")
	}
}
