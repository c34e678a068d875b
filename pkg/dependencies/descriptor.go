package dependencies

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

// Kind is the category of environment condition a descriptor checks.
type Kind string

const (
	KindExtension Kind = "extension"
	KindFunction  Kind = "function"
	KindSetting   Kind = "setting"
	KindModule    Kind = "module"
)

// Compare selects how an actual value is matched against the expected one.
type Compare string

const (
	// CompareExact requires actual == expected.
	CompareExact Compare = "exact"
	// CompareMin requires actual >= expected.
	CompareMin Compare = "min"
)

// Descriptor declares one dependency.
type Descriptor struct {
	Kind Kind `yaml:"kind" json:"kind" validate:"required,oneof=extension function setting module"`

	// Key is the extension, function, setting or module name.
	Key string `yaml:"key" json:"key" validate:"required"`

	// Expected is the required value or minimum version. Empty means presence
	// is enough.
	Expected string `yaml:"expected,omitempty" json:"expected,omitempty"`

	// Compare defaults to min for extensions and modules and to exact for
	// settings.
	Compare Compare `yaml:"compare,omitempty" json:"compare,omitempty" validate:"omitempty,oneof=exact min"`

	// Predicate is an optional Starlark boolean expression that replaces the
	// built-in comparison. It sees key, expected, actual and present.
	Predicate string `yaml:"predicate,omitempty" json:"predicate,omitempty"`
}

// mode returns the effective comparison mode.
func (d Descriptor) mode() Compare {
	if d.Compare != "" {
		return d.Compare
	}
	if d.Kind == KindSetting {
		return CompareExact
	}
	return CompareMin
}

// want renders the expectation for diagnostics.
func (d Descriptor) want(fallback string) string {
	if d.Expected == "" {
		return fallback
	}
	if d.mode() == CompareMin {
		return ">= " + d.Expected
	}
	return d.Expected
}

// Missing describes an unmet descriptor.
type Missing struct {
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// sizePattern matches byte sizes such as 128M, 2G or 512k.
var sizePattern = regexp.MustCompile(`^\s*(\d+)\s*([kKmMgGtT])[bB]?\s*$`)

// isSize reports whether s carries a size unit suffix.
func isSize(s string) bool {
	return sizePattern.MatchString(s)
}

// parseSize converts a size with an optional unit suffix to bytes.
func parseSize(s string) (int64, error) {
	if m := sizePattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, err
		}
		shift := map[string]uint{"k": 10, "m": 20, "g": 30, "t": 40}[strings.ToLower(m[2])]
		return n << shift, nil
	}
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

// satisfies compares actual with expected under mode. Values are compared as
// byte sizes when either side carries a unit, then as versions, then as
// plain strings (exact mode only).
func satisfies(actual, expected string, mode Compare) (bool, error) {
	if isSize(actual) || isSize(expected) {
		a, errA := parseSize(actual)
		e, errE := parseSize(expected)
		if errA == nil && errE == nil {
			if mode == CompareMin {
				return a >= e, nil
			}
			return a == e, nil
		}
	}

	a, errA := version.NewVersion(actual)
	e, errE := version.NewVersion(expected)
	if errA == nil && errE == nil {
		if mode == CompareMin {
			return a.GreaterThanOrEqual(e), nil
		}
		return a.Equal(e), nil
	}

	if mode == CompareMin {
		return false, fmt.Errorf("cannot compare %q with minimum %q", actual, expected)
	}
	return actual == expected, nil
}
