// Package semver parses and checks the protocol version tag an instance announces to the
// GUI ("v1", "v2", "2.1.0", ...).
package semver

import (
	"fmt"
	"regexp"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:parser"

var (
	majorOnlyRegex  = regexp.MustCompile(`^\d+$`)
	majorMinorRegex = regexp.MustCompile(`^\d+\.\d+$`)
)

// ParseAPIVersion parses a version tag. A leading "v" is optional and missing minor or
// patch components default to zero.
func ParseAPIVersion(tag string) (*masterminds.Version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(tag), "v")
	if raw == "" {
		return nil, fmt.Errorf("%s - empty API version", logPrefix)
	}
	switch {
	case majorOnlyRegex.MatchString(raw):
		raw += ".0.0"
	case majorMinorRegex.MatchString(raw):
		raw += ".0"
	}
	v, err := masterminds.StrictNewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid API version %q: %w", logPrefix, tag, err)
	}
	return v, nil
}

// NormalizeAPIVersion returns the "v<major>" form the GUI expects.
func NormalizeAPIVersion(tag string) (string, error) {
	v, err := ParseAPIVersion(tag)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("v%d", v.Major()), nil
}
