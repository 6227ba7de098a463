package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const constraintLogPrefix = "semver:constraint"

// SupportedAPIVersions is the range of protocol versions this module speaks.
const SupportedAPIVersions = ">=1.0.0, <3.0.0"

// CheckAPIVersion returns an error if tag is not within SupportedAPIVersions.
func CheckAPIVersion(tag string) error {
	v, err := ParseAPIVersion(tag)
	if err != nil {
		return err
	}
	c, err := masterminds.NewConstraint(SupportedAPIVersions)
	if err != nil {
		return fmt.Errorf("%s - invalid constraint: %w", constraintLogPrefix, err)
	}
	if ok, errs := c.Validate(v); !ok {
		return fmt.Errorf("%s - API version %s not supported (%s): %v", constraintLogPrefix, tag, SupportedAPIVersions, errs)
	}
	return nil
}
