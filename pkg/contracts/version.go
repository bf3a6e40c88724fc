package contracts

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// supportedVersions is the receipt version range this implementation can
// verify. V1 ("1.x") receipts parse but are legacy; anything at or above
// 3.0.0 is from a future incompatible format.
var supportedVersions = mustConstraint(">= 1.0.0, < 3.0.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// CheckVersion validates a receipt's version field against the supported
// range. Loose forms like "1.0" are accepted (semver coercion).
func CheckVersion(version string) error {
	if version == "" {
		return fmt.Errorf("contracts: receipt version missing")
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("contracts: invalid receipt version %q: %w", version, err)
	}
	if !supportedVersions.Check(v) {
		return fmt.Errorf("contracts: unsupported receipt version %q (supported %s)", version, supportedVersions)
	}
	return nil
}
