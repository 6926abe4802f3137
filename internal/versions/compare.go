package versions

import "github.com/Masterminds/semver/v3"

// IsNewerVersion reports whether candidate is a later release than current.
// A candidate that is not a semantic version (a development build, "build-<commit>") is never
// newer. Any release is newer than a development build, since commits carry no order.
func IsNewerVersion(candidate, current string) bool {
	c, err := semver.NewVersion(candidate)
	if err != nil {
		return false
	}
	cur, err := semver.NewVersion(current)
	if err != nil {
		return true
	}
	return c.GreaterThan(cur)
}
