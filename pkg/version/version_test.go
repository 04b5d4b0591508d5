package version

import (
	"regexp"
	"testing"
)

func TestVersion(t *testing.T) {
	semver := regexp.MustCompile(`^v\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)
	if !semver.MatchString(Version) {
		t.Errorf("Version = %q, want vMAJOR.MINOR.PATCH", Version)
	}
}
