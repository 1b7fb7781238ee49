package utils

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is the release of this build.
const Version = "1.0.0"

// BannerVersion renders Version as major.minor for the startup banner.
func BannerVersion() string {
	v, err := semver.NewVersion(Version)
	if err != nil {
		return Version
	}
	return fmt.Sprintf("%d.%d", v.Major(), v.Minor())
}
