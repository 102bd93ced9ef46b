package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Version returns the module version or "dev" when unset.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return "dev"
	}
	version := info.Main.Version
	if version == "" || version == "(devel)" {
		return "dev"
	}
	return version
}

// Revision returns the VCS revision recorded at compile time, abbreviated.
func Revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			rev := setting.Value
			if len(rev) > 12 {
				rev = rev[:12]
			}
			return rev
		}
	}
	return ""
}

// VersionWithRevision returns the version string plus the build revision if
// present.
func VersionWithRevision() string {
	version := Version()
	rev := Revision()
	if rev == "" {
		return version
	}
	return fmt.Sprintf("%s (%s)", version, rev)
}
