// Package version reports the navi build version.
package version

// version is stamped by release builds:
// -ldflags "-X navi/internal/version.version=v1.2.3".
var version = "dev" //nolint:gochecknoglobals // ldflags needs a package-level var

// String returns the version baked into this binary.
func String() string {
	return version
}
