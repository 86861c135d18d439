// Package version carries build identity, stamped via -ldflags at
// release time.
package version

var (
	// Version is the overlay.studio release version.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String returns the one-line build identity for logs and the API.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
