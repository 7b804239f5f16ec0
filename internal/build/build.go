// Package build carries values stamped in at link time.
package build

// Set with -ldflags "-X github.com/drummonds/dtools/internal/build.Version=..."
var (
	Version   = "dev"
	BuildDate = ""
)
