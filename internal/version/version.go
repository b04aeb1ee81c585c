// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/opsboard/realtime/internal/version.Version=1.0.0 \
//	                   -X github.com/opsboard/realtime/internal/version.Commit=$(git rev-parse --short HEAD)" ./cmd/...
package version

// Build-time variables (set via ldflags)
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// Commit is the git commit hash (short form)
	Commit = "unknown"
)

// UserAgent identifies opsboard on outbound connections.
func UserAgent() string {
	return "opsboard/" + Version + " (" + Commit + ")"
}
