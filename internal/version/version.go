// Package version holds build-time variables injected by goreleaser ldflags.
package version

// These vars are overwritten at link time:
//   -X github.com/callvault/callvault/internal/version.Version=v1.2.3
//   -X github.com/callvault/callvault/internal/version.Commit=abc1234
//   -X github.com/callvault/callvault/internal/version.Date=2026-08-27T00:00:00Z
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
