// Package buildinfo exposes compile-time metadata for the storefront binary.
package buildinfo

// Overridden via -ldflags "-X" in release builds.
var (
	// Version is the semantic version or git describe output of the binary.
	Version = "dev"

	// Commit is the git commit SHA baked into the binary.
	Commit = "none"

	// BuildDate records when the binary was built in UTC.
	BuildDate = "unknown"
)

// UserAgent is sent on every request to the hosted platform.
func UserAgent() string {
	return "lojinha-storefront/" + Version
}
