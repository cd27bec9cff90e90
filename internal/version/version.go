// Package version holds the release version reported by the CLI.
package version

// Current is the release version without a "v" prefix.
const Current = "0.1.0"
