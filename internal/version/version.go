// Package version contains the gamenet-harness version.
package version

// Version is the version of this harness. Overridden at build time
// via the -ldflags mechanism.
var Version = "3.0.0-dev"
