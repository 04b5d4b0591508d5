package version

// Version is the application version. Overridden at build time with
// -ldflags "-X pollenmap/pkg/version.Version=...".
var Version = "v0.3.0"
