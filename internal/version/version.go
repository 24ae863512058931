package version

// Version is set at build time with
// -ldflags "-X github.com/edgeops/cfaudit/internal/version.Version=<tag>".
var Version = "unknown"
