// Package version carries build metadata injected with -ldflags "-X".
package version

var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info returns "<version> (<commit>) built at <time>".
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}

// UserAgent is sent on every outbound request to the backend and the LLM API.
func UserAgent() string {
	return "kotoba/" + Version
}
