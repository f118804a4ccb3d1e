package main

import "runtime/debug"

// appName is the application name used in version strings and logging.
const appName = "interviewd"

// gitCommit is the short git commit hash (8 chars) read from build info. Go
// 1.18+ embeds VCS info into the binary automatically, so no -ldflags are
// required at build time. Falls back to "dev" when build info is
// unavailable (e.g. `go test`, non-git builds).
var gitCommit = readGitCommit()

func readGitCommit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// fullVersion returns "interviewd/<commit>" for logging, the version
// subcommand, and the HTTP health response.
func fullVersion() string {
	return appName + "/" + gitCommit
}
