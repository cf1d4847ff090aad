package buildinfo

import "fmt"

// Filled in by -ldflags at build time.
var (
	// GitCommit is the git commit hash.
	GitCommit = "n/a"
	// GitBranch is the git branch.
	GitBranch = "n/a"
	// GitState is whether the working tree was clean or dirty.
	GitState = "n/a"
	// GitSummary is the output of git describe.
	GitSummary = "n/a"
	// BuildDate is the build date.
	BuildDate = "n/a"
	// Version is the semantic version.
	Version = "git"
)

// Summary returns a summary of all build info.
func Summary() string {
	return fmt.Sprintf(
		"auctiond version %s\n\tbuild date: %s\n\tgit summary: %s\n\tgit branch: %s\n\tgit commit: %s\n\tgit state: %s",
		Version, BuildDate, GitSummary, GitBranch, GitCommit, GitState)
}
