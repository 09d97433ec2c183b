// Package buildinfo holds this build's semantic version, stamped into the
// synthesized node's user_agent_build_version.
package buildinfo

const (
	Major = 0
	Minor = 1
	Patch = 0
)

// Version is the "major.minor.patch" string form of Major, Minor and Patch.
const Version = "0.1.0"
