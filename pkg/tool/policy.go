// Package tool implements the sandboxed file and command tools exposed
// to a runtime adapter's execution surface: path-restricted read/write/
// edit of text files, and a bash tool that spawns a scrubbed-environment
// child process under an allowlisted command profile.
package tool

// BashProfile selects one of the three fixed command allowlists.
type BashProfile int

const (
	// ProfilePermissive allows any executable (empty allowlist).
	ProfilePermissive BashProfile = iota
	// ProfileBalanced allows a developer-toolchain-shaped set of commands.
	ProfileBalanced
	// ProfileStrict allows only read-only inspection commands.
	ProfileStrict
)

func (p BashProfile) String() string {
	switch p {
	case ProfilePermissive:
		return "permissive"
	case ProfileBalanced:
		return "balanced"
	case ProfileStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// balancedCommandAllowlist substitutes Go tooling for the original's Rust
// toolchain entries (cargo/rustc/rustup -> go/gofmt/goimports), since this
// is a Go agent runtime.
var balancedCommandAllowlist = []string{
	"cat", "cp", "cut", "du", "echo", "env", "find", "git", "go", "gofmt",
	"goimports", "grep", "head", "ls", "make", "mkdir", "mv", "printf",
	"pwd", "rm", "sed", "sleep", "sort", "stat", "tail", "touch", "tr",
	"uniq", "wc",
}

// strictCommandAllowlist keeps the same read-only-inspection intent as
// the original.
var strictCommandAllowlist = []string{
	"cat", "cut", "du", "echo", "env", "find", "git", "grep", "head", "ls",
	"printf", "pwd", "sort", "stat", "tail", "tr", "uniq", "wc",
}

// safeBashEnvVars is the fixed environment whitelist passed through to
// the spawned child process.
var safeBashEnvVars = []string{
	"PATH", "HOME", "USER", "SHELL", "LANG", "LC_ALL", "LC_CTYPE", "TERM",
	"TMPDIR", "TMP", "TEMP", "TZ",
}

// Policy is the enumerated set of sandboxing knobs governing every tool
// call.
type Policy struct {
	AllowedRoots          []string
	MaxFileReadBytes      int64
	MaxCommandOutputBytes int
	BashTimeoutMs         int64
	MaxCommandLength      int
	AllowCommandNewlines  bool
	BashProfile           BashProfile
	AllowedCommands       []string
}

// NewPolicy builds a Policy with the original's defaults: balanced
// profile, 1MB file reads, 16000-byte command output, 120s timeout,
// 4096-char commands, no multiline commands.
func NewPolicy(allowedRoots []string) Policy {
	p := Policy{
		AllowedRoots:          allowedRoots,
		MaxFileReadBytes:      1_000_000,
		MaxCommandOutputBytes: 16_000,
		BashTimeoutMs:         120_000,
		MaxCommandLength:      4_096,
		AllowCommandNewlines:  false,
	}
	p.SetBashProfile(ProfileBalanced)
	return p
}

// SetBashProfile sets the profile and recomputes AllowedCommands.
func (p *Policy) SetBashProfile(profile BashProfile) {
	p.BashProfile = profile
	switch profile {
	case ProfilePermissive:
		p.AllowedCommands = nil
	case ProfileStrict:
		p.AllowedCommands = append([]string(nil), strictCommandAllowlist...)
	default:
		p.AllowedCommands = append([]string(nil), balancedCommandAllowlist...)
	}
}
