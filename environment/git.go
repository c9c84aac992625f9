package environment

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// Git runs the git CLI with fixed argument lists and returns stdout.
// Implementations may fail freely; the resolver treats any error as
// "no data".
type Git interface {
	Run(args ...string) (string, error)
}

// GitFunc adapts a plain function to the Git interface.
type GitFunc func(args ...string) (string, error)

// Run calls f.
func (f GitFunc) Run(args ...string) (string, error) { return f(args...) }

// DefaultGitTimeout bounds a single git invocation.
const DefaultGitTimeout = 5 * time.Second

// ExecGit shells out to the git binary on PATH.
type ExecGit struct {
	// Dir is the working directory for git. Empty uses the process cwd.
	Dir string
	// Timeout bounds each invocation (default DefaultGitTimeout).
	Timeout time.Duration
}

// Run executes git with args. Stderr is captured separately and included
// in the error on failure.
func (g ExecGit) Run(args ...string) (string, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultGitTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", args...)
	command.Dir = g.Dir
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w (stderr: %s)",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// maxRefLength bounds refs passed to `git show`.
const maxRefLength = 100

// refPattern is the allow-list for refs passed to `git show`: hex SHAs,
// HEAD, and caret ancestry such as HEAD^. Anything else never reaches
// the shell.
var refPattern = regexp.MustCompile(`^[0-9a-zA-Z^]+$`)

// ValidRef reports whether ref may be passed to git.
func ValidRef(ref string) bool {
	return len(ref) <= maxRefLength && refPattern.MatchString(ref)
}

// commitFormat is the `git show --format` template. COMMIT_MESSAGE must
// stay last: the message may span lines and is parsed to end of output.
var commitFormat = strings.Join([]string{
	"COMMIT_SHA:%H",
	"AUTHOR_NAME:%an",
	"AUTHOR_EMAIL:%ae",
	"COMMITTER_NAME:%cn",
	"COMMITTER_EMAIL:%ce",
	"COMMITTED_DATE:%ai",
	"COMMIT_MESSAGE:%B",
}, "%n")

// rawCommitData returns formatted `git show` output for ref, or "" when
// ref fails validation or git is unavailable.
func (e *Environment) rawCommitData(ref string) string {
	if !ValidRef(ref) {
		return ""
	}
	out, err := e.git.Run("show", ref, "--quiet", "--format="+commitFormat)
	if err != nil {
		return ""
	}
	return out
}

// rawBranch returns the checked-out branch name, or "" when git is
// unavailable or HEAD is detached.
func (e *Environment) rawBranch() string {
	out, err := e.git.Run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	branch := strings.TrimSpace(out)
	if branch == "HEAD" {
		return ""
	}
	return branch
}
