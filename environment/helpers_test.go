package environment

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeGit answers `git show <ref>` and `git rev-parse` from fixed maps and
// records every invocation.
type fakeGit struct {
	commits map[string]string // ref -> formatted show output
	branch  string
	calls   [][]string
}

func (f *fakeGit) Run(args ...string) (string, error) {
	f.calls = append(f.calls, args)
	switch args[0] {
	case "show":
		if out, ok := f.commits[args[1]]; ok {
			return out, nil
		}
		return "", fmt.Errorf("fatal: bad object %s", args[1])
	case "rev-parse":
		if f.branch != "" {
			return f.branch + "\n", nil
		}
	}
	return "", errors.New("fatal: not a git repository")
}

// noGit fails every invocation, as on a machine without git.
var noGit = GitFunc(func(...string) (string, error) {
	return "", errors.New(`exec: "git": executable file not found in $PATH`)
})

type commitFixture struct {
	sha, authorName, authorEmail, committerName, committerEmail, date, message string
}

func (c commitFixture) output() string {
	return strings.Join([]string{
		"COMMIT_SHA:" + c.sha,
		"AUTHOR_NAME:" + c.authorName,
		"AUTHOR_EMAIL:" + c.authorEmail,
		"COMMITTER_NAME:" + c.committerName,
		"COMMITTER_EMAIL:" + c.committerEmail,
		"COMMITTED_DATE:" + c.date,
		"COMMIT_MESSAGE:" + c.message,
	}, "\n") + "\n"
}

func newTestEnv(t *testing.T, env map[string]string, opts ...Option) *Environment {
	t.Helper()
	if len(opts) == 0 {
		opts = []Option{WithGit(noGit)}
	}
	e, err := New(env, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}
