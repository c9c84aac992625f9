package environment

import (
	"regexp"
	"strings"
)

// CommitData is the commit metadata reported with a build.
// Empty strings mean the value could not be determined.
type CommitData struct {
	Branch         string `json:"branch" yaml:"branch"`
	SHA            string `json:"sha" yaml:"sha"`
	Message        string `json:"message" yaml:"message"`
	AuthorName     string `json:"author_name" yaml:"author_name"`
	AuthorEmail    string `json:"author_email" yaml:"author_email"`
	CommitterName  string `json:"committer_name" yaml:"committer_name"`
	CommitterEmail string `json:"committer_email" yaml:"committer_email"`
	CommittedAt    string `json:"committed_at" yaml:"committed_at"`
}

var (
	shaField            = regexp.MustCompile(`(?m)^COMMIT_SHA:(.*)$`)
	authorNameField     = regexp.MustCompile(`(?m)^AUTHOR_NAME:(.*)$`)
	authorEmailField    = regexp.MustCompile(`(?m)^AUTHOR_EMAIL:(.*)$`)
	committerNameField  = regexp.MustCompile(`(?m)^COMMITTER_NAME:(.*)$`)
	committerEmailField = regexp.MustCompile(`(?m)^COMMITTER_EMAIL:(.*)$`)
	committedDateField  = regexp.MustCompile(`(?m)^COMMITTED_DATE:(.*)$`)
	// The message runs to the end of the output and may contain newlines.
	messageField = regexp.MustCompile(`(?s)COMMIT_MESSAGE:(.*)`)
)

// parseField returns the first capture of re in raw, or "".
func parseField(raw string, re *regexp.Regexp) string {
	m := re.FindStringSubmatch(raw)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimRight(m[1], "\r")
}

func parseMessage(raw string) string {
	m := messageField.FindStringSubmatch(raw)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimRight(m[1], "\r\n")
}

// CommitData aggregates branch, sha and commit metadata.
//
// Environment values (including the Jenkins Git plugin GIT_* variables)
// are used only when git output cannot be obtained at all; otherwise the
// structured `git show` output wins for every field it carries.
func (e *Environment) CommitData() CommitData {
	result := CommitData{
		Branch:         e.Branch(),
		SHA:            e.CommitSha(),
		AuthorName:     e.env["GIT_AUTHOR_NAME"],
		AuthorEmail:    e.env["GIT_AUTHOR_EMAIL"],
		CommitterName:  e.env["GIT_COMMITTER_NAME"],
		CommitterEmail: e.env["GIT_COMMITTER_EMAIL"],
	}

	raw := ""
	if result.SHA != "" {
		raw = e.rawCommitData(result.SHA)
	}
	if raw == "" {
		raw = e.rawCommitData("HEAD")
	}
	if raw == "" {
		return result
	}

	if result.SHA == "" {
		result.SHA = parseField(raw, shaField)
	}
	result.Message = parseMessage(raw)
	result.CommittedAt = parseField(raw, committedDateField)
	result.AuthorName = parseField(raw, authorNameField)
	result.AuthorEmail = parseField(raw, authorEmailField)
	result.CommitterName = parseField(raw, committerNameField)
	result.CommitterEmail = parseField(raw, committerEmailField)
	return result
}

// jenkinsMergePattern matches the message Jenkins writes when it merges
// the target branch into the PR head before building.
var jenkinsMergePattern = regexp.MustCompile(`^Merge commit '[0-9a-f]{40}' into HEAD`)

const (
	jenkinsCommitterName  = "Jenkins"
	jenkinsCommitterEmail = "nobody@nowhere"
)

// jenkinsMergeParentSha returns the sha of HEAD^ when HEAD is a Jenkins
// generated merge commit, or "" otherwise.
func (e *Environment) jenkinsMergeParentSha() string {
	raw := e.rawCommitData("HEAD")
	if raw == "" {
		return ""
	}
	if parseField(raw, committerNameField) != jenkinsCommitterName ||
		parseField(raw, committerEmailField) != jenkinsCommitterEmail {
		return ""
	}
	if !jenkinsMergePattern.MatchString(parseMessage(raw)) {
		return ""
	}
	return parseField(e.rawCommitData("HEAD^"), shaField)
}
