// Package environment resolves CI and version-control context for a build.
//
// An Environment wraps a snapshot of process environment variables and a
// Git capability. Every accessor re-reads the snapshot on each call; no
// value is cached, so tests may mutate the map between assertions.
//
// Resolution for each field is layered:
//  1. PERCY_* overrides, which always win.
//  2. Provider-specific variables for the detected CI provider.
//  3. Local git introspection (branch and commit fields only).
//
// Accessors never fail. Missing data is reported as "" (or 0 / false).
package environment

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// ErrNilEnv is returned by New when no environment snapshot is given.
var ErrNilEnv = errors.New("environment: env snapshot is required")

// DefaultBranch is reported when neither overrides, CI nor git provide a branch.
const DefaultBranch = "master"

// maxJenkinsNonceLength truncates the reversed Jenkins BUILD_TAG.
const maxJenkinsNonceLength = 60

// Environment resolves build context from an environment snapshot.
type Environment struct {
	env      map[string]string
	git      Git
	readFile func(string) ([]byte, error)
}

// Option configures an Environment.
type Option func(*Environment)

// WithGit replaces the git capability (default ExecGit{}).
func WithGit(g Git) Option {
	return func(e *Environment) { e.git = g }
}

// WithReadFile replaces the file reader used for CI event payloads.
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(e *Environment) { e.readFile = fn }
}

// New returns an Environment over env. The map is retained, not copied.
func New(env map[string]string, opts ...Option) (*Environment, error) {
	if env == nil {
		return nil, ErrNilEnv
	}
	e := &Environment{
		env:      env,
		git:      ExecGit{},
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// FromOS returns an Environment over a snapshot of os.Environ().
func FromOS(opts ...Option) *Environment {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	e, _ := New(env, opts...)
	return e
}

// WithDefault returns a copy of e in which key is set to value unless the
// snapshot already has a non-empty value for it.
func (e *Environment) WithDefault(key, value string) *Environment {
	env := make(map[string]string, len(e.env)+1)
	for k, v := range e.env {
		env[k] = v
	}
	if env[key] == "" {
		env[key] = value
	}
	cp := *e
	cp.env = env
	return &cp
}

// Getenv returns a raw variable from the snapshot.
func (e *Environment) Getenv(key string) string { return e.env[key] }

// CI returns the detected provider identifier, or "" outside CI.
func (e *Environment) CI() string { return detect(e.env) }

// CIVersion returns the provider identifier qualified with a version
// where the provider exposes one.
func (e *Environment) CIVersion() string {
	switch ci := e.CI(); ci {
	case ProviderGitLab:
		return "gitlab/" + e.env["CI_SERVER_VERSION"]
	case ProviderGitHub:
		return "github/" + firstOf(e.env["PERCY_GITHUB_ACTION"], "unknown")
	default:
		return ci
	}
}

// Project returns the PERCY_PROJECT override.
func (e *Environment) Project() string { return e.env["PERCY_PROJECT"] }

// CommitSha returns the commit being built.
func (e *Environment) CommitSha() string {
	if v := e.env["PERCY_COMMIT"]; v != "" {
		return v
	}
	env := e.env
	switch e.CI() {
	case ProviderTravis:
		if e.PullRequestNumber() != "" && env["TRAVIS_PULL_REQUEST_SHA"] != "" {
			return env["TRAVIS_PULL_REQUEST_SHA"]
		}
		return env["TRAVIS_COMMIT"]
	case ProviderJenkinsPRB:
		return firstOf(env["ghprbActualCommit"], env["GIT_COMMIT"])
	case ProviderJenkins:
		return firstOf(e.jenkinsMergeParentSha(), env["GIT_COMMIT"])
	case ProviderCircle:
		return env["CIRCLE_SHA1"]
	case ProviderCodeship:
		return env["CI_COMMIT_ID"]
	case ProviderDrone:
		return env["DRONE_COMMIT"]
	case ProviderSemaphore:
		return firstOf(env["REVISION"], env["SEMAPHORE_GIT_PR_SHA"], env["SEMAPHORE_GIT_SHA"])
	case ProviderBuildkite:
		// BUILDKITE_COMMIT is "HEAD" for builds not pinned to a commit.
		if sha := env["BUILDKITE_COMMIT"]; sha != "HEAD" {
			return sha
		}
		return ""
	case ProviderHeroku:
		return env["HEROKU_TEST_RUN_COMMIT_VERSION"]
	case ProviderGitLab:
		return env["CI_COMMIT_SHA"]
	case ProviderAzure:
		return firstOf(env["SYSTEM_PULLREQUEST_SOURCECOMMITID"], env["BUILD_SOURCEVERSION"])
	case ProviderAppVeyor:
		return firstOf(env["APPVEYOR_PULL_REQUEST_HEAD_COMMIT"], env["APPVEYOR_REPO_COMMIT"])
	case ProviderProbo, ProviderNetlify:
		return env["COMMIT_REF"]
	case ProviderBitbucket:
		return env["BITBUCKET_COMMIT"]
	case ProviderGitHub:
		return firstOf(e.githubEvent().PullRequest.Head.SHA, env["GITHUB_SHA"])
	}
	return ""
}

// TargetCommitSha returns the PERCY_TARGET_COMMIT override.
func (e *Environment) TargetCommitSha() string { return e.env["PERCY_TARGET_COMMIT"] }

// TargetBranch returns the PERCY_TARGET_BRANCH override.
func (e *Environment) TargetBranch() string { return e.env["PERCY_TARGET_BRANCH"] }

// PartialBuild reports whether PERCY_PARTIAL_BUILD marks this build partial.
func (e *Environment) PartialBuild() bool {
	v := e.env["PERCY_PARTIAL_BUILD"]
	return v != "" && v != "0"
}

// Branch returns the branch being built, falling back to git and then
// DefaultBranch.
func (e *Environment) Branch() string {
	if v := e.env["PERCY_BRANCH"]; v != "" {
		return v
	}
	result := e.providerBranch()
	if result == "" {
		result = e.rawBranch()
	}
	if result == "" {
		result = DefaultBranch
	}
	return result
}

func (e *Environment) providerBranch() string {
	env := e.env
	switch e.CI() {
	case ProviderTravis:
		if e.PullRequestNumber() != "" && env["TRAVIS_PULL_REQUEST_BRANCH"] != "" {
			return env["TRAVIS_PULL_REQUEST_BRANCH"]
		}
		return env["TRAVIS_BRANCH"]
	case ProviderJenkinsPRB:
		return env["ghprbSourceBranch"]
	case ProviderJenkins:
		return firstOf(env["CHANGE_BRANCH"], env["GIT_BRANCH"])
	case ProviderCircle:
		return env["CIRCLE_BRANCH"]
	case ProviderCodeship:
		return env["CI_BRANCH"]
	case ProviderDrone:
		return env["DRONE_BRANCH"]
	case ProviderSemaphore:
		return firstOf(env["BRANCH_NAME"], env["SEMAPHORE_GIT_PR_BRANCH"], env["SEMAPHORE_GIT_BRANCH"])
	case ProviderBuildkite:
		return env["BUILDKITE_BRANCH"]
	case ProviderHeroku:
		return env["HEROKU_TEST_RUN_BRANCH"]
	case ProviderGitLab:
		return env["CI_COMMIT_REF_NAME"]
	case ProviderAzure:
		return firstOf(env["SYSTEM_PULLREQUEST_SOURCEBRANCH"], env["BUILD_SOURCEBRANCHNAME"])
	case ProviderAppVeyor:
		return firstOf(env["APPVEYOR_PULL_REQUEST_HEAD_REPO_BRANCH"], env["APPVEYOR_REPO_BRANCH"])
	case ProviderProbo:
		return env["BRANCH_NAME"]
	case ProviderBitbucket:
		return env["BITBUCKET_BRANCH"]
	case ProviderGitHub:
		if v := env["GITHUB_HEAD_REF"]; v != "" {
			return v
		}
		return stripRefPrefix(env["GITHUB_REF"])
	case ProviderNetlify:
		return env["HEAD"]
	}
	return ""
}

// PullRequestNumber returns the pull/merge request number, or "".
func (e *Environment) PullRequestNumber() string {
	if v := e.env["PERCY_PULL_REQUEST"]; v != "" {
		return v
	}
	env := e.env
	switch e.CI() {
	case ProviderTravis:
		// Travis reports the literal string "false" outside PR builds.
		return unlessFalse(env["TRAVIS_PULL_REQUEST"])
	case ProviderJenkinsPRB:
		return env["ghprbPullId"]
	case ProviderJenkins:
		return env["CHANGE_ID"]
	case ProviderCircle:
		return lastPathSegment(env["CI_PULL_REQUESTS"])
	case ProviderCodeship:
		// CI_PULL_REQUEST is always "false" on Codeship.
		return ""
	case ProviderDrone:
		return env["CI_PULL_REQUEST"]
	case ProviderSemaphore:
		return firstOf(env["PULL_REQUEST_NUMBER"], env["SEMAPHORE_GIT_PR_NUMBER"])
	case ProviderBuildkite:
		return unlessFalse(env["BUILDKITE_PULL_REQUEST"])
	case ProviderHeroku:
		return env["HEROKU_PR_NUMBER"]
	case ProviderGitLab:
		return firstOf(env["CI_MERGE_REQUEST_IID"], env["CI_EXTERNAL_PULL_REQUEST_IID"])
	case ProviderAzure:
		return firstOf(env["SYSTEM_PULLREQUEST_PULLREQUESTID"], env["SYSTEM_PULLREQUEST_PULLREQUESTNUMBER"])
	case ProviderAppVeyor:
		return env["APPVEYOR_PULL_REQUEST_NUMBER"]
	case ProviderProbo:
		return lastPathSegment(env["PULL_REQUEST_LINK"])
	case ProviderBitbucket:
		return env["BITBUCKET_PR_ID"]
	case ProviderGitHub:
		if n := e.githubEvent().PullRequest.Number; n > 0 {
			return strconv.Itoa(n)
		}
	case ProviderNetlify:
		if env["PULL_REQUEST"] != "false" {
			return env["REVIEW_ID"]
		}
	}
	return ""
}

// ParallelNonce returns an identifier shared by every shard of one CI
// build, usually the provider's build id.
func (e *Environment) ParallelNonce() string {
	if v := e.env["PERCY_PARALLEL_NONCE"]; v != "" {
		return v
	}
	env := e.env
	switch e.CI() {
	case ProviderTravis:
		return env["TRAVIS_BUILD_NUMBER"]
	case ProviderJenkinsPRB:
		return env["BUILD_NUMBER"]
	case ProviderJenkins:
		if tag := env["BUILD_TAG"]; tag != "" {
			return truncate(reverse(tag), maxJenkinsNonceLength)
		}
	case ProviderCircle:
		return firstOf(env["CIRCLE_WORKFLOW_ID"], env["CIRCLE_BUILD_NUM"])
	case ProviderCodeship:
		return firstOf(env["CI_BUILD_NUMBER"], env["CI_BUILD_ID"])
	case ProviderDrone:
		return env["DRONE_BUILD_NUMBER"]
	case ProviderSemaphore:
		if v := env["SEMAPHORE_WORKFLOW_ID"]; v != "" {
			return v
		}
		if env["SEMAPHORE_BRANCH_ID"] == "" && env["SEMAPHORE_BUILD_NUMBER"] == "" {
			return ""
		}
		return env["SEMAPHORE_BRANCH_ID"] + "/" + env["SEMAPHORE_BUILD_NUMBER"]
	case ProviderBuildkite:
		return env["BUILDKITE_BUILD_ID"]
	case ProviderHeroku:
		return env["HEROKU_TEST_RUN_ID"]
	case ProviderGitLab:
		return env["CI_PIPELINE_ID"]
	case ProviderAzure:
		return env["BUILD_BUILDID"]
	case ProviderAppVeyor:
		return env["APPVEYOR_BUILD_ID"]
	case ProviderProbo:
		return env["BUILD_ID"]
	case ProviderBitbucket:
		return env["BITBUCKET_BUILD_NUMBER"]
	case ProviderGitHub:
		return env["GITHUB_RUN_ID"]
	}
	return ""
}

// ParallelTotalShards returns the shard count of a parallel build, or 0
// when unknown. PERCY_PARALLEL_TOTAL=-1 is passed through unchanged.
func (e *Environment) ParallelTotalShards() int {
	if v := e.env["PERCY_PARALLEL_TOTAL"]; v != "" {
		return parseInt(v)
	}
	env := e.env
	switch e.CI() {
	case ProviderTravis, ProviderCodeship, ProviderHeroku, ProviderGitLab:
		// Travis total comes from knapsack's CI_NODE_TOTAL.
		return parseInt(env["CI_NODE_TOTAL"])
	case ProviderCircle:
		return parseInt(env["CIRCLE_NODE_TOTAL"])
	case ProviderSemaphore:
		return parseInt(env["SEMAPHORE_THREAD_COUNT"])
	case ProviderBuildkite:
		return parseInt(env["BUILDKITE_PARALLEL_JOB_COUNT"])
	case ProviderAzure:
		// SYSTEM_TOTALJOBSINPHASE is also set for non-parallel matrix builds.
		if env["SYSTEM_PARALLELEXECUTIONTYPE"] == "MultiMachine" {
			return parseInt(env["SYSTEM_TOTALJOBSINPHASE"])
		}
	}
	return 0
}

// githubEventPayload is the subset of the GitHub Actions event file we read.
type githubEventPayload struct {
	PullRequest struct {
		Number int `json:"number"`
		Head   struct {
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
}

// githubEvent reads GITHUB_EVENT_PATH. Unreadable or malformed payloads
// yield a zero value.
func (e *Environment) githubEvent() githubEventPayload {
	var payload githubEventPayload
	path := e.env["GITHUB_EVENT_PATH"]
	if path == "" {
		return payload
	}
	data, err := e.readFile(path)
	if err != nil {
		return payload
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return githubEventPayload{}
	}
	return payload
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func unlessFalse(v string) string {
	if v == "false" {
		return ""
	}
	return v
}

func lastPathSegment(v string) string {
	if v == "" {
		return ""
	}
	parts := strings.Split(v, "/")
	return parts[len(parts)-1]
}

// stripRefPrefix turns refs/heads/main into main and refs/pull/3/merge
// into 3/merge.
func stripRefPrefix(ref string) string {
	if !strings.HasPrefix(ref, "refs/") {
		return ref
	}
	rest := strings.TrimPrefix(ref, "refs/")
	if _, after, ok := strings.Cut(rest, "/"); ok {
		return after
	}
	return ref
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// parseInt reads a leading optionally signed integer the way CI shells
// report counts ("4", " 4", "4 nodes"). Anything without leading digits
// is 0.
func parseInt(v string) int {
	s := strings.TrimLeftFunc(v, unicode.IsSpace)
	sign := 1
	if s != "" && (s[0] == '-' || s[0] == '+') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	n, digits := 0, 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		digits++
	}
	if digits == 0 {
		return 0
	}
	return sign * n
}
