package environment

import (
	"errors"
	"testing"
)

func TestNew_RequiresEnv(t *testing.T) {
	_, err := New(nil)
	if !errors.Is(err, ErrNilEnv) {
		t.Fatalf("expected ErrNilEnv, got %v", err)
	}
}

func TestNoCI_Defaults(t *testing.T) {
	e := newTestEnv(t, map[string]string{})

	if got := e.CI(); got != "" {
		t.Errorf("CI() = %q, want empty", got)
	}
	if got := e.CIVersion(); got != "" {
		t.Errorf("CIVersion() = %q, want empty", got)
	}
	if got := e.Branch(); got != DefaultBranch {
		t.Errorf("Branch() = %q, want %q", got, DefaultBranch)
	}
	if got := e.CommitSha(); got != "" {
		t.Errorf("CommitSha() = %q, want empty", got)
	}
	if got := e.PullRequestNumber(); got != "" {
		t.Errorf("PullRequestNumber() = %q, want empty", got)
	}
	if got := e.ParallelNonce(); got != "" {
		t.Errorf("ParallelNonce() = %q, want empty", got)
	}
	if got := e.ParallelTotalShards(); got != 0 {
		t.Errorf("ParallelTotalShards() = %d, want 0", got)
	}
	if e.PartialBuild() {
		t.Error("PartialBuild() = true, want false")
	}
}

func TestNoCI_BranchFromGit(t *testing.T) {
	e := newTestEnv(t, map[string]string{}, WithGit(&fakeGit{branch: "feature/login"}))
	if got := e.Branch(); got != "feature/login" {
		t.Errorf("Branch() = %q, want feature/login", got)
	}
}

func TestNoCI_DetachedHeadFallsBackToDefault(t *testing.T) {
	e := newTestEnv(t, map[string]string{}, WithGit(&fakeGit{branch: "HEAD"}))
	if got := e.Branch(); got != DefaultBranch {
		t.Errorf("Branch() = %q, want %q", got, DefaultBranch)
	}
}

func TestCI_Detection(t *testing.T) {
	tests := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{"TRAVIS_BUILD_ID": "1234"}, ProviderTravis},
		{map[string]string{"JENKINS_URL": "http://jenkins.local/", "ghprbPullId": "256"}, ProviderJenkinsPRB},
		{map[string]string{"JENKINS_URL": "http://jenkins.local/"}, ProviderJenkins},
		{map[string]string{"CIRCLECI": "true"}, ProviderCircle},
		{map[string]string{"CI_NAME": "codeship"}, ProviderCodeship},
		{map[string]string{"DRONE": "true"}, ProviderDrone},
		{map[string]string{"SEMAPHORE": "true"}, ProviderSemaphore},
		{map[string]string{"BUILDKITE": "true"}, ProviderBuildkite},
		{map[string]string{"HEROKU_TEST_RUN_ID": "run-1"}, ProviderHeroku},
		{map[string]string{"GITLAB_CI": "true"}, ProviderGitLab},
		{map[string]string{"TF_BUILD": "True"}, ProviderAzure},
		{map[string]string{"APPVEYOR": "True"}, ProviderAppVeyor},
		{map[string]string{"PROBO_ENVIRONMENT": "TRUE"}, ProviderProbo},
		{map[string]string{"BITBUCKET_BUILD_NUMBER": "981"}, ProviderBitbucket},
		{map[string]string{"GITHUB_ACTIONS": "true"}, ProviderGitHub},
		{map[string]string{"NETLIFY": "true"}, ProviderNetlify},
		{map[string]string{"CI": "true"}, ProviderUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			e := newTestEnv(t, tt.env)
			if got := e.CI(); got != tt.want {
				t.Errorf("CI() = %q, want %q", got, tt.want)
			}

			// jenkins-prb refines jenkins and relies on ordering.
			if tt.want == ProviderJenkinsPRB {
				return
			}
			// No other signature may claim this environment.
			matched := 0
			for _, s := range signatures {
				if s.match(tt.env) {
					matched++
				}
			}
			if matched != 1 {
				t.Errorf("%d signatures matched %v, want exactly 1", matched, tt.env)
			}
		})
	}
}

func TestCI_AppVeyorLowercase(t *testing.T) {
	e := newTestEnv(t, map[string]string{"APPVEYOR": "true"})
	if got := e.CI(); got != ProviderAppVeyor {
		t.Errorf("CI() = %q, want appveyor", got)
	}
}

func TestCI_GenericCIIsLast(t *testing.T) {
	e := newTestEnv(t, map[string]string{"CI": "true", "DRONE": "true"})
	if got := e.CI(); got != ProviderDrone {
		t.Errorf("CI() = %q, want drone", got)
	}
	providers := Providers()
	if providers[len(providers)-1] != ProviderUnknown {
		t.Errorf("last provider = %q, want %q", providers[len(providers)-1], ProviderUnknown)
	}
}

func TestCI_StringFlagsAreCaseSensitive(t *testing.T) {
	tests := []map[string]string{
		{"DRONE": "TRUE"},
		{"TF_BUILD": "true"},
		{"PROBO_ENVIRONMENT": "true"},
		{"CI_NAME": "Codeship"},
	}
	for _, env := range tests {
		e := newTestEnv(t, env)
		if got := e.CI(); got != "" {
			t.Errorf("CI() for %v = %q, want empty", env, got)
		}
	}
}

func TestOverrides_WinForEveryProvider(t *testing.T) {
	overrides := map[string]string{
		"PERCY_COMMIT":         "percy-commit",
		"PERCY_BRANCH":         "percy-branch",
		"PERCY_TARGET_BRANCH":  "percy-target-branch",
		"PERCY_TARGET_COMMIT":  "percy-target-commit",
		"PERCY_PULL_REQUEST":   "256",
		"PERCY_PARALLEL_NONCE": "percy-nonce",
		"PERCY_PARALLEL_TOTAL": "7",
		"PERCY_PARTIAL_BUILD":  "1",
	}
	providerEnvs := map[string]map[string]string{
		ProviderTravis: {
			"TRAVIS_BUILD_ID": "1", "TRAVIS_COMMIT": "travis-commit", "TRAVIS_BRANCH": "travis-branch",
			"TRAVIS_PULL_REQUEST": "111", "TRAVIS_BUILD_NUMBER": "travis-build", "CI_NODE_TOTAL": "3",
		},
		ProviderCircle: {
			"CIRCLECI": "true", "CIRCLE_SHA1": "circle-commit", "CIRCLE_BRANCH": "circle-branch",
			"CI_PULL_REQUESTS": "https://github.com/o/r/pull/123", "CIRCLE_BUILD_NUM": "circle-build",
			"CIRCLE_NODE_TOTAL": "3",
		},
		ProviderBuildkite: {
			"BUILDKITE": "true", "BUILDKITE_COMMIT": "bk-commit", "BUILDKITE_BRANCH": "bk-branch",
			"BUILDKITE_PULL_REQUEST": "123", "BUILDKITE_BUILD_ID": "bk-build",
			"BUILDKITE_PARALLEL_JOB_COUNT": "3",
		},
		ProviderGitLab: {
			"GITLAB_CI": "true", "CI_COMMIT_SHA": "gl-commit", "CI_COMMIT_REF_NAME": "gl-branch",
			"CI_MERGE_REQUEST_IID": "123", "CI_PIPELINE_ID": "gl-pipeline", "CI_NODE_TOTAL": "3",
		},
	}

	for name, providerEnv := range providerEnvs {
		t.Run(name, func(t *testing.T) {
			env := map[string]string{}
			for k, v := range providerEnv {
				env[k] = v
			}
			for k, v := range overrides {
				env[k] = v
			}
			e := newTestEnv(t, env, WithGit(&fakeGit{branch: "git-branch"}))

			if got := e.CI(); got != name {
				t.Fatalf("CI() = %q, want %q", got, name)
			}
			if got := e.CommitSha(); got != "percy-commit" {
				t.Errorf("CommitSha() = %q", got)
			}
			if got := e.Branch(); got != "percy-branch" {
				t.Errorf("Branch() = %q", got)
			}
			if got := e.TargetBranch(); got != "percy-target-branch" {
				t.Errorf("TargetBranch() = %q", got)
			}
			if got := e.TargetCommitSha(); got != "percy-target-commit" {
				t.Errorf("TargetCommitSha() = %q", got)
			}
			if got := e.PullRequestNumber(); got != "256" {
				t.Errorf("PullRequestNumber() = %q", got)
			}
			if got := e.ParallelNonce(); got != "percy-nonce" {
				t.Errorf("ParallelNonce() = %q", got)
			}
			if got := e.ParallelTotalShards(); got != 7 {
				t.Errorf("ParallelTotalShards() = %d", got)
			}
			if !e.PartialBuild() {
				t.Error("PartialBuild() = false")
			}
		})
	}
}

func TestOverrides_ParallelTotalNegativeOne(t *testing.T) {
	e := newTestEnv(t, map[string]string{"PERCY_PARALLEL_TOTAL": "-1"})
	if got := e.ParallelTotalShards(); got != -1 {
		t.Errorf("ParallelTotalShards() = %d, want -1", got)
	}
}

func TestWithDefault(t *testing.T) {
	env := map[string]string{"PERCY_PARALLEL_NONCE": "n"}
	e := newTestEnv(t, env)

	d := e.WithDefault("PERCY_PARALLEL_TOTAL", "-1")
	if got := d.ParallelTotalShards(); got != -1 {
		t.Errorf("ParallelTotalShards() = %d, want -1", got)
	}
	if got := d.ParallelNonce(); got != "n" {
		t.Errorf("ParallelNonce() = %q, want n", got)
	}
	if _, ok := env["PERCY_PARALLEL_TOTAL"]; ok {
		t.Error("WithDefault mutated the original snapshot")
	}

	set := newTestEnv(t, map[string]string{"PERCY_PARALLEL_TOTAL": "3"}).WithDefault("PERCY_PARALLEL_TOTAL", "-1")
	if got := set.ParallelTotalShards(); got != 3 {
		t.Errorf("ParallelTotalShards() = %d, want existing 3", got)
	}
}

func TestPartialBuild_ZeroIsFalse(t *testing.T) {
	e := newTestEnv(t, map[string]string{"PERCY_PARTIAL_BUILD": "0"})
	if e.PartialBuild() {
		t.Error("PartialBuild() = true for \"0\"")
	}
}

func TestAccessors_ReReadMutatedEnv(t *testing.T) {
	env := map[string]string{}
	e := newTestEnv(t, env)

	if got := e.CI(); got != "" {
		t.Fatalf("CI() = %q, want empty", got)
	}

	env["TRAVIS_BUILD_ID"] = "1234"
	env["TRAVIS_BRANCH"] = "travis-branch"
	if got := e.CI(); got != ProviderTravis {
		t.Errorf("CI() after mutation = %q, want travis", got)
	}
	if got := e.Branch(); got != "travis-branch" {
		t.Errorf("Branch() after mutation = %q", got)
	}

	env["PERCY_BRANCH"] = "override"
	if got := e.Branch(); got != "override" {
		t.Errorf("Branch() after override = %q", got)
	}

	delete(env, "TRAVIS_BUILD_ID")
	delete(env, "PERCY_BRANCH")
	if got := e.CI(); got != "" {
		t.Errorf("CI() after delete = %q, want empty", got)
	}
}

func TestTravis(t *testing.T) {
	env := map[string]string{
		"TRAVIS_BUILD_ID":            "1234",
		"TRAVIS_BUILD_NUMBER":        "build-number",
		"TRAVIS_PULL_REQUEST":        "false",
		"TRAVIS_PULL_REQUEST_BRANCH": "",
		"TRAVIS_PULL_REQUEST_SHA":    "",
		"TRAVIS_COMMIT":              "travis-commit-sha",
		"TRAVIS_BRANCH":              "travis-branch",
		"CI_NODE_TOTAL":              "3",
	}
	e := newTestEnv(t, env)

	if got := e.PullRequestNumber(); got != "" {
		t.Errorf("PullRequestNumber() = %q, want empty for literal \"false\"", got)
	}
	if got := e.CommitSha(); got != "travis-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "travis-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.ParallelNonce(); got != "build-number" {
		t.Errorf("ParallelNonce() = %q", got)
	}
	if got := e.ParallelTotalShards(); got != 3 {
		t.Errorf("ParallelTotalShards() = %d", got)
	}

	t.Run("pull request build", func(t *testing.T) {
		env["TRAVIS_PULL_REQUEST"] = "256"
		env["TRAVIS_PULL_REQUEST_BRANCH"] = "travis-pr-branch"
		env["TRAVIS_PULL_REQUEST_SHA"] = "travis-pr-head-commit-sha"

		if got := e.PullRequestNumber(); got != "256" {
			t.Errorf("PullRequestNumber() = %q", got)
		}
		if got := e.Branch(); got != "travis-pr-branch" {
			t.Errorf("Branch() = %q", got)
		}
		if got := e.CommitSha(); got != "travis-pr-head-commit-sha" {
			t.Errorf("CommitSha() = %q", got)
		}
	})
}

func TestJenkinsPRB(t *testing.T) {
	env := map[string]string{
		"JENKINS_URL":       "http://localhost:8080/",
		"BUILD_NUMBER":      "111",
		"ghprbPullId":       "256",
		"ghprbActualCommit": "jenkins-prb-commit-sha",
		"ghprbSourceBranch": "jenkins-prb-branch",
		"GIT_COMMIT":        "jenkins-git-commit",
	}
	e := newTestEnv(t, env)

	if got := e.CommitSha(); got != "jenkins-prb-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "jenkins-prb-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "256" {
		t.Errorf("PullRequestNumber() = %q", got)
	}
	if got := e.ParallelNonce(); got != "111" {
		t.Errorf("ParallelNonce() = %q", got)
	}
	if got := e.ParallelTotalShards(); got != 0 {
		t.Errorf("ParallelTotalShards() = %d, want 0", got)
	}

	delete(env, "ghprbActualCommit")
	if got := e.CommitSha(); got != "jenkins-git-commit" {
		t.Errorf("CommitSha() without ghprbActualCommit = %q", got)
	}
}

func TestJenkins_BuildTagNonce(t *testing.T) {
	tests := []struct {
		name     string
		buildTag string
		want     string
	}{
		{
			name:     "short tag is reversed",
			buildTag: "jenkins-percy-agent-build-and-test-master-178",
			want:     "871-retsam-tset-dna-dliub-tnega-ycrep-sniknej",
		},
		{
			name:     "long tag is reversed then truncated",
			buildTag: "jenkins-PercyIO-percy-go-integration-tests-PR-1234-verify-snapshots-987",
			want:     "789-stohspans-yfirev-4321-RP-stset-noitargetni-og-ycrep-OIyc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, map[string]string{
				"JENKINS_URL": "http://localhost:8080/",
				"BUILD_TAG":   tt.buildTag,
			})
			got := e.ParallelNonce()
			if got != tt.want {
				t.Errorf("ParallelNonce() = %q, want %q", got, tt.want)
			}
			if len(got) > maxJenkinsNonceLength {
				t.Errorf("nonce length %d exceeds %d", len(got), maxJenkinsNonceLength)
			}
		})
	}
}

func TestJenkins_BranchAndPR(t *testing.T) {
	e := newTestEnv(t, map[string]string{
		"JENKINS_URL":   "http://localhost:8080/",
		"CHANGE_BRANCH": "jenkins-change-branch",
		"GIT_BRANCH":    "origin/main",
		"CHANGE_ID":     "42",
		"GIT_COMMIT":    "jenkins-git-commit",
	})
	if got := e.Branch(); got != "jenkins-change-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "42" {
		t.Errorf("PullRequestNumber() = %q", got)
	}
	if got := e.CommitSha(); got != "jenkins-git-commit" {
		t.Errorf("CommitSha() = %q", got)
	}
}

func TestJenkins_MergeCommitUsesParent(t *testing.T) {
	merge := commitFixture{
		sha:            "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		authorName:     "Jenkins",
		authorEmail:    "nobody@nowhere",
		committerName:  "Jenkins",
		committerEmail: "nobody@nowhere",
		date:           "2019-02-12 10:14:03 -0800",
		message:        "Merge commit 'ec4d24c3d22f3c95e34af95c1fda2d462396a885' into HEAD",
	}
	parent := commitFixture{
		sha:            "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		authorName:     "Dev",
		authorEmail:    "dev@example.com",
		committerName:  "Dev",
		committerEmail: "dev@example.com",
		date:           "2019-02-12 10:10:00 -0800",
		message:        "Fix header spacing",
	}
	git := &fakeGit{commits: map[string]string{
		"HEAD":  merge.output(),
		"HEAD^": parent.output(),
	}}
	e := newTestEnv(t, map[string]string{
		"JENKINS_URL": "http://localhost:8080/",
		"GIT_COMMIT":  merge.sha,
	}, WithGit(git))

	if got := e.CommitSha(); got != parent.sha {
		t.Errorf("CommitSha() = %q, want parent %q", got, parent.sha)
	}

	t.Run("ordinary commit keeps GIT_COMMIT", func(t *testing.T) {
		git.commits["HEAD"] = parent.output()
		if got := e.CommitSha(); got != merge.sha {
			t.Errorf("CommitSha() = %q, want GIT_COMMIT", got)
		}
	})
}

func TestCircle(t *testing.T) {
	env := map[string]string{
		"CIRCLECI":          "true",
		"CIRCLE_BRANCH":     "circle-branch",
		"CIRCLE_SHA1":       "circle-commit-sha",
		"CIRCLE_BUILD_NUM":  "build-number",
		"CIRCLE_NODE_TOTAL": "3",
		"CI_PULL_REQUESTS":  "https://github.com/owner/repo-name/pull/123",
	}
	e := newTestEnv(t, env)

	if got := e.CommitSha(); got != "circle-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "circle-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "123" {
		t.Errorf("PullRequestNumber() = %q", got)
	}
	if got := e.ParallelNonce(); got != "build-number" {
		t.Errorf("ParallelNonce() = %q", got)
	}
	if got := e.ParallelTotalShards(); got != 3 {
		t.Errorf("ParallelTotalShards() = %d", got)
	}

	env["CIRCLE_WORKFLOW_ID"] = "circle-workflow-id"
	if got := e.ParallelNonce(); got != "circle-workflow-id" {
		t.Errorf("ParallelNonce() with workflow = %q", got)
	}
}

func TestCodeship(t *testing.T) {
	env := map[string]string{
		"CI_NAME":         "codeship",
		"CI_BRANCH":       "codeship-branch",
		"CI_BUILD_NUMBER": "codeship-build-number",
		"CI_PULL_REQUEST": "false",
		"CI_COMMIT_ID":    "codeship-commit-sha",
		"CI_NODE_TOTAL":   "3",
	}
	e := newTestEnv(t, env)

	if got := e.CommitSha(); got != "codeship-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "codeship-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "" {
		t.Errorf("PullRequestNumber() = %q, want empty", got)
	}
	if got := e.ParallelNonce(); got != "codeship-build-number" {
		t.Errorf("ParallelNonce() = %q", got)
	}
	if got := e.ParallelTotalShards(); got != 3 {
		t.Errorf("ParallelTotalShards() = %d", got)
	}

	delete(env, "CI_BUILD_NUMBER")
	env["CI_BUILD_ID"] = "codeship-build-id"
	if got := e.ParallelNonce(); got != "codeship-build-id" {
		t.Errorf("ParallelNonce() fallback = %q", got)
	}
}

func TestDrone(t *testing.T) {
	e := newTestEnv(t, map[string]string{
		"DRONE":              "true",
		"DRONE_COMMIT":       "drone-commit-sha",
		"DRONE_BRANCH":       "drone-branch",
		"CI_PULL_REQUEST":    "123",
		"DRONE_BUILD_NUMBER": "drone-build-number",
	})
	if got := e.CommitSha(); got != "drone-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "drone-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "123" {
		t.Errorf("PullRequestNumber() = %q", got)
	}
	if got := e.ParallelNonce(); got != "drone-build-number" {
		t.Errorf("ParallelNonce() = %q", got)
	}
	if got := e.ParallelTotalShards(); got != 0 {
		t.Errorf("ParallelTotalShards() = %d, want 0", got)
	}
}

func TestSemaphore(t *testing.T) {
	env := map[string]string{
		"SEMAPHORE":              "true",
		"BRANCH_NAME":            "semaphore-branch",
		"REVISION":               "semaphore-commit-sha",
		"SEMAPHORE_BRANCH_ID":    "semaphore-branch-id",
		"SEMAPHORE_BUILD_NUMBER": "semaphore-build-number",
		"SEMAPHORE_THREAD_COUNT": "2",
		"PULL_REQUEST_NUMBER":    "123",
	}
	e := newTestEnv(t, env)

	if got := e.CommitSha(); got != "semaphore-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "semaphore-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "123" {
		t.Errorf("PullRequestNumber() = %q", got)
	}
	if got := e.ParallelNonce(); got != "semaphore-branch-id/semaphore-build-number" {
		t.Errorf("ParallelNonce() = %q", got)
	}
	if got := e.ParallelTotalShards(); got != 2 {
		t.Errorf("ParallelTotalShards() = %d", got)
	}

	t.Run("semaphore 2.0 variables", func(t *testing.T) {
		e := newTestEnv(t, map[string]string{
			"SEMAPHORE":               "true",
			"SEMAPHORE_GIT_SHA":       "semaphore-2-sha",
			"SEMAPHORE_GIT_BRANCH":    "semaphore-2-branch",
			"SEMAPHORE_GIT_PR_NUMBER": "50",
			"SEMAPHORE_WORKFLOW_ID":   "semaphore-2-workflow-id",
		})
		if got := e.CommitSha(); got != "semaphore-2-sha" {
			t.Errorf("CommitSha() = %q", got)
		}
		if got := e.Branch(); got != "semaphore-2-branch" {
			t.Errorf("Branch() = %q", got)
		}
		if got := e.PullRequestNumber(); got != "50" {
			t.Errorf("PullRequestNumber() = %q", got)
		}
		if got := e.ParallelNonce(); got != "semaphore-2-workflow-id" {
			t.Errorf("ParallelNonce() = %q", got)
		}
	})
}

func TestBuildkite(t *testing.T) {
	env := map[string]string{
		"BUILDKITE":                    "true",
		"BUILDKITE_COMMIT":             "buildkite-commit-sha",
		"BUILDKITE_BRANCH":             "buildkite-branch",
		"BUILDKITE_PULL_REQUEST":       "false",
		"BUILDKITE_BUILD_ID":           "buildkite-build-id",
		"BUILDKITE_PARALLEL_JOB_COUNT": "2",
	}
	e := newTestEnv(t, env)

	if got := e.CommitSha(); got != "buildkite-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "buildkite-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "" {
		t.Errorf("PullRequestNumber() = %q, want empty for \"false\"", got)
	}
	if got := e.ParallelNonce(); got != "buildkite-build-id" {
		t.Errorf("ParallelNonce() = %q", got)
	}
	if got := e.ParallelTotalShards(); got != 2 {
		t.Errorf("ParallelTotalShards() = %d", got)
	}

	env["BUILDKITE_PULL_REQUEST"] = "123"
	if got := e.PullRequestNumber(); got != "123" {
		t.Errorf("PullRequestNumber() = %q", got)
	}

	env["BUILDKITE_COMMIT"] = "HEAD"
	if got := e.CommitSha(); got != "" {
		t.Errorf("CommitSha() for HEAD sentinel = %q, want empty", got)
	}
}

func TestHeroku(t *testing.T) {
	e := newTestEnv(t, map[string]string{
		"HEROKU_TEST_RUN_ID":             "heroku-test-run-id",
		"HEROKU_TEST_RUN_COMMIT_VERSION": "heroku-commit-sha",
		"HEROKU_TEST_RUN_BRANCH":         "heroku-branch",
		"HEROKU_PR_NUMBER":               "123",
		"CI_NODE_TOTAL":                  "3",
	})
	if got := e.CommitSha(); got != "heroku-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "heroku-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "123" {
		t.Errorf("PullRequestNumber() = %q", got)
	}
	if got := e.ParallelNonce(); got != "heroku-test-run-id" {
		t.Errorf("ParallelNonce() = %q", got)
	}
	if got := e.ParallelTotalShards(); got != 3 {
		t.Errorf("ParallelTotalShards() = %d", got)
	}
}

func TestGitLab(t *testing.T) {
	env := map[string]string{
		"GITLAB_CI":                    "true",
		"CI_COMMIT_SHA":                "gitlab-commit-sha",
		"CI_COMMIT_REF_NAME":           "gitlab-branch",
		"CI_PIPELINE_ID":               "gitlab-job-id",
		"CI_SERVER_VERSION":            "8.14.3-ee",
		"CI_EXTERNAL_PULL_REQUEST_IID": "77",
	}
	e := newTestEnv(t, env)

	if got := e.CommitSha(); got != "gitlab-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "gitlab-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.ParallelNonce(); got != "gitlab-job-id" {
		t.Errorf("ParallelNonce() = %q", got)
	}
	if got := e.CIVersion(); got != "gitlab/8.14.3-ee" {
		t.Errorf("CIVersion() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "77" {
		t.Errorf("PullRequestNumber() = %q, want external PR id", got)
	}

	// Merge request (including merge train) pipelines win over external PRs.
	env["CI_MERGE_REQUEST_IID"] = "12"
	if got := e.PullRequestNumber(); got != "12" {
		t.Errorf("PullRequestNumber() = %q, want merge request iid", got)
	}
}

func TestAzure(t *testing.T) {
	env := map[string]string{
		"TF_BUILD":                             "True",
		"BUILD_SOURCEVERSION":                  "azure-commit-sha",
		"BUILD_SOURCEBRANCHNAME":               "azure-branch",
		"BUILD_BUILDID":                        "azure-build-id",
		"SYSTEM_PULLREQUEST_PULLREQUESTNUMBER": "512",
		"SYSTEM_TOTALJOBSINPHASE":              "4",
	}
	e := newTestEnv(t, env)

	if got := e.CommitSha(); got != "azure-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "azure-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "512" {
		t.Errorf("PullRequestNumber() = %q", got)
	}
	if got := e.ParallelNonce(); got != "azure-build-id" {
		t.Errorf("ParallelNonce() = %q", got)
	}
	if got := e.ParallelTotalShards(); got != 0 {
		t.Errorf("ParallelTotalShards() = %d, want 0 without MultiMachine", got)
	}

	env["SYSTEM_PARALLELEXECUTIONTYPE"] = "MultiMachine"
	env["SYSTEM_PULLREQUEST_SOURCECOMMITID"] = "azure-pr-commit-sha"
	env["SYSTEM_PULLREQUEST_SOURCEBRANCH"] = "azure-pr-branch"
	if got := e.ParallelTotalShards(); got != 4 {
		t.Errorf("ParallelTotalShards() = %d, want 4", got)
	}
	if got := e.CommitSha(); got != "azure-pr-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "azure-pr-branch" {
		t.Errorf("Branch() = %q", got)
	}
}

func TestAppVeyor(t *testing.T) {
	e := newTestEnv(t, map[string]string{
		"APPVEYOR":                               "True",
		"APPVEYOR_BUILD_ID":                      "appveyor-build-id",
		"APPVEYOR_REPO_COMMIT":                   "appveyor-commit-sha",
		"APPVEYOR_PULL_REQUEST_HEAD_COMMIT":      "appveyor-pr-commit-sha",
		"APPVEYOR_REPO_BRANCH":                   "appveyor-branch",
		"APPVEYOR_PULL_REQUEST_HEAD_REPO_BRANCH": "appveyor-pr-branch",
		"APPVEYOR_PULL_REQUEST_NUMBER":           "512",
	})
	if got := e.CommitSha(); got != "appveyor-pr-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "appveyor-pr-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "512" {
		t.Errorf("PullRequestNumber() = %q", got)
	}
	if got := e.ParallelNonce(); got != "appveyor-build-id" {
		t.Errorf("ParallelNonce() = %q", got)
	}
}

func TestProbo(t *testing.T) {
	e := newTestEnv(t, map[string]string{
		"PROBO_ENVIRONMENT": "TRUE",
		"BUILD_ID":          "probo-build-id",
		"COMMIT_REF":        "probo-commit-sha",
		"BRANCH_NAME":       "probo-branch",
		"PULL_REQUEST_LINK": "https://github.com/owner/repo/pull/123",
	})
	if got := e.CommitSha(); got != "probo-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "probo-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "123" {
		t.Errorf("PullRequestNumber() = %q", got)
	}
	if got := e.ParallelNonce(); got != "probo-build-id" {
		t.Errorf("ParallelNonce() = %q", got)
	}
}

func TestBitbucket(t *testing.T) {
	e := newTestEnv(t, map[string]string{
		"BITBUCKET_BUILD_NUMBER": "bitbucket-build-number",
		"BITBUCKET_COMMIT":       "bitbucket-commit-sha",
		"BITBUCKET_BRANCH":       "bitbucket-branch",
		"BITBUCKET_PR_ID":        "981",
	})
	if got := e.CommitSha(); got != "bitbucket-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "bitbucket-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "981" {
		t.Errorf("PullRequestNumber() = %q", got)
	}
	if got := e.ParallelNonce(); got != "bitbucket-build-number" {
		t.Errorf("ParallelNonce() = %q", got)
	}
}

func TestGitHub(t *testing.T) {
	env := map[string]string{
		"GITHUB_ACTIONS": "true",
		"GITHUB_SHA":     "github-commit-sha",
		"GITHUB_REF":     "refs/heads/github/branch",
		"GITHUB_RUN_ID":  "github-run-id",
	}
	e := newTestEnv(t, env)

	if got := e.CommitSha(); got != "github-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "github/branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "" {
		t.Errorf("PullRequestNumber() = %q, want empty", got)
	}
	if got := e.ParallelNonce(); got != "github-run-id" {
		t.Errorf("ParallelNonce() = %q", got)
	}
	if got := e.CIVersion(); got != "github/unknown" {
		t.Errorf("CIVersion() = %q", got)
	}

	env["PERCY_GITHUB_ACTION"] = "percy-action/0.1.0"
	if got := e.CIVersion(); got != "github/percy-action/0.1.0" {
		t.Errorf("CIVersion() = %q", got)
	}

	t.Run("unprefixed ref is kept", func(t *testing.T) {
		env["GITHUB_REF"] = "main"
		if got := e.Branch(); got != "main" {
			t.Errorf("Branch() = %q", got)
		}
	})
}

func TestGitHub_PullRequestEvent(t *testing.T) {
	payload := []byte(`{"pull_request":{"number":15,"head":{"sha":"github-pr-head-sha"}}}`)
	readFile := func(path string) ([]byte, error) {
		if path != "/github/workflow/event.json" {
			t.Errorf("unexpected event path %q", path)
		}
		return payload, nil
	}
	e := newTestEnv(t, map[string]string{
		"GITHUB_ACTIONS":    "true",
		"GITHUB_SHA":        "github-merge-sha",
		"GITHUB_REF":        "refs/pull/15/merge",
		"GITHUB_HEAD_REF":   "feature-branch",
		"GITHUB_EVENT_PATH": "/github/workflow/event.json",
	}, WithGit(noGit), WithReadFile(readFile))

	if got := e.CommitSha(); got != "github-pr-head-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "feature-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "15" {
		t.Errorf("PullRequestNumber() = %q", got)
	}
}

func TestGitHub_UnreadableEventIsIgnored(t *testing.T) {
	readFile := func(string) ([]byte, error) { return []byte("{not json"), nil }
	e := newTestEnv(t, map[string]string{
		"GITHUB_ACTIONS":    "true",
		"GITHUB_SHA":        "github-commit-sha",
		"GITHUB_EVENT_PATH": "/tmp/event.json",
	}, WithGit(noGit), WithReadFile(readFile))

	if got := e.CommitSha(); got != "github-commit-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "" {
		t.Errorf("PullRequestNumber() = %q", got)
	}
}

func TestNetlify(t *testing.T) {
	env := map[string]string{
		"NETLIFY":      "true",
		"COMMIT_REF":   "netlify-sha",
		"HEAD":         "netlify-branch",
		"PULL_REQUEST": "true",
		"REVIEW_ID":    "123",
	}
	e := newTestEnv(t, env)

	if got := e.CommitSha(); got != "netlify-sha" {
		t.Errorf("CommitSha() = %q", got)
	}
	if got := e.Branch(); got != "netlify-branch" {
		t.Errorf("Branch() = %q", got)
	}
	if got := e.PullRequestNumber(); got != "123" {
		t.Errorf("PullRequestNumber() = %q", got)
	}

	env["PULL_REQUEST"] = "false"
	if got := e.PullRequestNumber(); got != "" {
		t.Errorf("PullRequestNumber() = %q, want empty", got)
	}
}

func TestGenericCI_FallsBackToGit(t *testing.T) {
	e := newTestEnv(t, map[string]string{"CI": "1"}, WithGit(&fakeGit{branch: "local-branch"}))
	if got := e.CI(); got != ProviderUnknown {
		t.Errorf("CI() = %q", got)
	}
	if got := e.CIVersion(); got != ProviderUnknown {
		t.Errorf("CIVersion() = %q", got)
	}
	if got := e.Branch(); got != "local-branch" {
		t.Errorf("Branch() = %q", got)
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"4", 4},
		{" 12", 12},
		{"3 nodes", 3},
		{"-1", -1},
		{"+2", 2},
		{"abc", 0},
		{"", 0},
		{"-", 0},
	}
	for _, tt := range tests {
		if got := parseInt(tt.in); got != tt.want {
			t.Errorf("parseInt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestContext_AggregatesAccessors(t *testing.T) {
	e := newTestEnv(t, map[string]string{
		"CIRCLECI":          "true",
		"CIRCLE_SHA1":       "circle-commit-sha",
		"CIRCLE_BRANCH":     "circle-branch",
		"CIRCLE_BUILD_NUM":  "9",
		"CIRCLE_NODE_TOTAL": "2",
		"PERCY_PROJECT":     "org/project",
	})
	ctx := e.Context()

	if ctx.CI != ProviderCircle || ctx.CIVersion != ProviderCircle {
		t.Errorf("CI = %q / %q", ctx.CI, ctx.CIVersion)
	}
	if ctx.Commit.SHA != "circle-commit-sha" || ctx.Commit.Branch != "circle-branch" {
		t.Errorf("Commit = %+v", ctx.Commit)
	}
	if ctx.ParallelNonce != "9" || ctx.ParallelTotalShards != 2 {
		t.Errorf("parallel = %q / %d", ctx.ParallelNonce, ctx.ParallelTotalShards)
	}
	if ctx.Project != "org/project" {
		t.Errorf("Project = %q", ctx.Project)
	}
}
