package environment

// Context is every resolved field in one value, for display and logging.
// It is computed fresh by each call to (*Environment).Context.
type Context struct {
	CI                  string     `json:"ci" yaml:"ci"`
	CIVersion           string     `json:"ci_version" yaml:"ci_version"`
	Project             string     `json:"project" yaml:"project"`
	Commit              CommitData `json:"commit" yaml:"commit"`
	TargetBranch        string     `json:"target_branch" yaml:"target_branch"`
	TargetCommitSha     string     `json:"target_commit_sha" yaml:"target_commit_sha"`
	PullRequestNumber   string     `json:"pull_request_number" yaml:"pull_request_number"`
	ParallelNonce       string     `json:"parallel_nonce" yaml:"parallel_nonce"`
	ParallelTotalShards int        `json:"parallel_total_shards" yaml:"parallel_total_shards"`
	PartialBuild        bool       `json:"partial_build" yaml:"partial_build"`
}

// Context resolves every accessor once.
func (e *Environment) Context() Context {
	return Context{
		CI:                  e.CI(),
		CIVersion:           e.CIVersion(),
		Project:             e.Project(),
		Commit:              e.CommitData(),
		TargetBranch:        e.TargetBranch(),
		TargetCommitSha:     e.TargetCommitSha(),
		PullRequestNumber:   e.PullRequestNumber(),
		ParallelNonce:       e.ParallelNonce(),
		ParallelTotalShards: e.ParallelTotalShards(),
		PartialBuild:        e.PartialBuild(),
	}
}
