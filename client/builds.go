package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/percy/percy-go/environment"
	"github.com/percy/percy-go/resource"
)

// ErrMissingBuildID is returned by build-scoped calls given an empty id.
var ErrMissingBuildID = errors.New("client: build id is required")

// BuildOptions configures CreateBuild.
type BuildOptions struct {
	// Project is the "org/project" slug. Empty creates the build against the
	// project bound to the token.
	Project string
	// Resources are attached to the build at creation (optional).
	Resources []*resource.Resource
	// Commit replaces the resolved commit data when set.
	Commit *environment.CommitData
}

// buildAttributes is the wire form of a build. Empty values are sent as
// null rather than omitted.
type buildAttributes struct {
	Branch               *string `json:"branch"`
	TargetBranch         *string `json:"target-branch"`
	TargetCommitSha      *string `json:"target-commit-sha"`
	CommitSha            *string `json:"commit-sha"`
	CommitCommittedAt    *string `json:"commit-committed-at"`
	CommitAuthorName     *string `json:"commit-author-name"`
	CommitAuthorEmail    *string `json:"commit-author-email"`
	CommitCommitterName  *string `json:"commit-committer-name"`
	CommitCommitterEmail *string `json:"commit-committer-email"`
	CommitMessage        *string `json:"commit-message"`
	PullRequestNumber    *string `json:"pull-request-number"`
	ParallelNonce        *string `json:"parallel-nonce"`
	ParallelTotalShards  *int    `json:"parallel-total-shards"`
	Partial              bool    `json:"partial"`
}

type resourceLinkage struct {
	Data []resource.Record `json:"data"`
}

type buildRelationships struct {
	Resources resourceLinkage `json:"resources"`
}

type buildData struct {
	Type          string              `json:"type"`
	Attributes    buildAttributes     `json:"attributes"`
	Relationships *buildRelationships `json:"relationships,omitempty"`
}

type buildPayload struct {
	Data buildData `json:"data"`
}

// CreateBuild registers a build for the current commit. The response
// carries the build id and the resources the server is missing.
//
// Parallel metadata is all-or-nothing: when either the nonce or the shard
// count is unknown, both are sent as null.
func (c *Client) CreateBuild(ctx context.Context, opts BuildOptions) (*Document, error) {
	payload := c.buildPayload(opts)

	path := "/builds/"
	if opts.Project != "" {
		path = "/projects/" + opts.Project + "/builds/"
	}

	doc, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    path,
		body:    payload,
		timeout: c.config.Timeout,
	})
	if err != nil {
		return nil, err
	}

	c.metrics.IncBuildCreated()
	if doc.Data != nil {
		c.metrics.SetBuildID(doc.Data.ID)
		c.logger.Info("build created", map[string]any{
			"build_id":          doc.Data.ID,
			"missing_resources": len(MissingResources(doc)),
		})
	}
	return doc, nil
}

func (c *Client) buildPayload(opts BuildOptions) buildPayload {
	env := c.env

	var commit environment.CommitData
	if opts.Commit != nil {
		commit = *opts.Commit
	} else {
		commit = env.CommitData()
	}

	nonce := env.ParallelNonce()
	total := env.ParallelTotalShards()

	attrs := buildAttributes{
		Branch:               nullString(commit.Branch),
		TargetBranch:         nullString(env.TargetBranch()),
		TargetCommitSha:      nullString(env.TargetCommitSha()),
		CommitSha:            nullString(commit.SHA),
		CommitCommittedAt:    nullString(commit.CommittedAt),
		CommitAuthorName:     nullString(commit.AuthorName),
		CommitAuthorEmail:    nullString(commit.AuthorEmail),
		CommitCommitterName:  nullString(commit.CommitterName),
		CommitCommitterEmail: nullString(commit.CommitterEmail),
		CommitMessage:        nullString(commit.Message),
		PullRequestNumber:    nullString(env.PullRequestNumber()),
		Partial:              env.PartialBuild(),
	}
	if nonce != "" && total != 0 {
		attrs.ParallelNonce = &nonce
		attrs.ParallelTotalShards = &total
	}

	data := buildData{Type: "builds", Attributes: attrs}
	if opts.Resources != nil {
		data.Relationships = &buildRelationships{
			Resources: resourceLinkage{Data: resource.SerializeAll(opts.Resources)},
		}
	}
	return buildPayload{Data: data}
}

// GetBuild fetches a build by id.
func (c *Client) GetBuild(ctx context.Context, buildID string) (*Document, error) {
	if buildID == "" {
		return nil, ErrMissingBuildID
	}
	return c.do(ctx, request{
		method:  http.MethodGet,
		path:    "/builds/" + url.PathEscape(buildID),
		timeout: c.config.Timeout,
	})
}

// BuildFilter narrows GetBuilds. Zero fields are not sent.
type BuildFilter struct {
	SHA    string
	SHAs   []string
	Branch string
	State  string
}

func (f BuildFilter) query() url.Values {
	q := url.Values{}
	if f.SHA != "" {
		q.Set("filter[sha]", f.SHA)
	}
	for _, sha := range f.SHAs {
		q.Add("filter[shas][]", sha)
	}
	if f.Branch != "" {
		q.Set("filter[branch]", f.Branch)
	}
	if f.State != "" {
		q.Set("filter[state]", f.State)
	}
	return q
}

// GetBuilds lists builds of project, newest first as returned by the server.
func (c *Client) GetBuilds(ctx context.Context, project string, filter BuildFilter) (*Document, error) {
	if project == "" {
		return nil, errors.New("client: project is required")
	}
	path := "/projects/" + project + "/builds"
	if q := filter.query(); len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.do(ctx, request{
		method:  http.MethodGet,
		path:    path,
		timeout: c.config.Timeout,
	})
}

// FinalizeOptions configures FinalizeBuild.
type FinalizeOptions struct {
	// AllShards finalizes every shard of a parallel build at once.
	AllShards bool
}

// FinalizeBuild marks the build complete.
func (c *Client) FinalizeBuild(ctx context.Context, buildID string, opts FinalizeOptions) (*Document, error) {
	if buildID == "" {
		return nil, ErrMissingBuildID
	}
	path := "/builds/" + url.PathEscape(buildID) + "/finalize"
	if opts.AllShards {
		path += "?all-shards=true"
	}
	doc, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    path,
		body:    struct{}{},
		timeout: c.config.Timeout,
	})
	if err != nil {
		return nil, err
	}
	c.metrics.IncBuildFinalized()
	c.logger.Info("build finalized", map[string]any{"build_id": buildID, "all_shards": opts.AllShards})
	return doc, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
