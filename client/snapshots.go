package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/percy/percy-go/resource"
)

// ErrMissingSnapshotID is returned by FinalizeSnapshot given an empty id.
var ErrMissingSnapshotID = errors.New("client: snapshot id is required")

// SnapshotOptions configures CreateSnapshot. Zero values are sent as null
// so the server applies its own defaults.
type SnapshotOptions struct {
	Name             string
	Widths           []int
	MinimumHeight    int
	EnableJavaScript bool
}

type snapshotAttributes struct {
	Name             *string `json:"name"`
	EnableJavaScript *bool   `json:"enable-javascript"`
	Widths           []int   `json:"widths"`
	MinimumHeight    *int    `json:"minimum-height"`
}

type snapshotData struct {
	Type          string             `json:"type"`
	Attributes    snapshotAttributes `json:"attributes"`
	Relationships buildRelationships `json:"relationships"`
}

type snapshotPayload struct {
	Data snapshotData `json:"data"`
}

// CreateSnapshot registers a snapshot of the build referencing resources.
// The response lists any of those resources the server is missing.
func (c *Client) CreateSnapshot(ctx context.Context, buildID string, resources []*resource.Resource, opts SnapshotOptions) (*Document, error) {
	if buildID == "" {
		return nil, ErrMissingBuildID
	}

	attrs := snapshotAttributes{
		Name:   nullString(opts.Name),
		Widths: opts.Widths,
	}
	if opts.EnableJavaScript {
		enabled := true
		attrs.EnableJavaScript = &enabled
	}
	if opts.MinimumHeight != 0 {
		height := opts.MinimumHeight
		attrs.MinimumHeight = &height
	}

	doc, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/builds/" + url.PathEscape(buildID) + "/snapshots/",
		body: snapshotPayload{Data: snapshotData{
			Type:       "snapshots",
			Attributes: attrs,
			Relationships: buildRelationships{
				Resources: resourceLinkage{Data: resource.SerializeAll(resources)},
			},
		}},
		timeout: c.config.Timeout,
	})
	if err != nil {
		return nil, err
	}
	c.metrics.IncSnapshotCreated()
	return doc, nil
}

// FinalizeSnapshot marks a snapshot's resources as complete.
func (c *Client) FinalizeSnapshot(ctx context.Context, snapshotID string) (*Document, error) {
	if snapshotID == "" {
		return nil, ErrMissingSnapshotID
	}
	return c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/snapshots/" + url.PathEscape(snapshotID) + "/finalize",
		body:    struct{}{},
		timeout: c.config.Timeout,
	})
}
