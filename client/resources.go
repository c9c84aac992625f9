package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/percy/percy-go/resource"
)

// ErrUnknownResource is returned by UploadMissingResources when the server
// reports a missing SHA that no local resource carries.
var ErrUnknownResource = errors.New("client: server requested an unknown resource")

type uploadAttributes struct {
	Base64Content string `json:"base64-content"`
}

type uploadData struct {
	Type       string           `json:"type"`
	ID         string           `json:"id"`
	Attributes uploadAttributes `json:"attributes"`
}

type uploadPayload struct {
	Data uploadData `json:"data"`
}

// UploadResource uploads content to the build, keyed by its SHA-256.
// Uploads use the longer upload timeout. Repeating an upload is harmless:
// the server stores content by hash.
func (c *Client) UploadResource(ctx context.Context, buildID string, content []byte) (*Document, error) {
	if buildID == "" {
		return nil, ErrMissingBuildID
	}
	sha := resource.SHA256Hash(content)

	doc, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/builds/" + url.PathEscape(buildID) + "/resources/",
		body: uploadPayload{Data: uploadData{
			Type:       resource.RecordType,
			ID:         sha,
			Attributes: uploadAttributes{Base64Content: resource.Base64Encode(content)},
		}},
		timeout: c.uploadTimeout(),
	})
	if err != nil {
		return nil, err
	}

	c.metrics.AddUpload(int64(len(content)))
	c.logger.Debug("resource uploaded", map[string]any{"sha": sha, "bytes": len(content)})
	return doc, nil
}

// UploadResources uploads resources with at most Config.Concurrency
// uploads in flight. Content is read per resource when its slot opens, so
// at most Concurrency payloads are held in memory. Resources sharing a
// SHA are uploaded once.
//
// After the first failure no further uploads start; in-flight uploads are
// canceled and the first error is returned. Completion order is
// unspecified.
func (c *Client) UploadResources(ctx context.Context, buildID string, resources []*resource.Resource) error {
	if buildID == "" {
		return ErrMissingBuildID
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, c.config.Concurrency)
	var wg sync.WaitGroup

	var (
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	seen := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		if r == nil {
			continue
		}
		if _, dup := seen[r.SHA()]; dup {
			c.metrics.IncDeduped()
			continue
		}
		seen[r.SHA()] = struct{}{}

		// Acquire a slot (bounded concurrency).
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(r *resource.Resource) {
			defer wg.Done()
			defer func() { <-sem }()

			content, err := r.ReadContent()
			if err != nil {
				fail(err)
				return
			}
			if _, err := c.UploadResource(ctx, buildID, content); err != nil {
				fail(fmt.Errorf("upload %s: %w", r.URL(), err))
			}
		}(r)
	}

	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// UploadMissingResources uploads exactly those resources whose SHA the
// server listed as missing in the CreateBuild response doc. When nothing
// is missing it returns without any request.
func (c *Client) UploadMissingResources(ctx context.Context, buildID string, doc *Document, resources []*resource.Resource) error {
	missing := MissingResources(doc)

	bySHA := make(map[string]*resource.Resource, len(resources))
	for _, r := range resources {
		if r != nil {
			bySHA[r.SHA()] = r
		}
	}

	if len(missing) == 0 {
		c.metrics.AddSkipped(int64(len(bySHA)))
		return nil
	}

	upload := make([]*resource.Resource, 0, len(missing))
	for _, id := range missing {
		r, ok := bySHA[id.ID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownResource, id.ID)
		}
		upload = append(upload, r)
	}

	c.metrics.AddSkipped(int64(len(bySHA) - len(upload)))
	c.logger.Debug("uploading missing resources", map[string]any{
		"missing": len(upload),
		"local":   len(bySHA),
	})
	return c.UploadResources(ctx, buildID, upload)
}
