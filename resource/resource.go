// Package resource models content-addressed static assets.
//
// A Resource is identified by the SHA-256 of its bytes. Content is either
// held inline or read lazily from LocalPath at upload time, so gathering a
// large asset tree does not keep every file in memory.
package resource

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// RecordType is the JSON-API type of a serialized resource.
const RecordType = "resources"

// Construction errors.
var (
	ErrMissingURL     = errors.New("resource: URL is required")
	ErrURLWhitespace  = errors.New("resource: URL must not contain whitespace")
	ErrMissingContent = errors.New("resource: SHA or content is required")
	// ErrNoContent is returned by ReadContent for a resource that carries
	// neither inline content nor a local path.
	ErrNoContent = errors.New("resource: no content available")
)

// Options configures a Resource.
type Options struct {
	// URL is the path the asset is served from, e.g. "/assets/app.css".
	URL string
	// SHA is the hex SHA-256 of the content. Derived from Content when empty.
	SHA string
	// Content is the raw asset bytes (optional when SHA is set).
	Content []byte
	// Mimetype is reported to the server when non-empty.
	Mimetype string
	// IsRoot marks the snapshot's root document.
	IsRoot bool
	// LocalPath is read at upload time when Content is nil. Never serialized.
	LocalPath string
}

// Resource is an immutable content-addressed asset.
type Resource struct {
	url       string
	sha       string
	content   []byte
	mimetype  string
	isRoot    bool
	localPath string
}

// New validates opts and returns a Resource.
func New(opts Options) (*Resource, error) {
	if opts.URL == "" {
		return nil, ErrMissingURL
	}
	if strings.IndexFunc(opts.URL, unicode.IsSpace) >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrURLWhitespace, opts.URL)
	}
	if opts.SHA == "" && opts.Content == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingContent, opts.URL)
	}

	sha := opts.SHA
	if sha == "" {
		sha = SHA256Hash(opts.Content)
	}

	var content []byte
	if opts.Content != nil {
		content = make([]byte, len(opts.Content))
		copy(content, opts.Content)
	}

	return &Resource{
		url:       opts.URL,
		sha:       sha,
		content:   content,
		mimetype:  opts.Mimetype,
		isRoot:    opts.IsRoot,
		localPath: opts.LocalPath,
	}, nil
}

// URL returns the resource URL.
func (r *Resource) URL() string { return r.url }

// SHA returns the hex SHA-256 identifier.
func (r *Resource) SHA() string { return r.sha }

// Mimetype returns the mimetype, or "".
func (r *Resource) Mimetype() string { return r.mimetype }

// IsRoot reports whether this is the root document.
func (r *Resource) IsRoot() bool { return r.isRoot }

// LocalPath returns the deferred content path, or "".
func (r *Resource) LocalPath() string { return r.localPath }

// HasContent reports whether inline content was supplied.
func (r *Resource) HasContent() bool { return r.content != nil }

// ReadContent returns the resource bytes: inline content when present,
// otherwise the file at LocalPath. The returned slice must not be modified.
func (r *Resource) ReadContent() ([]byte, error) {
	if r.content != nil {
		return r.content, nil
	}
	if r.localPath == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, r.url)
	}
	data, err := os.ReadFile(r.localPath)
	if err != nil {
		return nil, fmt.Errorf("resource: read %s: %w", r.localPath, err)
	}
	return data, nil
}

// Record is the JSON-API wire form of a Resource.
type Record struct {
	Type       string     `json:"type"`
	ID         string     `json:"id"`
	Attributes Attributes `json:"attributes"`
}

// Attributes are the serialized resource attributes. Absent values encode
// as JSON null; is-root is either true or null, never false.
type Attributes struct {
	ResourceURL string  `json:"resource-url"`
	Mimetype    *string `json:"mimetype"`
	IsRoot      *bool   `json:"is-root"`
}

// Serialize returns the wire record.
func (r *Resource) Serialize() Record {
	rec := Record{
		Type: RecordType,
		ID:   r.sha,
		Attributes: Attributes{
			ResourceURL: r.url,
		},
	}
	if r.mimetype != "" {
		mimetype := r.mimetype
		rec.Attributes.Mimetype = &mimetype
	}
	if r.isRoot {
		isRoot := true
		rec.Attributes.IsRoot = &isRoot
	}
	return rec
}

// SerializeAll serializes resources in order.
func SerializeAll(resources []*Resource) []Record {
	out := make([]Record, 0, len(resources))
	for _, r := range resources {
		out = append(out, r.Serialize())
	}
	return out
}
