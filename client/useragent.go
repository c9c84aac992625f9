package client

import (
	"path"
	"runtime"
	"strings"

	"github.com/percy/percy-go/types"
)

// UserAgent returns the User-Agent sent with every request:
//
//	Percy/<api> [sdk] [client] percy-go/<version> ([env]; go/<version>; <ci>)
//
// Empty descriptors are omitted. The CI segment is resolved per call.
func (c *Client) UserAgent() string {
	client := joinNonEmpty(" ",
		"Percy/"+c.apiVersion(),
		c.config.SDKInfo,
		c.config.ClientInfo,
		types.ClientName+"/"+types.Version,
	)
	env := joinNonEmpty("; ",
		c.config.EnvironmentInfo,
		"go/"+strings.TrimPrefix(runtime.Version(), "go"),
		c.env.CIVersion(),
	)
	return client + " (" + env + ")"
}

// apiVersion is the last path segment of the API URL, e.g. "v1".
func (c *Client) apiVersion() string {
	u := c.apiURL
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	if !strings.Contains(u, "/") {
		return ""
	}
	return path.Base(u)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
