// Package client talks to the visual-diff service API.
//
// A Client creates builds, uploads content-addressed resources the server
// reports missing, registers snapshots and finalizes builds. Every call is
// retried on transient failures (5xx, connection reset, timeout) with a
// fixed attempt budget, and bulk uploads run on a bounded worker pool.
package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/percy/percy-go/environment"
	"github.com/percy/percy-go/log"
	"github.com/percy/percy-go/metrics"
	"github.com/percy/percy-go/types"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultTimeout                 = 30 * time.Second
	DefaultUploadTimeoutMultiplier = 3
	DefaultMaxAttempts             = 5
	DefaultRetryInterval           = 100 * time.Millisecond
	DefaultConcurrency             = 2
	DefaultMaxConnections          = 5
)

// ContentType is sent on every request with a body.
const ContentType = "application/vnd.api+json"

// ErrMissingToken is returned by New when no API token is configured.
var ErrMissingToken = errors.New("client: token is required")

// Config configures a Client.
type Config struct {
	// Token authenticates every request (required).
	Token string
	// APIURL is the API root (default types.DefaultAPIURL).
	APIURL string
	// Environment supplies build context (default environment.FromOS()).
	Environment *environment.Environment

	// ClientInfo, EnvironmentInfo and SDKInfo are optional caller
	// descriptors folded into the User-Agent.
	ClientInfo      string
	EnvironmentInfo string
	SDKInfo         string

	// Timeout bounds each metadata request attempt (default 30s).
	Timeout time.Duration
	// UploadTimeoutMultiplier scales Timeout for resource uploads (default 3).
	UploadTimeoutMultiplier int
	// MaxAttempts is the total attempt budget per call, including the
	// first (default 5).
	MaxAttempts int
	// RetryInterval is the fixed wait between attempts (default 100ms).
	RetryInterval time.Duration
	// Concurrency is the ceiling on in-flight uploads (default 2).
	Concurrency int
	// MaxConnections bounds sockets to the API host (default 5).
	MaxConnections int

	// HTTPClient replaces the pooled client built from MaxConnections.
	HTTPClient *http.Client
	// Logger defaults to log.Nop().
	Logger *log.Logger
	// Metrics is optional.
	Metrics *metrics.Collector
}

// Client is safe for concurrent use.
type Client struct {
	config  Config
	apiURL  string
	http    *http.Client
	ownHTTP bool
	env     *environment.Environment
	logger  *log.Logger
	metrics *metrics.Collector
}

// New validates cfg, applies defaults and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.APIURL == "" {
		cfg.APIURL = types.DefaultAPIURL
	}
	if _, err := url.ParseRequestURI(cfg.APIURL); err != nil {
		return nil, fmt.Errorf("client: invalid API URL %q: %w", cfg.APIURL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UploadTimeoutMultiplier <= 0 {
		cfg.UploadTimeoutMultiplier = DefaultUploadTimeoutMultiplier
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryInterval < 0 {
		return nil, fmt.Errorf("client: retry interval must be >= 0, got %s", cfg.RetryInterval)
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.Environment == nil {
		cfg.Environment = environment.FromOS()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}

	c := &Client{
		config:  cfg,
		apiURL:  strings.TrimRight(cfg.APIURL, "/"),
		http:    cfg.HTTPClient,
		env:     cfg.Environment,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if c.http == nil {
		c.http = &http.Client{Transport: newTransport(cfg.MaxConnections)}
		c.ownHTTP = true
	}
	return c, nil
}

// newTransport returns a keep-alive pool capped at maxConns sockets per host.
// Per-attempt deadlines come from request contexts, not the client.
func newTransport(maxConns int) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxConnsPerHost:       maxConns,
		MaxIdleConnsPerHost:   maxConns,
		MaxIdleConns:          maxConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// Environment returns the resolver used for build context.
func (c *Client) Environment() *environment.Environment { return c.env }

// APIURL returns the normalized API root.
func (c *Client) APIURL() string { return c.apiURL }

// Close releases idle pooled connections.
func (c *Client) Close() error {
	if c.ownHTTP {
		c.http.CloseIdleConnections()
	}
	return nil
}

func (c *Client) uploadTimeout() time.Duration {
	return c.config.Timeout * time.Duration(c.config.UploadTimeoutMultiplier)
}
