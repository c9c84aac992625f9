package client

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/percy/percy-go/environment"
	"github.com/percy/percy-go/metrics"
)

const testToken = "test-token"

var noGit = environment.GitFunc(func(...string) (string, error) {
	return "", errors.New("git unavailable")
})

func testEnv(t *testing.T, vars map[string]string) *environment.Environment {
	t.Helper()
	if vars == nil {
		vars = map[string]string{}
	}
	env, err := environment.New(vars, environment.WithGit(noGit))
	if err != nil {
		t.Fatalf("environment.New: %v", err)
	}
	return env
}

// newTestClient points a client at server with a fast retry interval.
func newTestClient(t *testing.T, server *httptest.Server, mutate ...func(*Config)) (*Client, *metrics.Collector) {
	t.Helper()
	m := metrics.NewCollector("test-session", "")
	cfg := Config{
		Token:         testToken,
		APIURL:        server.URL + "/api/v1",
		Environment:   testEnv(t, nil),
		RetryInterval: time.Millisecond,
		Metrics:       m,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, m
}
