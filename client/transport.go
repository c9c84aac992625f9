package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/percy/percy-go/iox"
	"github.com/percy/percy-go/metrics"
)

// ErrTimeout marks an attempt that exceeded its per-attempt deadline.
var ErrTimeout = errors.New("client: request timed out")

// maxErrorBody caps how much of a failed response body is retained.
const maxErrorBody = 1 << 20

// Error is the single error type returned for failed remote calls.
// StatusCode is 0 when no HTTP response was received.
type Error struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
	// Body is the raw response body of the last attempt.
	Body []byte
	// Attempts is how many attempts were made.
	Attempts int
	// Err is the underlying transport error, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("client: ")
	if e.Method != "" {
		fmt.Fprintf(&b, "%s %s: ", e.Method, e.URL)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "status %d: ", e.StatusCode)
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " (after %d attempts)", e.Attempts)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient: a 5xx status, a
// connection reset, or a timeout. 4xx and all other errors are permanent.
func (e *Error) Retryable() bool { return e.retryReason() != "" }

// DecodeBody unmarshals the response body into v.
func (e *Error) DecodeBody(v any) error {
	if len(e.Body) == 0 {
		return errors.New("client: empty error body")
	}
	return json.Unmarshal(e.Body, v)
}

func (e *Error) retryReason() string {
	switch {
	case e.StatusCode >= 500:
		return metrics.RetryServerError
	case e.StatusCode != 0:
		return ""
	case e.Err == nil:
		return ""
	case errors.Is(e.Err, ErrTimeout), errors.Is(e.Err, syscall.ETIMEDOUT):
		return metrics.RetryTimeout
	case errors.Is(e.Err, syscall.ECONNRESET),
		errors.Is(e.Err, io.EOF),
		errors.Is(e.Err, io.ErrUnexpectedEOF),
		strings.Contains(e.Err.Error(), "connection reset"):
		// A server closing the socket before responding surfaces as EOF.
		return metrics.RetryConnReset
	}
	return ""
}

// request is one logical API call, possibly spanning several attempts.
type request struct {
	method  string
	path    string
	body    any
	timeout time.Duration
}

// do runs req under the retry policy and decodes the success body.
func (c *Client) do(ctx context.Context, req request) (*Document, error) {
	target := c.apiURL + req.path

	var payload []byte
	if req.body != nil {
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return nil, &Error{Method: req.method, URL: target, Message: "marshal request", Err: err}
		}
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Method: req.method, URL: target, Message: "context canceled", Attempts: attempt - 1, Err: err}
		}

		c.metrics.IncRequest()
		doc, apiErr := c.attempt(ctx, req.method, target, payload, req.timeout)
		if apiErr == nil {
			return doc, nil
		}
		apiErr.Attempts = attempt

		reason := apiErr.retryReason()
		if reason == "" || attempt >= c.config.MaxAttempts || ctx.Err() != nil {
			c.metrics.IncRequestFailed()
			if reason != "" {
				c.logger.Warn("request failed after retries", map[string]any{
					"method":   req.method,
					"url":      target,
					"status":   apiErr.StatusCode,
					"attempts": attempt,
				})
			}
			return nil, apiErr
		}

		c.metrics.IncRetry(reason)
		c.logger.Debug("retrying request", map[string]any{
			"method":  req.method,
			"url":     target,
			"status":  apiErr.StatusCode,
			"reason":  reason,
			"attempt": attempt,
		})

		select {
		case <-ctx.Done():
			return nil, &Error{Method: req.method, URL: target, Message: "context canceled during retry wait", Attempts: attempt, Err: ctx.Err()}
		case <-time.After(c.config.RetryInterval):
		}
	}
}

// attempt performs a single HTTP exchange bounded by timeout.
func (c *Client) attempt(ctx context.Context, method, target string, payload []byte, timeout time.Duration) (*Document, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target, body)
	if err != nil {
		return nil, &Error{Method: method, URL: target, Message: "create request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Token token="+c.config.Token)
	httpReq.Header.Set("User-Agent", c.UserAgent())
	if payload != nil {
		httpReq.Header.Set("Content-Type", ContentType)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, method, target, "request failed", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := iox.ReadAllLimit(resp.Body, maxErrorBody)
		return nil, &Error{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, data),
			Body:       data,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, method, target, "read response", err)
	}

	doc := &Document{Raw: data}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, &Error{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Message:    "decode response",
			Body:       data,
			Err:        err,
		}
	}
	return doc, nil
}

// transportError classifies a failure without an HTTP status. An expired
// attempt deadline is reported as ErrTimeout only when the caller's own
// context is still live.
func (c *Client) transportError(parent, attemptCtx context.Context, method, target, msg string, err error) *Error {
	if parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return &Error{Method: method, URL: target, Message: msg, Err: err}
}

// errorMessage prefers the first JSON-API error detail in body.
func errorMessage(status int, body []byte) string {
	var doc struct {
		Errors []APIError `json:"errors"`
	}
	if json.Unmarshal(body, &doc) == nil && len(doc.Errors) > 0 {
		if d := doc.Errors[0].Detail; d != "" {
			return d
		}
		if t := doc.Errors[0].Title; t != "" {
			return t
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unexpected status"
}
