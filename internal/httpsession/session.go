// Package httpsession builds the retrying HTTP sessions every external
// client (registry, upload area, downstream store) goes through, plus the
// status-code error type their callers branch on.
package httpsession

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Defaults for the shared retry discipline: capped exponential backoff with
// both status-level and connection-level retries.
const (
	DefaultRetryMax     = 17
	DefaultRetryWaitMin = 600 * time.Millisecond
	DefaultRetryWaitMax = 30 * time.Second
)

// retryStatusCodes are the transient statuses the session retries. Conflicts
// (409) are not retried: the lock protocols depend on observing them.
var retryStatusCodes = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Error is a non-2xx response surfaced to callers
type Error struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsStatus reports whether err is an HTTP error with the given status
func IsStatus(err error, status int) bool {
	var httpErr *Error
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.StatusCode == status
}

// IsConflict reports whether err is an HTTP 409
func IsConflict(err error) bool {
	return IsStatus(err, http.StatusConflict)
}

// New creates a retrying HTTP client. retryMax <= 0 uses the default cap.
func New(log *zap.Logger, retryMax int) *retryablehttp.Client {
	if log == nil {
		log = zap.NewNop()
	}
	if retryMax <= 0 {
		retryMax = DefaultRetryMax
	}

	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = DefaultRetryWaitMin
	client.RetryWaitMax = DefaultRetryWaitMax
	client.Logger = &leveledLogger{log.Sugar()}
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		return resp != nil && retryStatusCodes[resp.StatusCode], nil
	}
	return client
}

// leveledLogger adapts zap to retryablehttp's logging interface
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...any) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.s.Warnw(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

// Request describes one HTTP call made through Do
type Request struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string
}

// Do performs a request and returns the response body. Non-2xx statuses come
// back as *Error with the body attached.
func Do(ctx context.Context, client *retryablehttp.Client, req Request) ([]byte, http.Header, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: failed to read response: %w", req.Method, req.URL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.Header, &Error{
			StatusCode: resp.StatusCode,
			Method:     req.Method,
			URL:        req.URL,
			Body:       truncate(string(data), 512),
		}
	}
	return data, resp.Header, nil
}

// DoJSON performs a request with a JSON body and decodes a JSON response
// into out when out is non-nil.
func DoJSON(ctx context.Context, client *retryablehttp.Client, method, url string, in, out any, headers map[string]string) error {
	req := Request{Method: method, URL: url, Headers: map[string]string{}}
	for key, value := range headers {
		req.Headers[key] = value
	}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		req.Body = data
		if _, ok := req.Headers["Content-Type"]; !ok {
			req.Headers["Content-Type"] = "application/json"
		}
	}

	data, _, err := Do(ctx, client, req)
	if err != nil {
		return err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, url, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
