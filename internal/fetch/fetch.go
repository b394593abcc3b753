package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds a single request, connect through body read.
	DefaultTimeout = 60 * time.Second
	// DefaultAttempts is the total number of tries per download.
	DefaultAttempts = 3
	// DefaultDelay is the backoff before the second attempt; it doubles
	// on each subsequent one.
	DefaultDelay = time.Second
	// DefaultUserAgent is sent when the caller supplies no User-Agent.
	DefaultUserAgent = "addongrab/1.0"

	// defaultRateLimitDelay is the flat wait after a 429 response. It
	// replaces the exponential schedule for that attempt instead of
	// advancing it.
	defaultRateLimitDelay = 5 * time.Second

	// chunkSize is the read granularity for response bodies.
	chunkSize = 8 * 1024
)

// ErrNotFound indicates the server answered 404 for the requested URL.
var ErrNotFound = errors.New("not found")

// StatusError reports an HTTP response status that the pipeline does not
// handle. Match with errors.As to recover the numeric code.
type StatusError struct {
	Code int
}

// Error returns the status code in a human-readable form.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// IsRateLimited reports whether err represents an HTTP 429 response.
func IsRateLimited(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusTooManyRequests
}

// Progress observes download progress. It is invoked after each chunk
// with the bytes received so far and the total reported by the server.
// It is purely observational; errors and retries do not depend on it.
type Progress func(received, total int64)

// Options configure a single fetch.
type Options struct {
	// Headers are set verbatim on the request.
	Headers map[string]string
	// Progress, when non-nil, is called as body bytes arrive. It only
	// fires when the server reports a Content-Length.
	Progress Progress
	// RetryOn429 makes rate-limited responses retryable with a flat
	// delay. The Firefox addon API is the only endpoint that wants this.
	RetryOn429 bool
}

// Policy parameterizes the retry behavior shared by every network call
// site.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Delay is the backoff before the second attempt; it doubles on
	// each subsequent one.
	Delay time.Duration
	// RateLimitDelay is the flat wait applied after a 429 response in
	// place of the exponential schedule.
	RateLimitDelay time.Duration
}

// DefaultPolicy returns the standard 3-attempt exponential policy.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:       DefaultAttempts,
		Delay:          DefaultDelay,
		RateLimitDelay: defaultRateLimitDelay,
	}
}

// Client issues HTTP GET requests with retry and backoff.
type Client struct {
	http   *http.Client
	clock  clock.Clock
	policy Policy
}

// NewClient creates a Client with the default timeout and retry policy.
func NewClient() *Client {
	return NewClientWithPolicy(DefaultTimeout, DefaultPolicy(), clock.WallClock)
}

// NewClientWithPolicy creates a Client with an explicit timeout, retry
// policy, and clock. The clock is injectable so tests can avoid real
// backoff sleeps.
func NewClientWithPolicy(timeout time.Duration, policy Policy, clk clock.Clock) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
		},
		clock:  clk,
		policy: policy,
	}
}

// Fetch downloads url and returns the response body. Transport errors
// are retried per the client policy; after the final attempt the last
// underlying error is surfaced.
func (c *Client) Fetch(ctx context.Context, url string, opts Options) ([]byte, error) {
	var body []byte
	var rateLimited bool

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			b, err := c.fetchOnce(ctx, url, opts)
			if err != nil {
				rateLimited = opts.RetryOn429 && IsRateLimited(err)
				return err
			}
			body = b
			return nil
		},
		IsFatalError: func(err error) bool {
			if ctx.Err() != nil {
				return true
			}
			if rateLimited {
				return false
			}
			// Status-level errors are the server speaking; retrying
			// the same request will not change its mind.
			var statusErr *StatusError
			return errors.Is(err, ErrNotFound) || errors.As(err, &statusErr)
		},
		NotifyFunc: func(err error, attempt int) {
			logrus.WithFields(logrus.Fields{
				"url":     url,
				"attempt": attempt,
			}).WithError(err).Debug("fetch attempt failed")
		},
		Attempts: c.policy.Attempts,
		Delay:    c.policy.Delay,
		BackoffFunc: func(delay time.Duration, attempt int) time.Duration {
			if rateLimited {
				return c.policy.RateLimitDelay
			}
			return retry.DoubleDelay(delay, attempt)
		},
		Clock: c.clock,
		Stop:  ctx.Done(),
	})
	if err != nil {
		if retry.IsAttemptsExceeded(err) {
			return nil, errors.Wrapf(retry.LastError(err), "download failed after %d attempts", c.policy.Attempts)
		}
		if retry.IsRetryStopped(err) {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return body, nil
}

// fetchOnce performs a single GET and reads the full body in fixed-size
// chunks.
func (c *Client) fetchOnce(ctx context.Context, url string, opts Options) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}

	req.Header.Set("User-Agent", DefaultUserAgent)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Code: resp.StatusCode}
	}

	total := resp.ContentLength
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}

	chunk := make([]byte, chunkSize)
	var received int64
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			received += int64(n)
			if opts.Progress != nil && total > 0 {
				opts.Progress(received, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read response body")
		}
	}

	return buf.Bytes(), nil
}
