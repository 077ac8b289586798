package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RequestOptions carry optional query parameters and headers for a single
// REST call.
type RequestOptions struct {
	Query   url.Values
	Headers map[string]string
}

// Get fetches a resource and decodes the JSON response into out. A nil
// out discards the body. The path is relative to the versioned API root;
// ".json" is appended when missing, so "products/42" and "products/42.json"
// are equivalent.
func (c *Client) Get(ctx context.Context, path string, out any, opts *RequestOptions) error {
	return c.do(ctx, http.MethodGet, path, nil, out, opts)
}

// Post creates a resource. body is JSON-encoded; out receives the
// decoded response when non-nil.
func (c *Client) Post(ctx context.Context, path string, body, out any, opts *RequestOptions) error {
	return c.do(ctx, http.MethodPost, path, body, out, opts)
}

// Put updates a resource. body is JSON-encoded; out receives the decoded
// response when non-nil.
func (c *Client) Put(ctx context.Context, path string, body, out any, opts *RequestOptions) error {
	return c.do(ctx, http.MethodPut, path, body, out, opts)
}

// Delete removes a resource.
func (c *Client) Delete(ctx context.Context, path string, opts *RequestOptions) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, opts)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, opts *RequestOptions) error {
	endpoint, err := c.restURL(path, opts)
	if err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("admin: encode %s %s: %w", method, path, err)
		}
	}

	var lastErr error
	for try := 1; try <= c.maxTries; try++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("admin: rate limit wait: %w", err)
		}

		respBody, err := c.roundTrip(ctx, method, endpoint, payload, opts)
		if err == nil {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("admin: decode %s %s: %w", method, path, err)
			}
			return nil
		}

		lastErr = err

		wait, retryable := retryDelay(err)
		if !retryable || try == c.maxTries {
			break
		}

		c.log.Debug("admin request retrying",
			"method", method, "path", path, "try", try, "wait", wait, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return lastErr
}

// roundTrip performs one attempt and returns the response body, or an
// *APIError for non-2xx statuses.
func (c *Client) roundTrip(ctx context.Context, method, endpoint string, payload []byte, opts *RequestOptions) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("admin: create request: %w", err)
	}

	req.Header.Set(AccessTokenHeader, c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts != nil {
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("admin: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("admin: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp, body)
		if apiErr.Throttled() {
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return nil, apiErr
	}

	return body, nil
}

func (c *Client) restURL(path string, opts *RequestOptions) (string, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "", fmt.Errorf("admin: empty resource path")
	}
	if !strings.HasSuffix(path, ".json") {
		path += ".json"
	}

	endpoint := c.baseURL() + "/" + path
	if opts != nil && len(opts.Query) > 0 {
		endpoint += "?" + opts.Query.Encode()
	}
	return endpoint, nil
}

// retryDelay decides whether an attempt's error is worth retrying and how
// long to back off first. 429s honor Retry-After; 5xx use a fixed pause.
func retryDelay(err error) (time.Duration, bool) {
	apiErr, ok := err.(*APIError)
	if !ok {
		return 0, false
	}

	switch {
	case apiErr.Throttled():
		if apiErr.RetryAfter > 0 {
			return apiErr.RetryAfter, true
		}
		return time.Second, true
	case apiErr.StatusCode >= 500:
		return time.Second, true
	}
	return 0, false
}

// parseRetryAfter handles the platform's fractional-seconds form as well
// as the standard integer one.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
