package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// APIError is a non-2xx Admin API response. Messages holds the flattened
// error strings from the body; RequestID is the platform's trace header
// when present.
type APIError struct {
	StatusCode int
	Messages   []string
	RequestID  string

	// RetryAfter is the platform's requested backoff on 429 responses.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("admin: HTTP %d: %s", e.StatusCode, msg)
}

// Throttled reports whether the request was rate limited.
func (e *APIError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// newAPIError flattens the platform's error body. The "errors" key may be
// a string, a list, or a map of field name to message(s).
func newAPIError(resp *http.Response, body []byte) *APIError {
	e := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
	}

	var envelope struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Errors) == 0 {
		return e
	}

	e.Messages = flattenErrors(envelope.Errors)
	return e
}

func flattenErrors(raw json.RawMessage) []string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return []string{s}
	}

	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return list
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) == nil {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var out []string
		for _, k := range keys {
			for _, msg := range flattenErrors(fields[k]) {
				out = append(out, k+": "+msg)
			}
		}
		return out
	}

	return []string{string(raw)}
}
