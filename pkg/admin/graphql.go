package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrGraphQL wraps query-level errors returned in an otherwise-successful
// GraphQL response.
var ErrGraphQL = errors.New("admin: graphql query failed")

// GraphQLResponse is the Admin GraphQL envelope.
type GraphQLResponse struct {
	Data       json.RawMessage    `json:"data"`
	Errors     []GraphQLError     `json:"errors,omitempty"`
	Extensions *GraphQLExtensions `json:"extensions,omitempty"`
}

// GraphQLError is one entry of the errors array.
type GraphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// GraphQLExtensions reports the query-cost accounting the platform
// attaches to every response.
type GraphQLExtensions struct {
	Cost struct {
		RequestedQueryCost float64 `json:"requestedQueryCost"`
		ActualQueryCost    float64 `json:"actualQueryCost"`
		ThrottleStatus     struct {
			MaximumAvailable   float64 `json:"maximumAvailable"`
			CurrentlyAvailable float64 `json:"currentlyAvailable"`
			RestoreRate        float64 `json:"restoreRate"`
		} `json:"throttleStatus"`
	} `json:"cost"`
}

// GraphQL executes a query against the shop's Admin GraphQL endpoint.
// Queries rejected with a THROTTLED error are retried after waiting for
// the cost bucket to restore. Other query errors come back wrapped in
// ErrGraphQL alongside the response, which still carries partial data.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any) (*GraphQLResponse, error) {
	payload, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("admin: encode graphql request: %w", err)
	}

	var lastErr error
	for try := 1; try <= c.maxTries; try++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("admin: rate limit wait: %w", err)
		}

		resp, err := c.graphqlRoundTrip(ctx, payload)
		if err != nil {
			lastErr = err
			wait, retryable := retryDelay(err)
			if !retryable || try == c.maxTries {
				return nil, err
			}
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if !throttled(resp) {
			if len(resp.Errors) > 0 {
				return resp, fmt.Errorf("%w: %s", ErrGraphQL, resp.Errors[0].Message)
			}
			return resp, nil
		}

		lastErr = fmt.Errorf("%w: throttled", ErrGraphQL)
		if try == c.maxTries {
			break
		}

		wait := restoreWait(resp.Extensions)
		c.log.Debug("graphql query throttled", "shop", c.shop, "try", try, "wait", wait)
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) graphqlRoundTrip(ctx context.Context, payload []byte) (*GraphQLResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/graphql.json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("admin: create graphql request: %w", err)
	}
	req.Header.Set(AccessTokenHeader, c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("admin: graphql request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("admin: read graphql response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		apiErr := newAPIError(httpResp, body)
		if apiErr.Throttled() {
			apiErr.RetryAfter = parseRetryAfter(httpResp.Header.Get("Retry-After"))
		}
		return nil, apiErr
	}

	var resp GraphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("admin: decode graphql response: %w", err)
	}
	return &resp, nil
}

func throttled(resp *GraphQLResponse) bool {
	for _, e := range resp.Errors {
		if e.Extensions.Code == "THROTTLED" {
			return true
		}
	}
	return false
}

// restoreWait estimates how long until the cost bucket can afford the
// query, from the throttle status attached to the rejection.
func restoreWait(ext *GraphQLExtensions) time.Duration {
	if ext == nil {
		return time.Second
	}

	cost := ext.Cost
	deficit := cost.RequestedQueryCost - cost.ThrottleStatus.CurrentlyAvailable
	if deficit <= 0 || cost.ThrottleStatus.RestoreRate <= 0 {
		return time.Second
	}

	return time.Duration(deficit / cost.ThrottleStatus.RestoreRate * float64(time.Second))
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
