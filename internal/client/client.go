// Package client implements the source and target catalog API clients.
// Every network call acquires a rate limiter permit first and runs under the
// shared retry policy; the callers only see typed domain values and the
// error taxonomy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"catalog-sync/internal/httpx"
	"catalog-sync/internal/models"
	"catalog-sync/internal/ratelimit"
	"catalog-sync/internal/util"
)

type rest struct {
	api     string
	baseURL string
	http    *http.Client
	tokens  httpx.TokenSource
	limiter *ratelimit.Limiter
	policy  httpx.RetryPolicy
	logger  *zap.Logger
}

func newREST(api, baseURL string, tokens httpx.TokenSource, limiter *ratelimit.Limiter, policy httpx.RetryPolicy, timeout time.Duration) *rest {
	return &rest{
		api:     api,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		limiter: limiter,
		policy:  policy,
		logger:  util.GetLogger(),
	}
}

// doJSON performs one logical API call: permit, bearer token, request,
// bounded retry, JSON decode into out (out may be nil for fire-and-forget
// calls). A non-JSON or undecodable body is a SchemaError, not a retry.
func (c *rest) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if err := c.limiter.Acquire(ctx, c.api); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	start := time.Now()
	defer func() {
		util.ExternalRequestDuration.WithLabelValues(c.api, method).Observe(time.Since(start).Seconds())
	}()

	return httpx.Do(ctx, c.api, c.policy, func(ctx context.Context) (int, error) {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			// Rejected credentials are final; Do never retries a 401. Any
			// other provider failure (token endpoint down, transport error)
			// is transient and retried like a failed request.
			var authErr *models.AuthError
			if errors.As(err, &authErr) {
				return http.StatusUnauthorized, err
			}
			return 0, err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return 0, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return 0, fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// Drain so the connection can be reused across retries.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return resp.StatusCode, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return resp.StatusCode, nil
		}

		ct := resp.Header.Get("Content-Type")
		if ct != "" && !strings.Contains(ct, "application/json") {
			return resp.StatusCode, &models.SchemaError{API: c.api, Detail: "expected JSON response, got " + ct}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, &models.SchemaError{API: c.api, Detail: "undecodable response body: " + err.Error()}
		}
		return resp.StatusCode, nil
	})
}
