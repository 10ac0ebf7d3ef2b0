// Package platform is the outbound HTTP client for the credential
// cloud platform. It owns request signing, retry classification, and
// the 401 refresh-and-retry handshake; callers never see a raw
// http.Response.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/acmecorp/go-mobile-access/core"
)

const (
	defaultRequestTimeout    = 30 * time.Second
	defaultMaxAttempts       = 4
	defaultResponseBodyLimit = int64(10 << 20)

	headerApplicationID      = "Application-ID"
	headerApplicationVersion = "Application-Version"
	headerIdempotencyKey     = "Idempotency-Key"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource supplies the bearer token for outbound calls and accepts
// invalidation when the platform rejects one.
type TokenSource interface {
	Token(ctx context.Context) (core.BearerToken, error)
	Invalidate(seen core.BearerToken)
}

// RetryPolicy computes the pause before retry attempt N (0-based).
type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	max := p.Max
	if max <= 0 {
		max = 8 * time.Second
	}
	delay := initial
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

type ClientConfig struct {
	BaseURL            string
	ApplicationID      string
	ApplicationVersion string
	RequestTimeout     time.Duration
	MaxAttempts        int
	RetryPolicy        RetryPolicy
	Logger             core.Logger
	Now                func() time.Time
}

// Client talks to the platform REST API. Every call acquires a bearer
// token from the token source, classifies the response, and retries
// transient failures with bounded exponential backoff. The same
// idempotency key is reused across retries of a single logical call.
type Client struct {
	config ClientConfig
	client HTTPDoer
	tokens TokenSource
	logger core.Logger
}

func NewClient(cfg ClientConfig, client HTTPDoer, tokens TokenSource) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, core.NewError("platform: base url is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	if tokens == nil {
		return nil, core.NewError("platform: token source is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = ExponentialRetryPolicy{}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Client{
		config: cfg,
		client: client,
		tokens: tokens,
		logger: glog.Ensure(cfg.Logger),
	}, nil
}

type request struct {
	Method         string
	Path           string
	Body           any
	IdempotencyKey string
}

type response struct {
	StatusCode int
	Body       []byte
	retryAfter time.Duration
}

// outcome classification drives the retry loop: transient failures
// back off and retry, auth failures invalidate the token and retry
// once, permanent failures surface immediately.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeTransient
	outcomeAuth
	outcomePermanent
)

func classify(statusCode int) outcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return outcomeSuccess
	case statusCode == http.StatusUnauthorized:
		return outcomeAuth
	case statusCode == http.StatusTooManyRequests:
		return outcomeTransient
	case statusCode >= 500:
		return outcomeTransient
	default:
		return outcomePermanent
	}
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	if c == nil || c.client == nil {
		return core.NewError("platform: client is not configured", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	var retryAfter time.Duration
	refreshed := false
	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.delayFor(retryAfter, attempt-1)); err != nil {
				return err
			}
		}
		retryAfter = 0

		res, err := c.execute(ctx, req)
		if err != nil {
			lastErr = err
			if core.IsTransient(err) {
				continue
			}
			return err
		}

		switch classify(res.StatusCode) {
		case outcomeSuccess:
			return decodeBody(res.Body, out)
		case outcomeAuth:
			if refreshed {
				return c.statusError(req, res)
			}
			refreshed = true
			// Retry immediately with a fresh token. The stale token was
			// invalidated inside execute.
			attempt--
			lastErr = c.statusError(req, res)
		case outcomeTransient:
			lastErr = c.statusError(req, res)
			retryAfter = res.retryAfter
		case outcomePermanent:
			return c.statusError(req, res)
		}
	}

	if lastErr == nil {
		lastErr = core.NewError("platform: request failed", goerrors.CategoryExternal, core.ErrorPlatformUnavailable, map[string]any{"path": req.Path})
	}
	return lastErr
}

func (c *Client) execute(ctx context.Context, req request) (response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return response{}, err
	}

	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return response{}, core.WrapError(err, goerrors.CategoryInternal, "platform: encode request body", core.ErrorInternal, map[string]any{"path": req.Path})
		}
		bodyReader = bytes.NewReader(encoded)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, req.Method, c.config.BaseURL+req.Path, bodyReader)
	if err != nil {
		return response{}, core.WrapError(err, goerrors.CategoryInternal, "platform: build request", core.ErrorInternal, map[string]any{"path": req.Path})
	}
	httpReq.Header.Set("Authorization", token.TokenType+" "+token.Value)
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(c.config.ApplicationID) != "" {
		httpReq.Header.Set(headerApplicationID, c.config.ApplicationID)
	}
	if strings.TrimSpace(c.config.ApplicationVersion) != "" {
		httpReq.Header.Set(headerApplicationVersion, c.config.ApplicationVersion)
	}
	if strings.TrimSpace(req.IdempotencyKey) != "" {
		httpReq.Header.Set(headerIdempotencyKey, req.IdempotencyKey)
	}

	httpRes, err := c.client.Do(httpReq)
	if err != nil {
		return response{}, core.WrapError(err, goerrors.CategoryExternal, "platform: execute request", core.ErrorPlatformUnavailable, map[string]any{
			"method": req.Method,
			"path":   req.Path,
		})
	}
	defer httpRes.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpRes.Body, defaultResponseBodyLimit))
	if err != nil {
		return response{}, core.WrapError(err, goerrors.CategoryExternal, "platform: read response body", core.ErrorPlatformUnavailable, map[string]any{
			"path":        req.Path,
			"status_code": httpRes.StatusCode,
		})
	}

	if httpRes.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate(token)
	}

	retryAfter := parseRetryAfter(httpRes.Header.Get("Retry-After"), c.config.Now())
	c.logger.Debug("platform request",
		"method", req.Method,
		"path", req.Path,
		"status_code", httpRes.StatusCode,
	)
	return response{StatusCode: httpRes.StatusCode, Body: body, retryAfter: retryAfter}, nil
}

func (c *Client) statusError(req request, res response) error {
	metadata := map[string]any{
		"method":      req.Method,
		"path":        req.Path,
		"status_code": res.StatusCode,
	}
	if res.retryAfter > 0 {
		metadata["retry_after_ms"] = res.retryAfter.Milliseconds()
	}

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return core.NewError("platform: request unauthorized", goerrors.CategoryAuth, core.ErrorUnauthorized, metadata)
	case res.StatusCode == http.StatusNotFound:
		return core.NewError("platform: resource not found", goerrors.CategoryNotFound, core.ErrorNotFound, metadata)
	case res.StatusCode == http.StatusTooManyRequests:
		return core.NewError("platform: rate limited", goerrors.CategoryRateLimit, core.ErrorRateLimited, metadata)
	case res.StatusCode >= 500:
		return core.NewError(
			fmt.Sprintf("platform: upstream returned status %d", res.StatusCode),
			goerrors.CategoryExternal,
			core.ErrorPlatformUnavailable,
			metadata,
		)
	default:
		return core.NewError(
			fmt.Sprintf("platform: request rejected with status %d", res.StatusCode),
			goerrors.CategoryBadInput,
			core.ErrorBadInput,
			metadata,
		)
	}
}

func (c *Client) delayFor(retryAfter time.Duration, attempt int) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	return c.config.RetryPolicy.NextDelay(attempt)
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return core.WrapError(ctx.Err(), goerrors.CategoryExternal, "platform: retry wait canceled", core.ErrorPlatformUnavailable, nil)
	case <-timer.C:
		return nil
	}
}

func decodeBody(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return core.WrapError(err, goerrors.CategoryExternal, "platform: decode response body", core.ErrorPlatformUnavailable, nil)
	}
	return nil
}

// parseRetryAfter accepts both forms the header allows: delay seconds
// and an HTTP date.
func parseRetryAfter(raw string, now time.Time) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if delay := at.Sub(now); delay > 0 {
			return delay
		}
	}
	return 0
}
