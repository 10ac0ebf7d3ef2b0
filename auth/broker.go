// Package auth acquires and caches the OAuth2 client-credentials
// bearer token used for every outbound call to the credential
// platform.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/acmecorp/go-mobile-access/core"
)

const (
	defaultSafetyMargin   = 60 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultTokenTTL       = time.Hour
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type BrokerConfig struct {
	TokenURL       string
	ClientID       string
	ClientSecret   string
	SafetyMargin   time.Duration
	RequestTimeout time.Duration
	Now            func() time.Time
}

// Broker owns the cached bearer token. Refreshes are single-flight:
// while one refresh is on the wire, concurrent callers wait for its
// result instead of issuing their own.
type Broker struct {
	config BrokerConfig
	client HTTPDoer

	mu       sync.Mutex
	token    core.BearerToken
	inflight *refreshCall
}

type refreshCall struct {
	done  chan struct{}
	token core.BearerToken
	err   error
}

func NewBroker(cfg BrokerConfig, client HTTPDoer) (*Broker, error) {
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, core.NewError("auth: token url is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, core.NewError("auth: client credentials are required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = defaultSafetyMargin
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Broker{config: cfg, client: client}, nil
}

// Token returns the cached bearer token while it has more than the
// safety margin of life left, refreshing otherwise. A failed refresh
// surfaces its error and does not evict a cached token.
func (b *Broker) Token(ctx context.Context) (core.BearerToken, error) {
	if b == nil {
		return core.BearerToken{}, core.NewError("auth: broker is nil", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}

	b.mu.Lock()
	now := b.config.Now().UTC()
	if b.token.Valid(now, b.config.SafetyMargin) {
		token := b.token
		b.mu.Unlock()
		return token, nil
	}
	if b.inflight != nil {
		call := b.inflight
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			return core.BearerToken{}, core.WrapError(ctx.Err(), goerrors.CategoryExternal, "auth: token wait canceled", core.ErrorPlatformUnavailable, nil)
		case <-call.done:
		}
		return call.token, call.err
	}
	call := &refreshCall{done: make(chan struct{})}
	b.inflight = call
	b.mu.Unlock()

	token, err := b.refresh(ctx)

	b.mu.Lock()
	if err == nil {
		b.token = token
	}
	b.inflight = nil
	b.mu.Unlock()

	call.token = token
	call.err = err
	close(call.done)
	return token, err
}

// Invalidate drops the cached token, but only when it is still the
// token the caller observed. A 401 handler racing a refresh that
// already replaced the token must not evict the fresh one.
func (b *Broker) Invalidate(seen core.BearerToken) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token.Value != "" && b.token.Value == seen.Value {
		b.token = core.BearerToken{}
	}
}

func (b *Broker) refresh(ctx context.Context) (core.BearerToken, error) {
	form := url.Values{}
	form.Set("client_id", b.config.ClientID)
	form.Set("client_secret", b.config.ClientSecret)
	form.Set("grant_type", "client_credentials")

	requestCtx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, b.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return core.BearerToken{}, core.WrapError(err, goerrors.CategoryInternal, "auth: build token request", core.ErrorInternal, nil)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := b.client.Do(req)
	if err != nil {
		return core.BearerToken{}, core.WrapError(err, goerrors.CategoryExternal, "auth: token request failed", core.ErrorPlatformUnavailable, nil)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		category := goerrors.CategoryExternal
		textCode := core.ErrorPlatformUnavailable
		if res.StatusCode >= 400 && res.StatusCode < 500 {
			category = goerrors.CategoryAuth
			textCode = core.ErrorUnauthorized
		}
		return core.BearerToken{}, core.NewError(
			fmt.Sprintf("auth: token endpoint returned status %d", res.StatusCode),
			category,
			textCode,
			map[string]any{"status_code": res.StatusCode},
		)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return core.BearerToken{}, core.WrapError(err, goerrors.CategoryExternal, "auth: decode token response", core.ErrorPlatformUnavailable, nil)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return core.BearerToken{}, core.NewError("auth: token response missing access_token", goerrors.CategoryExternal, core.ErrorPlatformUnavailable, nil)
	}

	ttl := defaultTokenTTL
	if payload.ExpiresIn > 0 {
		ttl = time.Duration(payload.ExpiresIn) * time.Second
	}
	tokenType := payload.TokenType
	if strings.TrimSpace(tokenType) == "" {
		tokenType = "Bearer"
	}
	now := b.config.Now().UTC()
	return core.BearerToken{
		Value:     payload.AccessToken,
		TokenType: tokenType,
		ExpiresAt: now.Add(ttl),
	}, nil
}
