package platform

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/acmecorp/go-mobile-access/core"
)

type scriptedResponse struct {
	status  int
	body    string
	headers map[string]string
}

type scriptedDoer struct {
	mu        sync.Mutex
	responses []scriptedResponse
	requests  []*http.Request
	bodies    []string
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	body := ""
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		body = string(raw)
	}
	d.requests = append(d.requests, req)
	d.bodies = append(d.bodies, body)

	next := scriptedResponse{status: http.StatusOK, body: "{}"}
	if len(d.responses) > 0 {
		next = d.responses[0]
		d.responses = d.responses[1:]
	}
	header := http.Header{}
	for key, value := range next.headers {
		header.Set(key, value)
	}
	return &http.Response{
		StatusCode: next.status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(next.body)),
	}, nil
}

func (d *scriptedDoer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

type stubTokenSource struct {
	mu          sync.Mutex
	issued      int
	invalidated int
}

func (s *stubTokenSource) Token(context.Context) (core.BearerToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return core.BearerToken{
		Value:     "tok-" + strings.Repeat("x", s.issued),
		TokenType: "Bearer",
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (s *stubTokenSource) Invalidate(core.BearerToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated++
}

func newTestClient(t *testing.T, doer *scriptedDoer) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL:            "https://api.origo.example.com",
		ApplicationID:      "acme-mobile-access",
		ApplicationVersion: "1.0.0",
		MaxAttempts:        4,
		RetryPolicy:        ExponentialRetryPolicy{Initial: time.Millisecond, Max: time.Millisecond},
	}, doer, &stubTokenSource{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestClient_CreatePassRetriesTransientWithStableIdempotencyKey(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: http.StatusServiceUnavailable, body: ""},
		{status: http.StatusServiceUnavailable, body: ""},
		{status: http.StatusCreated, body: `{"id":"pass-1","userId":"usr-1","passTemplateId":"tpl-badge","status":"PENDING"}`},
	}}
	client := newTestClient(t, doer)

	pass, err := client.CreatePass(context.Background(), "usr-1", "tpl-badge")
	if err != nil {
		t.Fatalf("create pass: %v", err)
	}
	if pass.PassID != "pass-1" {
		t.Fatalf("expected pass-1, got %q", pass.PassID)
	}
	if doer.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", doer.callCount())
	}

	keys := map[string]struct{}{}
	for _, req := range doer.requests {
		key := req.Header.Get("Idempotency-Key")
		if key == "" {
			t.Fatalf("expected every attempt to carry an idempotency key")
		}
		keys[key] = struct{}{}
	}
	if len(keys) != 1 {
		t.Fatalf("expected one idempotency key across retries, got %d", len(keys))
	}
}

func TestClient_UnauthorizedInvalidatesAndRetriesOnce(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: http.StatusUnauthorized, body: ""},
		{status: http.StatusOK, body: `{"id":"pass-1","userId":"usr-1","passTemplateId":"tpl-badge"}`},
	}}
	tokens := &stubTokenSource{}
	client, err := NewClient(ClientConfig{BaseURL: "https://api.example.com"}, doer, tokens)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	pass, err := client.GetPass(context.Background(), "pass-1")
	if err != nil {
		t.Fatalf("get pass: %v", err)
	}
	if pass.PassID != "pass-1" {
		t.Fatalf("expected pass-1, got %q", pass.PassID)
	}
	if tokens.invalidated != 1 {
		t.Fatalf("expected one token invalidation, got %d", tokens.invalidated)
	}
	if doer.callCount() != 2 {
		t.Fatalf("expected one retry after 401, got %d attempts", doer.callCount())
	}

	first := doer.requests[0].Header.Get("Authorization")
	second := doer.requests[1].Header.Get("Authorization")
	if first == second {
		t.Fatalf("expected the retry to carry a fresh token")
	}
}

func TestClient_RepeatedUnauthorizedSurfaces(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: http.StatusUnauthorized, body: ""},
		{status: http.StatusUnauthorized, body: ""},
	}}
	client := newTestClient(t, doer)

	_, err := client.GetPass(context.Background(), "pass-1")
	if err == nil {
		t.Fatalf("expected repeated 401 to surface")
	}
	if core.TextCode(err) != core.ErrorUnauthorized {
		t.Fatalf("expected %s, got %s", core.ErrorUnauthorized, core.TextCode(err))
	}
	if doer.callCount() != 2 {
		t.Fatalf("expected exactly one refresh retry, got %d attempts", doer.callCount())
	}
}

func TestClient_DoesNotRetryPermanentFailures(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: http.StatusNotFound, body: ""},
	}}
	client := newTestClient(t, doer)

	_, err := client.GetPass(context.Background(), "pass-missing")
	if err == nil {
		t.Fatalf("expected 404 to surface")
	}
	if core.TextCode(err) != core.ErrorNotFound {
		t.Fatalf("expected %s, got %s", core.ErrorNotFound, core.TextCode(err))
	}
	if doer.callCount() != 1 {
		t.Fatalf("expected no retries on 404, got %d attempts", doer.callCount())
	}
}

func TestClient_ExhaustsAttemptsOnPersistentOutage(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: http.StatusServiceUnavailable},
		{status: http.StatusServiceUnavailable},
		{status: http.StatusServiceUnavailable},
		{status: http.StatusServiceUnavailable},
		{status: http.StatusServiceUnavailable},
	}}
	client := newTestClient(t, doer)

	_, err := client.GetPass(context.Background(), "pass-1")
	if err == nil {
		t.Fatalf("expected persistent outage to surface")
	}
	if core.TextCode(err) != core.ErrorPlatformUnavailable {
		t.Fatalf("expected %s, got %s", core.ErrorPlatformUnavailable, core.TextCode(err))
	}
	if doer.callCount() != 4 {
		t.Fatalf("expected MaxAttempts(4) calls, got %d", doer.callCount())
	}
}

func TestClient_RateLimitSurfacesAsRetryable(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: http.StatusTooManyRequests, headers: map[string]string{"Retry-After": "0"}},
		{status: http.StatusOK, body: `{"id":"pass-1"}`},
	}}
	client := newTestClient(t, doer)

	pass, err := client.GetPass(context.Background(), "pass-1")
	if err != nil {
		t.Fatalf("get pass after 429: %v", err)
	}
	if pass.PassID != "pass-1" {
		t.Fatalf("expected pass-1, got %q", pass.PassID)
	}
	if doer.callCount() != 2 {
		t.Fatalf("expected one retry after 429, got %d attempts", doer.callCount())
	}
}

func TestClient_CreateUserSendsSCIMShape(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: http.StatusCreated, body: `{"id":"usr-1","externalId":"EMP-12345","emails":[{"value":"sam.rivera@acme.com"}]}`},
	}}
	client := newTestClient(t, doer)

	created, err := client.CreateUser(context.Background(), core.EnterpriseUser{
		ExternalID: "EMP-12345",
		Email:      "sam.rivera@acme.com",
		GivenName:  "Sam",
		FamilyName: "Rivera",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.PlatformUserID != "usr-1" {
		t.Fatalf("expected platform user id usr-1, got %q", created.PlatformUserID)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(doer.bodies[0]), &payload); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	schemas, _ := payload["schemas"].([]any)
	if len(schemas) != 1 || schemas[0] != "urn:ietf:params:scim:schemas:core:2.0:User" {
		t.Fatalf("expected scim schema in payload, got %v", payload["schemas"])
	}
	if payload["externalId"] != "EMP-12345" {
		t.Fatalf("expected external id in payload, got %v", payload["externalId"])
	}
	if payload["displayName"] != "Sam Rivera" {
		t.Fatalf("expected derived display name, got %v", payload["displayName"])
	}

	req := doer.requests[0]
	if req.Header.Get("Application-ID") != "acme-mobile-access" {
		t.Fatalf("expected Application-ID header, got %q", req.Header.Get("Application-ID"))
	}
	if !strings.HasPrefix(req.Header.Get("Authorization"), "Bearer ") {
		t.Fatalf("expected bearer authorization, got %q", req.Header.Get("Authorization"))
	}
}

func TestClient_IssuanceTokenExtractsValue(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: http.StatusOK, body: `{"issuanceToken":"IT_abc123"}`},
	}}
	client := newTestClient(t, doer)

	token, err := client.IssuanceToken(context.Background(), "pass-1")
	if err != nil {
		t.Fatalf("issuance token: %v", err)
	}
	if token.Value != "IT_abc123" {
		t.Fatalf("unexpected token value")
	}
	if token.PassID != "pass-1" {
		t.Fatalf("expected token bound to pass-1, got %q", token.PassID)
	}
	if got := doer.requests[0].URL.Path; got != "/pass/pass-1/issuanceToken" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestClient_RegisterCallbackRequiresPairedSecret(t *testing.T) {
	client := newTestClient(t, &scriptedDoer{})
	_, err := client.RegisterCallback(context.Background(), core.CallbackRegistration{
		URL:        "https://acme.example.com/webhooks/access",
		HTTPHeader: "Authorization",
	})
	if err == nil {
		t.Fatalf("expected header without secret to be rejected")
	}
	if core.TextCode(err) != core.ErrorBadInput {
		t.Fatalf("expected %s, got %s", core.ErrorBadInput, core.TextCode(err))
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if got := parseRetryAfter("7", now); got != 7*time.Second {
		t.Fatalf("expected 7s, got %s", got)
	}
	if got := parseRetryAfter(now.Add(30*time.Second).UTC().Format(http.TimeFormat), now); got != 30*time.Second {
		t.Fatalf("expected 30s from http date, got %s", got)
	}
	if got := parseRetryAfter("", now); got != 0 {
		t.Fatalf("expected zero for missing header, got %s", got)
	}
	if got := parseRetryAfter("-3", now); got != 0 {
		t.Fatalf("expected zero for negative header, got %s", got)
	}
}

func TestExponentialRetryPolicy_DoublesAndCaps(t *testing.T) {
	policy := ExponentialRetryPolicy{Initial: 100 * time.Millisecond, Max: 350 * time.Millisecond}
	if got := policy.NextDelay(0); got != 100*time.Millisecond {
		t.Fatalf("attempt 0: got %s", got)
	}
	if got := policy.NextDelay(1); got != 200*time.Millisecond {
		t.Fatalf("attempt 1: got %s", got)
	}
	if got := policy.NextDelay(5); got != 350*time.Millisecond {
		t.Fatalf("expected cap, got %s", got)
	}
}
