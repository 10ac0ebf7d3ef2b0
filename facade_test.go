package access_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	access "github.com/acmecorp/go-mobile-access"
	"github.com/acmecorp/go-mobile-access/core"
	"github.com/acmecorp/go-mobile-access/query"
	"github.com/acmecorp/go-mobile-access/webhooks"
)

const callbackSecret = "cb-secret"

type routedDoer struct {
	mu       sync.Mutex
	requests []string
}

func (d *routedDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req.Method+" "+req.URL.Path)
	d.mu.Unlock()

	switch {
	case strings.HasSuffix(req.URL.Path, "/token"):
		return jsonResponse(http.StatusOK, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`), nil
	case req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, "/user"):
		return jsonResponse(http.StatusCreated, `{"id":"usr-plat-1","externalId":"EMP-1"}`), nil
	case req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, "/pass"):
		return jsonResponse(http.StatusCreated, `{"id":"pass-1","userId":"usr-plat-1","passTemplateId":"tpl-badge","status":"CREATED"}`), nil
	case strings.HasSuffix(req.URL.Path, "/issuanceToken"):
		return jsonResponse(http.StatusOK, `{"issuanceToken":"IT_secret_1"}`), nil
	case req.Method == http.MethodPatch || req.Method == http.MethodDelete:
		return jsonResponse(http.StatusOK, `{}`), nil
	default:
		return jsonResponse(http.StatusOK, `{}`), nil
	}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func testConfig() access.Config {
	cfg := access.DefaultConfig()
	cfg.OrganizationID = "org-1"
	cfg.ClientID = "client-1"
	cfg.ClientSecret = "hunter2"
	cfg.Callback.Secret = callbackSecret
	return cfg
}

func TestNew_RequiresValidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ClientSecret = ""
	if _, err := access.New(cfg); err == nil {
		t.Fatalf("expected missing client secret to fail")
	}
}

func TestService_ProvisionEndToEnd(t *testing.T) {
	doer := &routedDoer{}
	svc, err := access.New(testConfig(), access.WithHTTPClient(doer))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := svc.Provision(context.Background(), access.ProvisionRequest{
		User:       core.EnterpriseUser{ExternalID: "EMP-1", Email: "sam@acme.com"},
		TemplateID: "tpl-badge",
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if result.User.PlatformUserID != "usr-plat-1" {
		t.Fatalf("expected synced user, got %q", result.User.PlatformUserID)
	}
	if result.Pass.PassID != "pass-1" {
		t.Fatalf("expected platform pass id, got %q", result.Pass.PassID)
	}
	if result.Pass.Status != core.PassStatusTokenIssued {
		t.Fatalf("expected TOKEN_ISSUED, got %q", result.Pass.Status)
	}
	if result.Token == nil || result.Token.Value != "IT_secret_1" {
		t.Fatalf("expected issuance token from platform")
	}

	current, ok := svc.Orchestrator().Machine().Current("pass-1")
	if !ok {
		t.Fatalf("expected tracked pass")
	}
	if current.Status != core.PassStatusTokenIssued {
		t.Fatalf("expected tracked TOKEN_ISSUED, got %q", current.Status)
	}
}

func TestService_IngestAppliesSignedCallback(t *testing.T) {
	doer := &routedDoer{}
	svc, err := access.New(testConfig(), access.WithHTTPClient(doer))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.Provision(context.Background(), access.ProvisionRequest{
		User:       core.EnterpriseUser{ExternalID: "EMP-1", Email: "sam@acme.com"},
		TemplateID: "tpl-badge",
	}); err != nil {
		t.Fatalf("provision: %v", err)
	}

	body := []byte(`{"id":"evt-1","type":"PASS_PROVISIONED","subject":"pass/pass-1"}`)
	receipt, err := svc.Ingest(context.Background(), webhooks.Delivery{
		Headers: map[string]string{"X-Access-Signature": signTestBody(body)},
		Body:    body,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !receipt.Accepted {
		t.Fatalf("expected accepted delivery")
	}

	current, ok := svc.Orchestrator().Machine().Current("pass-1")
	if !ok {
		t.Fatalf("expected tracked pass")
	}
	if current.Status != core.PassStatusProvisioned {
		t.Fatalf("expected PROVISIONED after callback, got %q", current.Status)
	}
}

func TestService_IngestRejectsTamperedSignature(t *testing.T) {
	doer := &routedDoer{}
	svc, err := access.New(testConfig(), access.WithHTTPClient(doer))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	body := []byte(`{"id":"evt-2","type":"PASS_PROVISIONED","subject":"pass/pass-1"}`)
	receipt, err := svc.Ingest(context.Background(), webhooks.Delivery{
		Headers: map[string]string{"X-Access-Signature": "deadbeef"},
		Body:    body,
	})
	if err == nil {
		t.Fatalf("expected signature rejection")
	}
	if receipt.Accepted {
		t.Fatalf("expected rejected delivery")
	}
	if code := core.TextCode(err); code != core.ErrorUnauthorized {
		t.Fatalf("expected %s, got %s", core.ErrorUnauthorized, code)
	}
}

func TestService_IngestWithoutVerifierFails(t *testing.T) {
	cfg := testConfig()
	cfg.Callback.Secret = ""
	svc, err := access.New(cfg, access.WithHTTPClient(&routedDoer{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.Ingest(context.Background(), webhooks.Delivery{Body: []byte(`{}`)}); err == nil {
		t.Fatalf("expected unconfigured ingest to fail")
	}
}

func TestNewFacade_BuildsCommands(t *testing.T) {
	svc, err := access.New(testConfig(), access.WithHTTPClient(&routedDoer{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	facade, err := access.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.Provision == nil || commands.SuspendPass == nil || commands.RegisterCallback == nil {
		t.Fatalf("expected wired commands, got %#v", commands)
	}
	if facade.Service() != svc {
		t.Fatalf("expected facade to expose its service")
	}

	if _, err := access.NewFacade(nil); err == nil {
		t.Fatalf("expected nil service to fail")
	}
}

func TestFacadeQueries_AnswerFromConfiguredReader(t *testing.T) {
	svc, err := access.New(testConfig(), access.WithHTTPClient(&routedDoer{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	reader := &stubPassReader{passes: map[string]core.Pass{
		"pass-1": {PassID: "pass-1", UserID: "usr-1", Status: core.PassStatusActive},
	}}
	facade, err := access.NewFacade(svc, access.WithPassReader(reader))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	pass, err := facade.Queries().GetPass.Query(context.Background(), query.GetPassMessage{PassID: "pass-1"})
	if err != nil {
		t.Fatalf("get pass query: %v", err)
	}
	if pass.Status != core.PassStatusActive {
		t.Fatalf("expected ACTIVE pass, got %q", pass.Status)
	}

	if _, err := facade.Queries().GetUser.Query(context.Background(), query.GetUserMessage{ExternalID: "EMP-1"}); err == nil {
		t.Fatalf("expected missing user reader to fail")
	}
}

type stubPassReader struct {
	passes map[string]core.Pass
}

func (s *stubPassReader) Get(_ context.Context, passID string) (core.Pass, error) {
	pass, ok := s.passes[passID]
	if !ok {
		return core.Pass{}, errors.New("pass not found")
	}
	return pass, nil
}

func (s *stubPassReader) ListByUser(_ context.Context, userID string) ([]core.Pass, error) {
	out := []core.Pass{}
	for _, pass := range s.passes {
		if pass.UserID == userID {
			out = append(out, pass)
		}
	}
	return out, nil
}

func signTestBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(callbackSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
