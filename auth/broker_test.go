package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubTokenServer struct {
	mu        sync.Mutex
	calls     int32
	delay     time.Duration
	failures  int
	lastBody  string
	expiresIn int
}

func (s *stubTokenServer) Do(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	body, _ := io.ReadAll(req.Body)

	s.mu.Lock()
	s.lastBody = string(body)
	shouldFail := s.failures > 0
	if shouldFail {
		s.failures--
	}
	expiresIn := s.expiresIn
	s.mu.Unlock()

	if shouldFail {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Body:       io.NopCloser(strings.NewReader("")),
		}, nil
	}
	if expiresIn == 0 {
		expiresIn = 3600
	}
	payload, _ := json.Marshal(map[string]any{
		"access_token": fmt.Sprintf("tok-%d", atomic.LoadInt32(&s.calls)),
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(string(payload))),
	}, nil
}

func newTestBroker(t *testing.T, server *stubTokenServer, now func() time.Time) *Broker {
	t.Helper()
	broker, err := NewBroker(BrokerConfig{
		TokenURL:     "https://api.example.com/authentication/customer/org-1/token",
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		SafetyMargin: 60 * time.Second,
		Now:          now,
	}, server)
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}
	return broker
}

func TestBroker_SendsFormEncodedGrant(t *testing.T) {
	server := &stubTokenServer{}
	broker := newTestBroker(t, server, nil)

	token, err := broker.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token.Value == "" {
		t.Fatalf("expected a token value")
	}
	for _, want := range []string{"client_id=client-1", "client_secret=s3cret", "grant_type=client_credentials"} {
		if !strings.Contains(server.lastBody, want) {
			t.Fatalf("expected form body to contain %q, got %q", want, server.lastBody)
		}
	}
}

func TestBroker_ReturnsCachedTokenWhileFresh(t *testing.T) {
	server := &stubTokenServer{}
	broker := newTestBroker(t, server, nil)

	first, err := broker.Token(context.Background())
	if err != nil {
		t.Fatalf("first token: %v", err)
	}
	second, err := broker.Token(context.Background())
	if err != nil {
		t.Fatalf("second token: %v", err)
	}
	if first.Value != second.Value {
		t.Fatalf("expected cached token to be reused")
	}
	if calls := atomic.LoadInt32(&server.calls); calls != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", calls)
	}
}

func TestBroker_RefreshesInsideSafetyMargin(t *testing.T) {
	// Token expires 30s out with a 60s margin: stale-soon, refresh.
	current := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	server := &stubTokenServer{expiresIn: 90}
	broker := newTestBroker(t, server, func() time.Time { return current })

	if _, err := broker.Token(context.Background()); err != nil {
		t.Fatalf("initial token: %v", err)
	}
	current = current.Add(60 * time.Second)
	if _, err := broker.Token(context.Background()); err != nil {
		t.Fatalf("refresh token: %v", err)
	}
	if calls := atomic.LoadInt32(&server.calls); calls != 2 {
		t.Fatalf("expected stale-soon token to trigger a refresh, got %d calls", calls)
	}
}

func TestBroker_CoalescesConcurrentRefreshes(t *testing.T) {
	server := &stubTokenServer{delay: 50 * time.Millisecond}
	broker := newTestBroker(t, server, nil)

	var wg sync.WaitGroup
	results := make([]string, 24)
	for i := range results {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			token, err := broker.Token(context.Background())
			if err != nil {
				t.Errorf("concurrent token: %v", err)
				return
			}
			results[slot] = token.Value
		}(i)
	}
	wg.Wait()

	if calls := atomic.LoadInt32(&server.calls); calls != 1 {
		t.Fatalf("expected a single in-flight refresh, got %d calls", calls)
	}
	for _, value := range results {
		if value != results[0] {
			t.Fatalf("expected all callers to observe the same token")
		}
	}
}

func TestBroker_RefreshFailureDoesNotEvict(t *testing.T) {
	current := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	server := &stubTokenServer{}
	broker := newTestBroker(t, server, func() time.Time { return current })

	first, err := broker.Token(context.Background())
	if err != nil {
		t.Fatalf("initial token: %v", err)
	}

	// Push past the margin so the next call must refresh, and fail it.
	current = current.Add(time.Hour)
	server.mu.Lock()
	server.failures = 1
	server.mu.Unlock()

	if _, err := broker.Token(context.Background()); err == nil {
		t.Fatalf("expected refresh failure to surface")
	}

	// Recovery: the next attempt refreshes cleanly.
	recovered, err := broker.Token(context.Background())
	if err != nil {
		t.Fatalf("recovery token: %v", err)
	}
	if recovered.Value == first.Value {
		t.Fatalf("expected a fresh token after recovery")
	}
}

func TestBroker_InvalidateOnlyDropsObservedToken(t *testing.T) {
	server := &stubTokenServer{}
	broker := newTestBroker(t, server, nil)

	token, err := broker.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	stale := token
	stale.Value = "some-older-token"
	broker.Invalidate(stale)
	if _, err := broker.Token(context.Background()); err != nil {
		t.Fatalf("token after mismatched invalidate: %v", err)
	}
	if calls := atomic.LoadInt32(&server.calls); calls != 1 {
		t.Fatalf("expected mismatched invalidate to be ignored, got %d calls", calls)
	}

	broker.Invalidate(token)
	if _, err := broker.Token(context.Background()); err != nil {
		t.Fatalf("token after invalidate: %v", err)
	}
	if calls := atomic.LoadInt32(&server.calls); calls != 2 {
		t.Fatalf("expected invalidate to force a refresh, got %d calls", calls)
	}
}

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestBroker_ErrorsNeverContainSecret(t *testing.T) {
	broker, err := NewBroker(BrokerConfig{
		TokenURL:     "https://api.example.com/token",
		ClientID:     "client-1",
		ClientSecret: "hunter2-secret",
	}, failingDoer{})
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}
	_, err = broker.Token(context.Background())
	if err == nil {
		t.Fatalf("expected network failure to surface")
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Fatalf("client secret leaked into error: %v", err)
	}
}
