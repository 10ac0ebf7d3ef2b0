package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/acmecorp/go-mobile-access/core"
)

// Verifier authenticates a raw delivery before anything else touches
// it. A verification error means the delivery never reaches parsing,
// dedupe, or the state machine.
type Verifier interface {
	Verify(ctx context.Context, delivery Delivery) error
}

// HMACVerifier checks a hex HMAC-SHA256 of the raw body against the
// signature header.
type HMACVerifier struct {
	Header string
	Secret string
}

func (v HMACVerifier) Verify(_ context.Context, delivery Delivery) error {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return core.NewError("webhooks: signature secret is required", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	signature := strings.TrimSpace(headerValue(delivery.Headers, v.Header))
	if signature == "" {
		return core.NewError("webhooks: signature header is missing", goerrors.CategoryAuth, core.ErrorUnauthorized, nil)
	}
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return core.NewError("webhooks: signature is not valid hex", goerrors.CategoryAuth, core.ErrorUnauthorized, nil)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(delivery.Body)
	if subtle.ConstantTimeCompare(decoded, mac.Sum(nil)) != 1 {
		return core.NewError("webhooks: signature verification failed", goerrors.CategoryAuth, core.ErrorUnauthorized, nil)
	}
	return nil
}

// SharedHeaderVerifier matches the platform's callback registration
// model: the registered secret is replayed verbatim in the registered
// header on every delivery.
type SharedHeaderVerifier struct {
	Header string
	Secret string
}

func (v SharedHeaderVerifier) Verify(_ context.Context, delivery Delivery) error {
	expected := strings.TrimSpace(v.Secret)
	if expected == "" {
		return core.NewError("webhooks: shared secret is required", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	actual := strings.TrimSpace(headerValue(delivery.Headers, v.Header))
	if actual == "" {
		return core.NewError("webhooks: verification header is missing", goerrors.CategoryAuth, core.ErrorUnauthorized, nil)
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return core.NewError("webhooks: verification header mismatch", goerrors.CategoryAuth, core.ErrorUnauthorized, nil)
	}
	return nil
}

// VerifierFromConfig builds the verifier the callback config asks for.
func VerifierFromConfig(cfg core.CallbackConfig) (Verifier, error) {
	header := strings.TrimSpace(cfg.Header)
	if header == "" {
		return nil, core.NewError("webhooks: callback header is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	switch strings.TrimSpace(cfg.Verification) {
	case "", core.CallbackVerificationHMAC:
		return HMACVerifier{Header: header, Secret: cfg.Secret}, nil
	case core.CallbackVerificationSharedHeader:
		return SharedHeaderVerifier{Header: header, Secret: cfg.Secret}, nil
	default:
		return nil, core.NewError("webhooks: unsupported verification mode", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{
			"verification": cfg.Verification,
		})
	}
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return value
		}
	}
	return ""
}
