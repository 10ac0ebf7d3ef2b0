package platform

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/acmecorp/go-mobile-access/core"
)

type callbackFilter struct {
	EventTypes []string `json:"eventTypes"`
}

type callbackResource struct {
	ID         string         `json:"id,omitempty"`
	URL        string         `json:"url"`
	Filter     callbackFilter `json:"filter"`
	HTTPHeader string         `json:"httpHeader,omitempty"`
	Secret     string         `json:"secret,omitempty"`
}

// RegisterCallback subscribes a webhook endpoint to lifecycle events.
// HTTPHeader and Secret travel together; the platform replays the
// secret in the named header on every delivery.
func (c *Client) RegisterCallback(ctx context.Context, registration core.CallbackRegistration) (core.CallbackRegistration, error) {
	if strings.TrimSpace(registration.URL) == "" {
		return core.CallbackRegistration{}, core.NewError("platform: callback url is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	header := strings.TrimSpace(registration.HTTPHeader)
	secret := strings.TrimSpace(registration.Secret)
	if (header == "") != (secret == "") {
		return core.CallbackRegistration{}, core.NewError("platform: callback header and secret must be set together", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}

	payload := callbackResource{
		URL:    registration.URL,
		Filter: callbackFilter{EventTypes: registration.EventTypes},
	}
	if payload.Filter.EventTypes == nil {
		payload.Filter.EventTypes = []string{}
	}
	if header != "" {
		payload.HTTPHeader = header
		payload.Secret = secret
	}

	var created callbackResource
	if err := c.do(ctx, request{Method: http.MethodPost, Path: "/callback", Body: payload}, &created); err != nil {
		return core.CallbackRegistration{}, err
	}
	registration.ID = created.ID
	return registration, nil
}

// ListCallbacks returns the active registrations. The platform never
// echoes secrets back, so Secret is always empty here.
func (c *Client) ListCallbacks(ctx context.Context) ([]core.CallbackRegistration, error) {
	var payload []callbackResource
	if err := c.do(ctx, request{Method: http.MethodGet, Path: "/callback"}, &payload); err != nil {
		return nil, err
	}
	out := make([]core.CallbackRegistration, 0, len(payload))
	for _, item := range payload {
		out = append(out, core.CallbackRegistration{
			ID:         item.ID,
			URL:        item.URL,
			EventTypes: item.Filter.EventTypes,
			HTTPHeader: item.HTTPHeader,
		})
	}
	return out, nil
}

func (c *Client) DeleteCallback(ctx context.Context, callbackID string) error {
	if strings.TrimSpace(callbackID) == "" {
		return core.NewError("platform: callback id is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	return c.do(ctx, request{Method: http.MethodDelete, Path: "/callback/" + callbackID}, nil)
}
