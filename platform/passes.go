package platform

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/acmecorp/go-mobile-access/core"
)

type passResource struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	PassTemplateID string `json:"passTemplateId"`
	Status         string `json:"status"`
	Platform       string `json:"platform,omitempty"`
}

// CreatePass allocates a pass for a platform user from a template.
// The idempotency key spans the internal retry loop so a 5xx-then-201
// sequence yields exactly one pass.
func (c *Client) CreatePass(ctx context.Context, platformUserID, templateID string) (core.Pass, error) {
	if strings.TrimSpace(platformUserID) == "" || strings.TrimSpace(templateID) == "" {
		return core.Pass{}, core.NewError("platform: user id and template id are required", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{
			"user_id":     platformUserID,
			"template_id": templateID,
		})
	}

	var created passResource
	err := c.do(ctx, request{
		Method: http.MethodPost,
		Path:   "/pass",
		Body: map[string]string{
			"userId":         platformUserID,
			"passTemplateId": templateID,
		},
		IdempotencyKey: uuid.NewString(),
	}, &created)
	if err != nil {
		return core.Pass{}, err
	}
	if strings.TrimSpace(created.ID) == "" {
		return core.Pass{}, core.NewError("platform: pass response missing id", goerrors.CategoryExternal, core.ErrorPlatformUnavailable, map[string]any{
			"user_id": platformUserID,
		})
	}
	return core.Pass{
		PassID:     created.ID,
		UserID:     created.UserID,
		TemplateID: created.PassTemplateID,
	}, nil
}

func (c *Client) GetPass(ctx context.Context, passID string) (core.Pass, error) {
	if strings.TrimSpace(passID) == "" {
		return core.Pass{}, core.NewError("platform: pass id is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	var payload passResource
	if err := c.do(ctx, request{Method: http.MethodGet, Path: "/pass/" + passID}, &payload); err != nil {
		return core.Pass{}, err
	}
	return core.Pass{
		PassID:     payload.ID,
		UserID:     payload.UserID,
		TemplateID: payload.PassTemplateID,
	}, nil
}

// IssuanceToken mints the one-time wallet provisioning secret for a
// pass. The value stays in memory only; it is never persisted, logged,
// or embedded in errors.
func (c *Client) IssuanceToken(ctx context.Context, passID string) (*core.IssuanceToken, error) {
	if strings.TrimSpace(passID) == "" {
		return nil, core.NewError("platform: pass id is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}

	var payload struct {
		IssuanceToken string `json:"issuanceToken"`
		Token         string `json:"token"`
	}
	if err := c.do(ctx, request{Method: http.MethodGet, Path: "/pass/" + passID + "/issuanceToken"}, &payload); err != nil {
		return nil, err
	}
	value := strings.TrimSpace(payload.IssuanceToken)
	if value == "" {
		value = strings.TrimSpace(payload.Token)
	}
	if value == "" {
		return nil, core.NewError("platform: issuance token response is empty", goerrors.CategoryExternal, core.ErrorTokenIssueFailed, map[string]any{
			"pass_id": passID,
		})
	}
	return &core.IssuanceToken{
		Value:    value,
		PassID:   passID,
		IssuedAt: c.config.Now(),
		TTL:      core.DefaultIssuanceTokenTTL,
	}, nil
}

// SuspendPass and ResumePass flip the remote credential state with a
// status patch.
func (c *Client) SuspendPass(ctx context.Context, passID string) error {
	return c.patchPassStatus(ctx, passID, "SUSPENDED")
}

func (c *Client) ResumePass(ctx context.Context, passID string) error {
	return c.patchPassStatus(ctx, passID, "ACTIVE")
}

func (c *Client) patchPassStatus(ctx context.Context, passID, status string) error {
	if strings.TrimSpace(passID) == "" {
		return core.NewError("platform: pass id is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	return c.do(ctx, request{
		Method: http.MethodPatch,
		Path:   "/pass/" + passID,
		Body:   map[string]string{"status": status},
	}, nil)
}

func (c *Client) DeletePass(ctx context.Context, passID string) error {
	if strings.TrimSpace(passID) == "" {
		return core.NewError("platform: pass id is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	return c.do(ctx, request{Method: http.MethodDelete, Path: "/pass/" + passID}, nil)
}
