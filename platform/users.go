package platform

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/acmecorp/go-mobile-access/core"
)

const scimUserSchema = "urn:ietf:params:scim:schemas:core:2.0:User"

type scimName struct {
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
}

type scimEmail struct {
	Value   string `json:"value"`
	Type    string `json:"type"`
	Primary bool   `json:"primary"`
}

type scimUser struct {
	Schemas     []string    `json:"schemas,omitempty"`
	ID          string      `json:"id,omitempty"`
	ExternalID  string      `json:"externalId"`
	DisplayName string      `json:"displayName,omitempty"`
	Name        scimName    `json:"name"`
	Emails      []scimEmail `json:"emails,omitempty"`
}

func scimPayload(user core.EnterpriseUser) scimUser {
	displayName := strings.TrimSpace(user.DisplayName)
	if displayName == "" {
		displayName = strings.TrimSpace(user.GivenName + " " + user.FamilyName)
	}
	return scimUser{
		Schemas:     []string{scimUserSchema},
		ExternalID:  user.ExternalID,
		DisplayName: displayName,
		Name: scimName{
			GivenName:  user.GivenName,
			FamilyName: user.FamilyName,
		},
		Emails: []scimEmail{{Value: user.Email, Type: "work", Primary: true}},
	}
}

func userFromSCIM(payload scimUser) core.EnterpriseUser {
	email := ""
	if len(payload.Emails) > 0 {
		email = payload.Emails[0].Value
	}
	return core.EnterpriseUser{
		ExternalID:     payload.ExternalID,
		Email:          email,
		DisplayName:    payload.DisplayName,
		GivenName:      payload.Name.GivenName,
		FamilyName:     payload.Name.FamilyName,
		PlatformUserID: payload.ID,
	}
}

// CreateUser registers an enterprise user on the platform in SCIM v2
// shape. A fresh idempotency key covers the whole retry loop, so a
// retried create cannot mint duplicate platform users.
func (c *Client) CreateUser(ctx context.Context, user core.EnterpriseUser) (core.EnterpriseUser, error) {
	if strings.TrimSpace(user.ExternalID) == "" {
		return core.EnterpriseUser{}, core.NewError("platform: user external id is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	if strings.TrimSpace(user.Email) == "" {
		return core.EnterpriseUser{}, core.NewError("platform: user email is required", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{
			"external_id": user.ExternalID,
		})
	}

	var created scimUser
	err := c.do(ctx, request{
		Method:         http.MethodPost,
		Path:           "/user",
		Body:           scimPayload(user),
		IdempotencyKey: uuid.NewString(),
	}, &created)
	if err != nil {
		return core.EnterpriseUser{}, err
	}
	if strings.TrimSpace(created.ID) == "" {
		return core.EnterpriseUser{}, core.NewError("platform: user response missing id", goerrors.CategoryExternal, core.ErrorPlatformUnavailable, map[string]any{
			"external_id": user.ExternalID,
		})
	}
	return userFromSCIM(created), nil
}

func (c *Client) GetUser(ctx context.Context, platformUserID string) (core.EnterpriseUser, error) {
	if strings.TrimSpace(platformUserID) == "" {
		return core.EnterpriseUser{}, core.NewError("platform: user id is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	var payload scimUser
	if err := c.do(ctx, request{Method: http.MethodGet, Path: "/user/" + platformUserID}, &payload); err != nil {
		return core.EnterpriseUser{}, err
	}
	return userFromSCIM(payload), nil
}

// UpdateUser replaces the mutable profile attributes for a platform
// user.
func (c *Client) UpdateUser(ctx context.Context, user core.EnterpriseUser) (core.EnterpriseUser, error) {
	if !user.Synced() {
		return core.EnterpriseUser{}, core.NewError("platform: user has no platform id", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{
			"external_id": user.ExternalID,
		})
	}
	var updated scimUser
	err := c.do(ctx, request{
		Method: http.MethodPatch,
		Path:   "/user/" + user.PlatformUserID,
		Body:   scimPayload(user),
	}, &updated)
	if err != nil {
		return core.EnterpriseUser{}, err
	}
	result := userFromSCIM(updated)
	if result.PlatformUserID == "" {
		result.PlatformUserID = user.PlatformUserID
	}
	return result, nil
}

// DeleteUser removes the platform user. The platform invalidates any
// passes still bound to the user.
func (c *Client) DeleteUser(ctx context.Context, platformUserID string) error {
	if strings.TrimSpace(platformUserID) == "" {
		return core.NewError("platform: user id is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	return c.do(ctx, request{Method: http.MethodDelete, Path: "/user/" + platformUserID}, nil)
}
