package sqlstore

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/acmecorp/go-mobile-access/core"
)

func newUserRecord(user core.EnterpriseUser, now time.Time) *userRecord {
	return &userRecord{
		ID:             uuid.NewString(),
		ExternalID:     strings.TrimSpace(user.ExternalID),
		Email:          strings.TrimSpace(user.Email),
		DisplayName:    strings.TrimSpace(user.DisplayName),
		GivenName:      strings.TrimSpace(user.GivenName),
		FamilyName:     strings.TrimSpace(user.FamilyName),
		PlatformUserID: strings.TrimSpace(user.PlatformUserID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *userRecord) toDomain() core.EnterpriseUser {
	if r == nil {
		return core.EnterpriseUser{}
	}
	return core.EnterpriseUser{
		ExternalID:     r.ExternalID,
		Email:          r.Email,
		DisplayName:    r.DisplayName,
		GivenName:      r.GivenName,
		FamilyName:     r.FamilyName,
		PlatformUserID: r.PlatformUserID,
	}
}

func newPassRecord(pass core.Pass, now time.Time) *passRecord {
	record := &passRecord{
		ID:            strings.TrimSpace(pass.PassID),
		CorrelationID: strings.TrimSpace(pass.CorrelationID),
		TemplateID:    strings.TrimSpace(pass.TemplateID),
		UserID:        strings.TrimSpace(pass.UserID),
		Status:        string(pass.Status),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if !pass.CreatedAt.IsZero() {
		record.CreatedAt = pass.CreatedAt.UTC()
	}
	if pass.TokenIssuedAt != nil {
		value := pass.TokenIssuedAt.UTC()
		record.TokenIssuedAt = &value
	}
	return record
}

func (r *passRecord) toDomain() core.Pass {
	if r == nil {
		return core.Pass{}
	}
	pass := core.Pass{
		PassID:        r.ID,
		CorrelationID: r.CorrelationID,
		TemplateID:    r.TemplateID,
		UserID:        r.UserID,
		Status:        core.PassStatus(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.TokenIssuedAt != nil {
		value := *r.TokenIssuedAt
		pass.TokenIssuedAt = &value
	}
	return pass
}
