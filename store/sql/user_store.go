package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/acmecorp/go-mobile-access/core"
)

// UserStore persists the enterprise-user to platform-user binding.
// Rows are keyed internally; external_id is the lookup identity.
type UserStore struct {
	db   *bun.DB
	repo repository.Repository[*userRecord]
}

func NewUserStore(db *bun.DB) (*UserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*userRecord](db, userHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid user repository wiring: %w", err)
		}
	}
	return &UserStore{db: db, repo: repo}, nil
}

func (s *UserStore) Upsert(ctx context.Context, user core.EnterpriseUser) (core.EnterpriseUser, error) {
	if s == nil || s.db == nil {
		return core.EnterpriseUser{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	externalID := strings.TrimSpace(user.ExternalID)
	if externalID == "" {
		return core.EnterpriseUser{}, fmt.Errorf("sqlstore: user external id is required")
	}

	record := newUserRecord(user, time.Now().UTC())
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return core.EnterpriseUser{}, err
		}
		return s.update(ctx, user)
	}
	return record.toDomain(), nil
}

func (s *UserStore) update(ctx context.Context, user core.EnterpriseUser) (core.EnterpriseUser, error) {
	current, err := s.findByExternalID(ctx, user.ExternalID)
	if err != nil {
		return core.EnterpriseUser{}, err
	}
	current.Email = strings.TrimSpace(user.Email)
	current.DisplayName = strings.TrimSpace(user.DisplayName)
	current.GivenName = strings.TrimSpace(user.GivenName)
	current.FamilyName = strings.TrimSpace(user.FamilyName)
	if strings.TrimSpace(user.PlatformUserID) != "" {
		current.PlatformUserID = strings.TrimSpace(user.PlatformUserID)
	}
	current.UpdatedAt = time.Now().UTC()

	if _, err := s.repo.Update(ctx, current, repository.UpdateByID(current.ID)); err != nil {
		return core.EnterpriseUser{}, err
	}
	return current.toDomain(), nil
}

func (s *UserStore) GetByExternalID(ctx context.Context, externalID string) (core.EnterpriseUser, error) {
	if s == nil || s.db == nil {
		return core.EnterpriseUser{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	record, err := s.findByExternalID(ctx, externalID)
	if err != nil {
		return core.EnterpriseUser{}, err
	}
	return record.toDomain(), nil
}

func (s *UserStore) Delete(ctx context.Context, externalID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: user store is not configured")
	}
	now := time.Now().UTC()
	_, err := s.db.NewUpdate().
		Model((*userRecord)(nil)).
		Set("deleted_at = ?", now).
		Set("updated_at = ?", now).
		Where("external_id = ?", strings.TrimSpace(externalID)).
		Where("deleted_at IS NULL").
		Exec(ctx)
	return err
}

func (s *UserStore) findByExternalID(ctx context.Context, externalID string) (*userRecord, error) {
	record := &userRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlstore: user not found for external id %q", externalID)
		}
		return nil, err
	}
	return record, nil
}
