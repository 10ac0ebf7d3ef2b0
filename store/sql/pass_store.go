package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/acmecorp/go-mobile-access/core"
)

// PassStore records pass lifecycle bookkeeping. Rows are keyed by the
// platform pass id; issuance token values never reach this table.
type PassStore struct {
	db   *bun.DB
	repo repository.Repository[*passRecord]
}

func NewPassStore(db *bun.DB) (*PassStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*passRecord](db, passHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid pass repository wiring: %w", err)
		}
	}
	return &PassStore{db: db, repo: repo}, nil
}

func (s *PassStore) Upsert(ctx context.Context, pass core.Pass) (core.Pass, error) {
	if s == nil || s.db == nil {
		return core.Pass{}, fmt.Errorf("sqlstore: pass store is not configured")
	}
	passID := strings.TrimSpace(pass.PassID)
	if passID == "" {
		return core.Pass{}, fmt.Errorf("sqlstore: pass id is required")
	}
	if strings.TrimSpace(pass.UserID) == "" {
		return core.Pass{}, fmt.Errorf("sqlstore: pass user id is required")
	}

	record := newPassRecord(pass, time.Now().UTC())
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return core.Pass{}, err
		}
		return s.update(ctx, pass)
	}
	return record.toDomain(), nil
}

func (s *PassStore) update(ctx context.Context, pass core.Pass) (core.Pass, error) {
	passID := strings.TrimSpace(pass.PassID)
	current, err := s.repo.GetByID(ctx, passID)
	if err != nil {
		return core.Pass{}, err
	}
	current.Status = string(pass.Status)
	current.UpdatedAt = time.Now().UTC()
	if strings.TrimSpace(pass.CorrelationID) != "" {
		current.CorrelationID = strings.TrimSpace(pass.CorrelationID)
	}
	if strings.TrimSpace(pass.TemplateID) != "" {
		current.TemplateID = strings.TrimSpace(pass.TemplateID)
	}
	if pass.TokenIssuedAt != nil {
		value := pass.TokenIssuedAt.UTC()
		current.TokenIssuedAt = &value
	}

	if _, err := s.repo.Update(ctx, current, repository.UpdateByID(passID)); err != nil {
		return core.Pass{}, err
	}
	return current.toDomain(), nil
}

func (s *PassStore) Get(ctx context.Context, passID string) (core.Pass, error) {
	if s == nil || s.db == nil {
		return core.Pass{}, fmt.Errorf("sqlstore: pass store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(passID))
	if err != nil {
		return core.Pass{}, err
	}
	return record.toDomain(), nil
}

func (s *PassStore) ListByUser(ctx context.Context, userID string) ([]core.Pass, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: pass store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}

	out := make([]core.Pass, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
