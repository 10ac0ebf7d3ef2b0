package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/acmecorp/go-mobile-access/webhooks"
)

const defaultEventSource = "platform"

// EventDeliveryStore is the durable de-duplication ledger for callback
// events. A unique (source, event_id) constraint makes the claim an
// atomic insert; the duplicate insert losing the race reports deduped.
type EventDeliveryStore struct {
	db     *bun.DB
	repo   repository.Repository[*eventDeliveryRecord]
	source string
}

func NewEventDeliveryStore(db *bun.DB, source string) (*EventDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*eventDeliveryRecord](db, eventDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event delivery repository wiring: %w", err)
		}
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = defaultEventSource
	}
	return &EventDeliveryStore{
		db:     db,
		repo:   repo,
		source: source,
	}, nil
}

func (s *EventDeliveryStore) Claim(ctx context.Context, eventID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: event delivery store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, fmt.Errorf("sqlstore: event id is required")
	}

	record := &eventDeliveryRecord{
		ID:        uuid.NewString(),
		Source:    s.source,
		EventID:   eventID,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Seen reports whether an event id was already claimed without
// consuming it.
func (s *EventDeliveryStore) Seen(ctx context.Context, eventID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: event delivery store is not configured")
	}
	count, err := s.db.NewSelect().
		Model((*eventDeliveryRecord)(nil)).
		Where("?TableAlias.source = ?", s.source).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ webhooks.SeenLedger = (*EventDeliveryStore)(nil)
