package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type userRecord struct {
	bun.BaseModel `bun:"table:access_users,alias:au"`

	ID             string     `bun:"id,pk"`
	ExternalID     string     `bun:"external_id,notnull"`
	Email          string     `bun:"email,notnull"`
	DisplayName    string     `bun:"display_name"`
	GivenName      string     `bun:"given_name"`
	FamilyName     string     `bun:"family_name"`
	PlatformUserID string     `bun:"platform_user_id"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete"`
}

type passRecord struct {
	bun.BaseModel `bun:"table:access_passes,alias:ap"`

	ID            string     `bun:"id,pk"`
	CorrelationID string     `bun:"correlation_id"`
	TemplateID    string     `bun:"template_id"`
	UserID        string     `bun:"user_id,notnull"`
	Status        string     `bun:"status,notnull"`
	TokenIssuedAt *time.Time `bun:"token_issued_at,nullzero"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type eventDeliveryRecord struct {
	bun.BaseModel `bun:"table:access_event_deliveries,alias:aed"`

	ID        string    `bun:"id,pk"`
	Source    string    `bun:"source,notnull"`
	EventID   string    `bun:"event_id,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
