package core

import (
	"strings"
	"time"
)

// BearerToken is the OAuth2 access token used for outbound platform
// calls. The value is owned by the auth broker and must never be
// persisted or logged.
type BearerToken struct {
	Value     string
	TokenType string
	ExpiresAt time.Time
}

func (t BearerToken) Valid(now time.Time, margin time.Duration) bool {
	if strings.TrimSpace(t.Value) == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-margin))
}

func (t BearerToken) String() string   { return "BearerToken(" + RedactedValue + ")" }
func (t BearerToken) GoString() string { return t.String() }

// EnterpriseUser is an employee record from the corporate directory.
// PlatformUserID stays empty until the credential platform confirms
// user creation.
type EnterpriseUser struct {
	ExternalID     string
	Email          string
	DisplayName    string
	GivenName      string
	FamilyName     string
	PlatformUserID string
}

func (u EnterpriseUser) Synced() bool {
	return strings.TrimSpace(u.PlatformUserID) != ""
}

// Pass is a digital badge container. PassID is assigned by the
// platform; before that the pass is tracked under a local correlation
// id. Status is the single source of truth for lifecycle position.
type Pass struct {
	PassID        string
	CorrelationID string
	TemplateID    string
	UserID        string
	Status        PassStatus
	TokenIssuedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IssuanceToken is the one-time provisioning secret minted for a pass.
// It lives only in process memory for the duration of a provisioning
// request and is never written to durable storage or logs.
type IssuanceToken struct {
	Value    string
	PassID   string
	IssuedAt time.Time
	TTL      time.Duration

	used bool
}

func (t *IssuanceToken) MarkUsed() {
	if t != nil {
		t.used = true
	}
}

func (t *IssuanceToken) Used() bool {
	return t != nil && t.used
}

func (t *IssuanceToken) Expired(now time.Time) bool {
	if t == nil {
		return true
	}
	ttl := t.TTL
	if ttl <= 0 {
		ttl = DefaultIssuanceTokenTTL
	}
	return !now.Before(t.IssuedAt.Add(ttl))
}

func (t *IssuanceToken) String() string   { return "IssuanceToken(" + RedactedValue + ")" }
func (t *IssuanceToken) GoString() string { return t.String() }

// DefaultIssuanceTokenTTL bounds how long a minted issuance token may
// sit unused before the pass is eligible for re-issuance.
const DefaultIssuanceTokenTTL = 15 * time.Minute

// EventType is the closed set of lifecycle event types the platform
// delivers. Unrecognized types parse to EventUnknown so new platform
// event types never break ingestion.
type EventType string

const (
	EventUserCreated         EventType = "USER_CREATED"
	EventUserUpdated         EventType = "USER_UPDATED"
	EventUserDeleted         EventType = "USER_DELETED"
	EventPassCreated         EventType = "PASS_CREATED"
	EventPassUpdated         EventType = "PASS_UPDATED"
	EventPassProvisioned     EventType = "PASS_PROVISIONED"
	EventPassDeleted         EventType = "PASS_DELETED"
	EventCredentialSuspended EventType = "CREDENTIAL_SUSPENDED"
	EventCredentialResumed   EventType = "CREDENTIAL_RESUMED"
	EventUnknown             EventType = "UNKNOWN"
)

func ParseEventType(value string) EventType {
	switch EventType(strings.TrimSpace(strings.ToUpper(value))) {
	case EventUserCreated:
		return EventUserCreated
	case EventUserUpdated:
		return EventUserUpdated
	case EventUserDeleted:
		return EventUserDeleted
	case EventPassCreated:
		return EventPassCreated
	case EventPassUpdated:
		return EventPassUpdated
	case EventPassProvisioned:
		return EventPassProvisioned
	case EventPassDeleted:
		return EventPassDeleted
	case EventCredentialSuspended:
		return EventCredentialSuspended
	case EventCredentialResumed:
		return EventCredentialResumed
	default:
		return EventUnknown
	}
}

// LifecycleEvent is a platform callback delivery after envelope
// parsing. ID is the de-duplication key.
type LifecycleEvent struct {
	ID         string
	Type       EventType
	RawType    string
	Subject    string
	OccurredAt time.Time
	Data       map[string]any
}

// SubjectPassID extracts the pass id from an event subject. The
// platform formats subjects as "pass/<id>" or "user/<id>"; bare ids
// pass through unchanged.
func (e LifecycleEvent) SubjectPassID() string {
	subject := strings.TrimSpace(e.Subject)
	if idx := strings.LastIndex(subject, "/"); idx >= 0 {
		return subject[idx+1:]
	}
	return subject
}

// CallbackRegistration mirrors the platform's webhook registration
// resource. HTTPHeader and Secret travel together: the platform sends
// the secret back in the named header on every delivery.
type CallbackRegistration struct {
	ID         string
	URL        string
	EventTypes []string
	HTTPHeader string
	Secret     string
}
