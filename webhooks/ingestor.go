// Package webhooks ingests lifecycle event deliveries from the
// credential platform: signature verification, envelope parsing,
// event-id dedupe, and dispatch into the pass state machine.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/acmecorp/go-mobile-access/core"
)

// Delivery is one raw webhook POST: headers for verification, body
// for everything else.
type Delivery struct {
	Headers map[string]string
	Body    []byte
}

type EventResult struct {
	EventID string
	Type    core.EventType
	Subject string
	Deduped bool
	Changed bool
	Ignored bool
}

// Receipt tells the HTTP layer how to answer the delivery. Accepted
// maps to 200; anything else means the platform should redeliver.
type Receipt struct {
	Accepted   bool
	StatusCode int
	Results    []EventResult
}

type Config struct {
	Verifier Verifier
	Ledger   SeenLedger
	Machine  *core.StateMachine
	Logger   core.Logger
	// Passes optionally records post-transition snapshots. Write
	// failures are logged, never fatal.
	Passes core.PassStore
}

type Ingestor struct {
	verifier Verifier
	ledger   SeenLedger
	machine  *core.StateMachine
	passes   core.PassStore
	logger   core.Logger
}

func NewIngestor(cfg Config) (*Ingestor, error) {
	if cfg.Verifier == nil {
		return nil, core.NewError("webhooks: verifier is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	if cfg.Machine == nil {
		return nil, core.NewError("webhooks: state machine is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	ledger := cfg.Ledger
	if ledger == nil {
		ledger = NewMemorySeenLedger(0)
	}
	return &Ingestor{
		verifier: cfg.Verifier,
		ledger:   ledger,
		machine:  cfg.Machine,
		passes:   cfg.Passes,
		logger:   glog.Ensure(cfg.Logger),
	}, nil
}

// Ingest runs one delivery through verification, parsing, dedupe, and
// dispatch. Unverified deliveries touch nothing. Invalid transitions
// and unknown event types are acknowledged so the platform stops
// redelivering them; ledger failures are not, so redelivery applies.
func (i *Ingestor) Ingest(ctx context.Context, delivery Delivery) (Receipt, error) {
	if i == nil || i.machine == nil {
		return Receipt{}, core.NewError("webhooks: ingestor is not configured", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := i.verifier.Verify(ctx, delivery); err != nil {
		i.logger.Warn("delivery rejected", "error", err)
		return Receipt{Accepted: false, StatusCode: http.StatusUnauthorized}, err
	}

	events, err := parseEnvelope(delivery.Body)
	if err != nil {
		return Receipt{Accepted: false, StatusCode: http.StatusBadRequest}, err
	}

	receipt := Receipt{Accepted: true, StatusCode: http.StatusOK}
	for _, event := range events {
		result, err := i.apply(ctx, event)
		if err != nil {
			return Receipt{Accepted: false, StatusCode: http.StatusInternalServerError}, err
		}
		receipt.Results = append(receipt.Results, result)
	}
	return receipt, nil
}

func (i *Ingestor) apply(ctx context.Context, event core.LifecycleEvent) (EventResult, error) {
	result := EventResult{EventID: event.ID, Type: event.Type, Subject: event.Subject}

	claimed, err := i.ledger.Claim(ctx, event.ID)
	if err != nil {
		return EventResult{}, core.WrapError(err, goerrors.CategoryOperation, "webhooks: seen ledger claim failed", core.ErrorInternal, map[string]any{
			"event_id": event.ID,
		})
	}
	if !claimed {
		i.logger.Debug("event deduped", "event_id", event.ID, "event_type", string(event.Type))
		result.Deduped = true
		return result, nil
	}

	switch event.Type {
	case core.EventPassCreated:
		result.Changed = i.transition(event, event.SubjectPassID(), core.PassStatusCreated)
	case core.EventPassProvisioned:
		result.Changed = i.transition(event, event.SubjectPassID(), core.PassStatusProvisioned)
	case core.EventPassUpdated:
		result.Changed = i.applyPassUpdate(event)
	case core.EventCredentialSuspended:
		result.Changed = i.transition(event, event.SubjectPassID(), core.PassStatusSuspended)
	case core.EventCredentialResumed:
		result.Changed = i.transition(event, event.SubjectPassID(), core.PassStatusActive)
	case core.EventPassDeleted:
		result.Changed = i.transition(event, event.SubjectPassID(), core.PassStatusDeleted)
	case core.EventUserDeleted:
		result.Changed = i.deleteUserPasses(event)
	case core.EventUserCreated, core.EventUserUpdated:
		i.logger.Debug("user event acknowledged", "event_id", event.ID, "event_type", string(event.Type))
		result.Ignored = true
	default:
		i.logger.Info("unknown event type acknowledged", "event_id", event.ID, "event_type", event.RawType)
		result.Ignored = true
	}
	return result, nil
}

// applyPassUpdate maps the platform's status payloads onto lifecycle
// moves: COMPLETED means provisioning finished, ACTIVE means the
// credential went live.
func (i *Ingestor) applyPassUpdate(event core.LifecycleEvent) bool {
	status := strings.ToUpper(strings.TrimSpace(stringField(event.Data, "status")))
	switch status {
	case "COMPLETED", "PROVISIONED":
		return i.transition(event, event.SubjectPassID(), core.PassStatusProvisioned)
	case "ACTIVE":
		return i.transition(event, event.SubjectPassID(), core.PassStatusActive)
	case "SUSPENDED":
		return i.transition(event, event.SubjectPassID(), core.PassStatusSuspended)
	default:
		i.logger.Debug("pass update ignored", "event_id", event.ID, "status", status)
		return false
	}
}

func (i *Ingestor) deleteUserPasses(event core.LifecycleEvent) bool {
	userID := event.SubjectPassID()
	if value := stringField(event.Data, "userId"); value != "" {
		userID = value
	}
	changed := false
	for _, pass := range i.machine.PassesForUser(userID) {
		if pass.Status.Terminal() {
			continue
		}
		if i.transition(event, passKey(pass), core.PassStatusDeleted) {
			changed = true
		}
	}
	return changed
}

// transition applies a lifecycle move and absorbs rejections: an
// invalid transition or an unknown pass is logged and acked, because
// redelivering the same event can never make it valid.
func (i *Ingestor) transition(event core.LifecycleEvent, passID string, to core.PassStatus) bool {
	if strings.TrimSpace(passID) == "" {
		i.logger.Warn("event has no pass subject", "event_id", event.ID, "event_type", string(event.Type))
		return false
	}
	result, err := i.machine.Transition(passID, to)
	if err != nil {
		i.logger.Warn("event transition rejected",
			"event_id", event.ID,
			"event_type", string(event.Type),
			"pass_id", passID,
			"to", string(to),
			"error", err,
		)
		return false
	}
	if result.Changed {
		i.recordPass(result.Pass)
	}
	return result.Changed
}

func (i *Ingestor) recordPass(pass core.Pass) {
	if i.passes == nil || strings.TrimSpace(pass.PassID) == "" {
		return
	}
	if _, err := i.passes.Upsert(context.Background(), pass); err != nil {
		i.logger.Warn("pass store upsert failed", "pass_id", pass.PassID, "error", err)
	}
}

type eventEnvelope struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Subject string         `json:"subject"`
	Time    string         `json:"time"`
	Data    map[string]any `json:"data"`
}

// parseEnvelope accepts a single CloudEvents-style object or a batch
// array of them.
func parseEnvelope(body []byte) ([]core.LifecycleEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, core.NewError("webhooks: delivery body is empty", goerrors.CategoryBadInput, core.ErrorMalformedEvent, nil)
	}

	var envelopes []eventEnvelope
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &envelopes); err != nil {
			return nil, core.WrapError(err, goerrors.CategoryBadInput, "webhooks: malformed event batch", core.ErrorMalformedEvent, nil)
		}
	} else {
		var single eventEnvelope
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, core.WrapError(err, goerrors.CategoryBadInput, "webhooks: malformed event", core.ErrorMalformedEvent, nil)
		}
		envelopes = []eventEnvelope{single}
	}
	if len(envelopes) == 0 {
		return nil, core.NewError("webhooks: event batch is empty", goerrors.CategoryBadInput, core.ErrorMalformedEvent, nil)
	}

	events := make([]core.LifecycleEvent, 0, len(envelopes))
	for _, envelope := range envelopes {
		if strings.TrimSpace(envelope.ID) == "" || strings.TrimSpace(envelope.Type) == "" {
			return nil, core.NewError("webhooks: event id and type are required", goerrors.CategoryBadInput, core.ErrorMalformedEvent, map[string]any{
				"event_id":   envelope.ID,
				"event_type": envelope.Type,
			})
		}
		event := core.LifecycleEvent{
			ID:      strings.TrimSpace(envelope.ID),
			Type:    core.ParseEventType(envelope.Type),
			RawType: strings.TrimSpace(envelope.Type),
			Subject: strings.TrimSpace(envelope.Subject),
			Data:    envelope.Data,
		}
		if raw := strings.TrimSpace(envelope.Time); raw != "" {
			if at, err := time.Parse(time.RFC3339, raw); err == nil {
				event.OccurredAt = at.UTC()
			}
		}
		events = append(events, event)
	}
	return events, nil
}

func stringField(data map[string]any, key string) string {
	if len(data) == 0 {
		return ""
	}
	if value, ok := data[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func passKey(pass core.Pass) string {
	if id := strings.TrimSpace(pass.PassID); id != "" {
		return id
	}
	return strings.TrimSpace(pass.CorrelationID)
}
