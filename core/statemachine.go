package core

import (
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// PassStatus is the lifecycle position of a pass. Transitions only
// move along the edges in validTransition; DELETED is terminal.
type PassStatus string

const (
	PassStatusPendingCreate PassStatus = "PENDING_CREATE"
	PassStatusCreated       PassStatus = "CREATED"
	PassStatusTokenIssued   PassStatus = "TOKEN_ISSUED"
	PassStatusProvisioned   PassStatus = "PROVISIONED"
	PassStatusActive        PassStatus = "ACTIVE"
	PassStatusSuspended     PassStatus = "SUSPENDED"
	PassStatusDeleted       PassStatus = "DELETED"
)

func (s PassStatus) Terminal() bool {
	return s == PassStatusDeleted
}

// CanTransition reports whether the lifecycle allows moving from one
// state to another. Callers use it to reject an operation before any
// remote side effect happens.
func CanTransition(from PassStatus, to PassStatus) bool {
	return validTransition(from, to)
}

func validTransition(from PassStatus, to PassStatus) bool {
	if to == PassStatusDeleted {
		return !from.Terminal()
	}
	switch from {
	case PassStatusPendingCreate:
		return to == PassStatusCreated
	case PassStatusCreated:
		return to == PassStatusTokenIssued
	case PassStatusTokenIssued:
		// Back to CREATED when the issuance token expired unused.
		return to == PassStatusProvisioned || to == PassStatusCreated
	case PassStatusProvisioned:
		return to == PassStatusActive
	case PassStatusActive:
		return to == PassStatusSuspended
	case PassStatusSuspended:
		return to == PassStatusActive
	default:
		return false
	}
}

// TransitionResult reports the pass after a transition attempt.
// Changed is false when the pass was already in the target state and
// the call was absorbed as an idempotent no-op.
type TransitionResult struct {
	Pass    Pass
	Changed bool
}

type passEntry struct {
	mu   sync.Mutex
	pass Pass
}

// StateMachine tracks every known pass and serializes transitions per
// pass id. Different passes transition fully in parallel; a
// provisioning step and a webhook event for the same pass cannot race.
type StateMachine struct {
	mu      sync.Mutex
	entries map[string]*passEntry
	Now     func() time.Time
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		entries: map[string]*passEntry{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Register tracks a new pass under its platform id or, before the
// platform assigns one, its local correlation id.
func (m *StateMachine) Register(pass Pass) (Pass, error) {
	if m == nil {
		return Pass{}, NewError("core: state machine is nil", goerrors.CategoryInternal, ErrorInternal, nil)
	}
	key := passKey(pass)
	if key == "" {
		return Pass{}, NewError("core: pass id or correlation id is required", goerrors.CategoryBadInput, ErrorBadInput, nil)
	}
	if pass.Status == "" {
		pass.Status = PassStatusPendingCreate
	}
	now := m.now()
	pass.CreatedAt = now
	pass.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; exists {
		return Pass{}, NewError(
			fmt.Sprintf("core: pass %q is already registered", key),
			goerrors.CategoryConflict,
			ErrorInvalidTransition,
			map[string]any{"pass_id": key},
		)
	}
	m.entries[key] = &passEntry{pass: pass}
	return pass, nil
}

// Current returns the tracked pass for id, if any.
func (m *StateMachine) Current(id string) (Pass, bool) {
	entry := m.lookup(id)
	if entry == nil {
		return Pass{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.pass, true
}

// Transition moves the pass to the target state. Invalid moves fail
// with an ACCESS_INVALID_TRANSITION conflict and leave state
// unchanged; a transition into the current state is a no-op, except
// TOKEN_ISSUED where re-entry would mint a second outstanding token.
func (m *StateMachine) Transition(id string, to PassStatus) (TransitionResult, error) {
	entry := m.lookup(id)
	if entry == nil {
		return TransitionResult{}, NewError(
			fmt.Sprintf("core: pass %q is not registered", strings.TrimSpace(id)),
			goerrors.CategoryNotFound,
			ErrorNotFound,
			map[string]any{"pass_id": strings.TrimSpace(id)},
		)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	from := entry.pass.Status
	if from == to && to != PassStatusTokenIssued {
		return TransitionResult{Pass: entry.pass, Changed: false}, nil
	}
	if !validTransition(from, to) {
		return TransitionResult{}, NewError(
			fmt.Sprintf("core: invalid pass transition %s -> %s", from, to),
			goerrors.CategoryConflict,
			ErrorInvalidTransition,
			map[string]any{"pass_id": id, "from": string(from), "to": string(to)},
		)
	}

	now := m.now()
	entry.pass.Status = to
	entry.pass.UpdatedAt = now
	switch to {
	case PassStatusTokenIssued:
		issuedAt := now
		entry.pass.TokenIssuedAt = &issuedAt
	case PassStatusCreated:
		entry.pass.TokenIssuedAt = nil
	}
	return TransitionResult{Pass: entry.pass, Changed: true}, nil
}

// Rekey moves a pass tracked under its correlation id to the
// platform-assigned pass id once creation is confirmed.
func (m *StateMachine) Rekey(correlationID string, passID string) error {
	correlationID = strings.TrimSpace(correlationID)
	passID = strings.TrimSpace(passID)
	if m == nil || correlationID == "" || passID == "" {
		return NewError("core: correlation id and pass id are required", goerrors.CategoryBadInput, ErrorBadInput, nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[correlationID]
	if !ok {
		return NewError(
			fmt.Sprintf("core: pass %q is not registered", correlationID),
			goerrors.CategoryNotFound,
			ErrorNotFound,
			map[string]any{"correlation_id": correlationID},
		)
	}
	if _, taken := m.entries[passID]; taken {
		return NewError(
			fmt.Sprintf("core: pass %q is already registered", passID),
			goerrors.CategoryConflict,
			ErrorInvalidTransition,
			map[string]any{"pass_id": passID},
		)
	}

	entry.mu.Lock()
	entry.pass.PassID = passID
	entry.mu.Unlock()

	delete(m.entries, correlationID)
	m.entries[passID] = entry
	return nil
}

// Remove drops a tracked pass. Used to clean up a correlation entry
// when remote pass creation failed and no resource exists to track.
func (m *StateMachine) Remove(id string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, strings.TrimSpace(id))
}

// PassesForUser lists passes bound to a platform user id, newest
// first registration order not guaranteed.
func (m *StateMachine) PassesForUser(userID string) []Pass {
	userID = strings.TrimSpace(userID)
	if m == nil || userID == "" {
		return nil
	}
	m.mu.Lock()
	entries := make([]*passEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	m.mu.Unlock()

	var passes []Pass
	for _, entry := range entries {
		entry.mu.Lock()
		if entry.pass.UserID == userID {
			passes = append(passes, entry.pass)
		}
		entry.mu.Unlock()
	}
	return passes
}

func (m *StateMachine) lookup(id string) *passEntry {
	if m == nil {
		return nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[id]
}

func (m *StateMachine) now() time.Time {
	if m != nil && m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func passKey(pass Pass) string {
	if id := strings.TrimSpace(pass.PassID); id != "" {
		return id
	}
	return strings.TrimSpace(pass.CorrelationID)
}
