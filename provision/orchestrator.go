// Package provision drives the credential lifecycle end to end: user
// sync, pass creation, issuance token minting, and the suspend,
// resume, delete operations. Local state always validates before a
// remote call happens, and local transitions commit only after the
// remote side confirmed.
package provision

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/acmecorp/go-mobile-access/core"
)

// PlatformAPI is the slice of the platform client the orchestrator
// needs.
type PlatformAPI interface {
	CreateUser(ctx context.Context, user core.EnterpriseUser) (core.EnterpriseUser, error)
	DeleteUser(ctx context.Context, platformUserID string) error
	CreatePass(ctx context.Context, platformUserID, templateID string) (core.Pass, error)
	IssuanceToken(ctx context.Context, passID string) (*core.IssuanceToken, error)
	SuspendPass(ctx context.Context, passID string) error
	ResumePass(ctx context.Context, passID string) error
	DeletePass(ctx context.Context, passID string) error
}

type Config struct {
	Logger core.Logger
	// Users and Passes are optional bookkeeping stores. Failures there
	// are logged, never fatal: the platform and the state machine stay
	// the sources of truth.
	Users  core.UserStore
	Passes core.PassStore
}

type Orchestrator struct {
	platform PlatformAPI
	machine  *core.StateMachine
	users    core.UserStore
	passes   core.PassStore
	logger   core.Logger
}

func NewOrchestrator(platform PlatformAPI, machine *core.StateMachine, cfg Config) (*Orchestrator, error) {
	if platform == nil {
		return nil, core.NewError("provision: platform client is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	if machine == nil {
		machine = core.NewStateMachine()
	}
	return &Orchestrator{
		platform: platform,
		machine:  machine,
		users:    cfg.Users,
		passes:   cfg.Passes,
		logger:   glog.Ensure(cfg.Logger),
	}, nil
}

// Machine exposes the lifecycle tracker so webhook ingestion shares
// the same per-pass serialization.
func (o *Orchestrator) Machine() *core.StateMachine {
	if o == nil {
		return nil
	}
	return o.machine
}

type ProvisionRequest struct {
	User       core.EnterpriseUser
	TemplateID string
}

// ProvisionResult carries the pass bookkeeping and the one-time
// issuance token. The token lives only in this value; hand it to the
// device channel and let it go.
type ProvisionResult struct {
	User  core.EnterpriseUser
	Pass  core.Pass
	Token *core.IssuanceToken
}

// Provision runs the full onboarding flow for one employee: sync the
// user, create a pass, mint its issuance token. Each step checks for
// cancellation before touching the platform, and a failed pass
// creation leaves no local tracking behind.
func (o *Orchestrator) Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error) {
	if o == nil || o.platform == nil {
		return ProvisionResult{}, core.NewError("provision: orchestrator is not configured", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	if strings.TrimSpace(req.TemplateID) == "" {
		return ProvisionResult{}, core.NewError("provision: template id is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	user, err := o.ensureUser(ctx, req.User)
	if err != nil {
		return ProvisionResult{}, err
	}

	if err := ctx.Err(); err != nil {
		return ProvisionResult{}, core.WrapError(err, goerrors.CategoryOperation, "provision: canceled before pass creation", core.ErrorInternal, map[string]any{
			"user_id": user.PlatformUserID,
		})
	}

	correlationID := "corr-" + uuid.NewString()
	if _, err := o.machine.Register(core.Pass{
		CorrelationID: correlationID,
		TemplateID:    req.TemplateID,
		UserID:        user.PlatformUserID,
	}); err != nil {
		return ProvisionResult{}, err
	}

	created, err := o.platform.CreatePass(ctx, user.PlatformUserID, req.TemplateID)
	if err != nil {
		o.machine.Remove(correlationID)
		return ProvisionResult{}, core.WrapError(err, categoryOf(err), "provision: pass creation failed", core.ErrorPassCreationFailed, map[string]any{
			"user_id":     user.PlatformUserID,
			"template_id": req.TemplateID,
		})
	}
	if err := o.machine.Rekey(correlationID, created.PassID); err != nil {
		return ProvisionResult{}, err
	}
	if _, err := o.machine.Transition(created.PassID, core.PassStatusCreated); err != nil {
		return ProvisionResult{}, err
	}
	o.logger.Info("pass created", "pass_id", created.PassID, "user_id", user.PlatformUserID)

	if err := ctx.Err(); err != nil {
		return ProvisionResult{}, core.WrapError(err, goerrors.CategoryOperation, "provision: canceled before token issuance", core.ErrorInternal, map[string]any{
			"pass_id": created.PassID,
		})
	}

	token, err := o.issueToken(ctx, created.PassID)
	if err != nil {
		// The pass stays in CREATED; a later call can mint the token.
		return ProvisionResult{}, err
	}

	current, _ := o.machine.Current(created.PassID)
	o.recordPass(ctx, current)
	return ProvisionResult{User: user, Pass: current, Token: token}, nil
}

// ReissueToken mints a replacement issuance token for a pass whose
// previous token expired unused. A still-fresh outstanding token is a
// conflict.
func (o *Orchestrator) ReissueToken(ctx context.Context, passID string) (*core.IssuanceToken, error) {
	if o == nil || o.platform == nil {
		return nil, core.NewError("provision: orchestrator is not configured", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	current, ok := o.machine.Current(passID)
	if !ok {
		return nil, core.NewError("provision: pass is not tracked", goerrors.CategoryNotFound, core.ErrorNotFound, map[string]any{"pass_id": passID})
	}

	switch current.Status {
	case core.PassStatusTokenIssued:
		now := o.machine.Now()
		if current.TokenIssuedAt != nil && now.Before(current.TokenIssuedAt.Add(core.DefaultIssuanceTokenTTL)) {
			return nil, core.NewError("provision: an issuance token is still outstanding", goerrors.CategoryConflict, core.ErrorInvalidTransition, map[string]any{
				"pass_id": passID,
			})
		}
		// Expired unused: reclaim before re-issuing.
		if _, err := o.machine.Transition(passID, core.PassStatusCreated); err != nil {
			return nil, err
		}
	case core.PassStatusCreated:
	default:
		return nil, core.NewError("provision: pass is not awaiting a token", goerrors.CategoryConflict, core.ErrorInvalidTransition, map[string]any{
			"pass_id": passID,
			"status":  string(current.Status),
		})
	}

	return o.issueToken(ctx, passID)
}

// Suspend disables the credential. The local lifecycle gates the call:
// only an ACTIVE pass suspends, and the local state flips only after
// the platform confirmed.
func (o *Orchestrator) Suspend(ctx context.Context, passID string) error {
	return o.lifecycleStep(ctx, passID, core.PassStatusSuspended, o.platform.SuspendPass)
}

// Resume re-enables a suspended credential.
func (o *Orchestrator) Resume(ctx context.Context, passID string) error {
	return o.lifecycleStep(ctx, passID, core.PassStatusActive, o.platform.ResumePass)
}

// Delete revokes the credential permanently. Valid from any
// non-terminal state.
func (o *Orchestrator) Delete(ctx context.Context, passID string) error {
	return o.lifecycleStep(ctx, passID, core.PassStatusDeleted, o.platform.DeletePass)
}

// OffboardUser deletes every pass bound to the user, then the platform
// user itself. A pass that fails to delete aborts the flow so nothing
// is orphaned silently.
func (o *Orchestrator) OffboardUser(ctx context.Context, platformUserID string) error {
	if o == nil || o.platform == nil {
		return core.NewError("provision: orchestrator is not configured", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	if strings.TrimSpace(platformUserID) == "" {
		return core.NewError("provision: user id is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}

	for _, pass := range o.machine.PassesForUser(platformUserID) {
		if pass.Status.Terminal() {
			continue
		}
		if err := o.Delete(ctx, passKeyOf(pass)); err != nil {
			return core.WrapError(err, categoryOf(err), "provision: offboard pass deletion failed", core.TextCode(err), map[string]any{
				"user_id": platformUserID,
				"pass_id": pass.PassID,
			})
		}
	}

	if err := o.platform.DeleteUser(ctx, platformUserID); err != nil {
		return err
	}
	o.logger.Info("user offboarded", "user_id", platformUserID)
	return nil
}

func (o *Orchestrator) lifecycleStep(ctx context.Context, passID string, target core.PassStatus, remote func(context.Context, string) error) error {
	if o == nil || o.platform == nil {
		return core.NewError("provision: orchestrator is not configured", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	current, ok := o.machine.Current(passID)
	if !ok {
		return core.NewError("provision: pass is not tracked", goerrors.CategoryNotFound, core.ErrorNotFound, map[string]any{"pass_id": passID})
	}
	if current.Status == target {
		return nil
	}
	if !core.CanTransition(current.Status, target) {
		return core.NewError("provision: lifecycle does not allow this operation", goerrors.CategoryConflict, core.ErrorInvalidTransition, map[string]any{
			"pass_id": passID,
			"from":    string(current.Status),
			"to":      string(target),
		})
	}

	if err := remote(ctx, passID); err != nil {
		return err
	}
	result, err := o.machine.Transition(passID, target)
	if err != nil {
		return err
	}
	o.logger.Info("pass transitioned", "pass_id", passID, "status", string(target))
	o.recordPass(ctx, result.Pass)
	return nil
}

// ensureUser returns a platform-synced user, creating it remotely on
// first sight of the external id.
func (o *Orchestrator) ensureUser(ctx context.Context, user core.EnterpriseUser) (core.EnterpriseUser, error) {
	if user.Synced() {
		return user, nil
	}
	if strings.TrimSpace(user.ExternalID) == "" {
		return core.EnterpriseUser{}, core.NewError("provision: user external id is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}

	if o.users != nil {
		if known, err := o.users.GetByExternalID(ctx, user.ExternalID); err == nil && known.Synced() {
			return known, nil
		}
	}

	created, err := o.platform.CreateUser(ctx, user)
	if err != nil {
		return core.EnterpriseUser{}, core.WrapError(err, categoryOf(err), "provision: user sync failed", core.ErrorUserSyncFailed, map[string]any{
			"external_id": user.ExternalID,
		})
	}
	o.logger.Info("user synced", "external_id", created.ExternalID, "user_id", created.PlatformUserID)

	if o.users != nil {
		if _, err := o.users.Upsert(ctx, created); err != nil {
			o.logger.Warn("user store upsert failed", "external_id", created.ExternalID, "error", err)
		}
	}
	return created, nil
}

func (o *Orchestrator) issueToken(ctx context.Context, passID string) (*core.IssuanceToken, error) {
	token, err := o.platform.IssuanceToken(ctx, passID)
	if err != nil {
		return nil, core.WrapError(err, categoryOf(err), "provision: issuance token failed", core.ErrorTokenIssueFailed, map[string]any{
			"pass_id": passID,
		})
	}
	if _, err := o.machine.Transition(passID, core.PassStatusTokenIssued); err != nil {
		return nil, err
	}
	o.logger.Info("issuance token minted", "pass_id", passID)
	return token, nil
}

func (o *Orchestrator) recordPass(ctx context.Context, pass core.Pass) {
	if o.passes == nil || strings.TrimSpace(pass.PassID) == "" {
		return
	}
	if _, err := o.passes.Upsert(ctx, pass); err != nil {
		o.logger.Warn("pass store upsert failed", "pass_id", pass.PassID, "error", err)
	}
}

func passKeyOf(pass core.Pass) string {
	if strings.TrimSpace(pass.PassID) != "" {
		return pass.PassID
	}
	return pass.CorrelationID
}

func categoryOf(err error) goerrors.Category {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category
	}
	return goerrors.CategoryExternal
}
