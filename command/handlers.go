package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/acmecorp/go-mobile-access/core"
	"github.com/acmecorp/go-mobile-access/provision"
)

// LifecycleService is the slice of the orchestrator the commands
// delegate to.
type LifecycleService interface {
	Provision(ctx context.Context, req provision.ProvisionRequest) (provision.ProvisionResult, error)
	ReissueToken(ctx context.Context, passID string) (*core.IssuanceToken, error)
	Suspend(ctx context.Context, passID string) error
	Resume(ctx context.Context, passID string) error
	Delete(ctx context.Context, passID string) error
	OffboardUser(ctx context.Context, platformUserID string) error
}

type CallbackService interface {
	RegisterCallback(ctx context.Context, registration core.CallbackRegistration) (core.CallbackRegistration, error)
}

type ProvisionCommand struct {
	service LifecycleService
}

func NewProvisionCommand(service LifecycleService) *ProvisionCommand {
	return &ProvisionCommand{service: service}
}

func (c *ProvisionCommand) Execute(ctx context.Context, msg ProvisionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: provisioning service is required")
	}
	out, err := c.service.Provision(ctx, provision.ProvisionRequest{
		User:       msg.User,
		TemplateID: msg.TemplateID,
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReissueTokenCommand struct {
	service LifecycleService
}

func NewReissueTokenCommand(service LifecycleService) *ReissueTokenCommand {
	return &ReissueTokenCommand{service: service}
}

func (c *ReissueTokenCommand) Execute(ctx context.Context, msg ReissueTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: provisioning service is required")
	}
	out, err := c.service.ReissueToken(ctx, msg.PassID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SuspendPassCommand struct {
	service LifecycleService
}

func NewSuspendPassCommand(service LifecycleService) *SuspendPassCommand {
	return &SuspendPassCommand{service: service}
}

func (c *SuspendPassCommand) Execute(ctx context.Context, msg SuspendPassMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: lifecycle service is required")
	}
	return c.service.Suspend(ctx, msg.PassID)
}

type ResumePassCommand struct {
	service LifecycleService
}

func NewResumePassCommand(service LifecycleService) *ResumePassCommand {
	return &ResumePassCommand{service: service}
}

func (c *ResumePassCommand) Execute(ctx context.Context, msg ResumePassMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: lifecycle service is required")
	}
	return c.service.Resume(ctx, msg.PassID)
}

type DeletePassCommand struct {
	service LifecycleService
}

func NewDeletePassCommand(service LifecycleService) *DeletePassCommand {
	return &DeletePassCommand{service: service}
}

func (c *DeletePassCommand) Execute(ctx context.Context, msg DeletePassMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: lifecycle service is required")
	}
	return c.service.Delete(ctx, msg.PassID)
}

type OffboardUserCommand struct {
	service LifecycleService
}

func NewOffboardUserCommand(service LifecycleService) *OffboardUserCommand {
	return &OffboardUserCommand{service: service}
}

func (c *OffboardUserCommand) Execute(ctx context.Context, msg OffboardUserMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: lifecycle service is required")
	}
	return c.service.OffboardUser(ctx, msg.PlatformUserID)
}

type RegisterCallbackCommand struct {
	service CallbackService
}

func NewRegisterCallbackCommand(service CallbackService) *RegisterCallbackCommand {
	return &RegisterCallbackCommand{service: service}
}

func (c *RegisterCallbackCommand) Execute(ctx context.Context, msg RegisterCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.RegisterCallback(ctx, msg.Registration)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
