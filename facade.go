package access

import (
	"fmt"

	"github.com/acmecorp/go-mobile-access/command"
	"github.com/acmecorp/go-mobile-access/query"
)

// Commands groups the dispatchable command handlers for callers that
// route operations through a message bus.
type Commands struct {
	Provision        *command.ProvisionCommand
	ReissueToken     *command.ReissueTokenCommand
	SuspendPass      *command.SuspendPassCommand
	ResumePass       *command.ResumePassCommand
	DeletePass       *command.DeletePassCommand
	OffboardUser     *command.OffboardUserCommand
	RegisterCallback *command.RegisterCallbackCommand
}

// Queries groups the read handlers. They answer from the configured
// stores, so a facade built without readers returns dependency errors
// at query time.
type Queries struct {
	GetPass        *query.GetPassQuery
	ListUserPasses *query.ListUserPassesQuery
	GetUser        *query.GetUserQuery
}

type Facade struct {
	service  *Service
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	passReader query.PassReader
	userReader query.UserReader
}

func WithPassReader(reader query.PassReader) FacadeOption {
	return func(options *facadeOptions) {
		options.passReader = reader
	}
}

func WithUserReader(reader query.UserReader) FacadeOption {
	return func(options *facadeOptions) {
		options.userReader = reader
	}
}

func NewFacade(service *Service, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("access: service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Provision:        command.NewProvisionCommand(service.orchestrator),
		ReissueToken:     command.NewReissueTokenCommand(service.orchestrator),
		SuspendPass:      command.NewSuspendPassCommand(service.orchestrator),
		ResumePass:       command.NewResumePassCommand(service.orchestrator),
		DeletePass:       command.NewDeletePassCommand(service.orchestrator),
		OffboardUser:     command.NewOffboardUserCommand(service.orchestrator),
		RegisterCallback: command.NewRegisterCallbackCommand(service),
	}
	facade.queries = Queries{
		GetPass:        query.NewGetPassQuery(cfg.passReader),
		ListUserPasses: query.NewListUserPassesQuery(cfg.passReader),
		GetUser:        query.NewGetUserQuery(cfg.userReader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() *Service {
	if f == nil {
		return nil
	}
	return f.service
}

var _ command.LifecycleService = (*Service)(nil)

var _ command.CallbackService = (*Service)(nil)
