// Package access wires the credential platform client, the pass state
// machine, the provisioning orchestrator, and the callback ingestor
// into a single service facade.
package access

import (
	"context"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/acmecorp/go-mobile-access/auth"
	"github.com/acmecorp/go-mobile-access/core"
	"github.com/acmecorp/go-mobile-access/platform"
	"github.com/acmecorp/go-mobile-access/provision"
	"github.com/acmecorp/go-mobile-access/webhooks"
)

type Config = core.Config

type CallbackConfig = core.CallbackConfig

type Logger = core.Logger

type ProvisionRequest = provision.ProvisionRequest

type ProvisionResult = provision.ProvisionResult

type Delivery = webhooks.Delivery

type Receipt = webhooks.Receipt

// HTTPDoer is the outbound HTTP dependency shared by the token broker
// and the platform client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*serviceOptions)

type serviceOptions struct {
	logger     core.Logger
	httpClient HTTPDoer
	machine    *core.StateMachine
	users      core.UserStore
	passes     core.PassStore
	ledger     webhooks.SeenLedger
	verifier   webhooks.Verifier
	now        func() time.Time
}

func WithLogger(logger core.Logger) Option {
	return func(options *serviceOptions) {
		options.logger = logger
	}
}

func WithHTTPClient(client HTTPDoer) Option {
	return func(options *serviceOptions) {
		options.httpClient = client
	}
}

func WithStateMachine(machine *core.StateMachine) Option {
	return func(options *serviceOptions) {
		options.machine = machine
	}
}

func WithUserStore(store core.UserStore) Option {
	return func(options *serviceOptions) {
		options.users = store
	}
}

func WithPassStore(store core.PassStore) Option {
	return func(options *serviceOptions) {
		options.passes = store
	}
}

func WithSeenLedger(ledger webhooks.SeenLedger) Option {
	return func(options *serviceOptions) {
		options.ledger = ledger
	}
}

func WithVerifier(verifier webhooks.Verifier) Option {
	return func(options *serviceOptions) {
		options.verifier = verifier
	}
}

func WithNow(now func() time.Time) Option {
	return func(options *serviceOptions) {
		options.now = now
	}
}

// Service is the assembled facade. Lifecycle operations delegate to the
// orchestrator, callback deliveries to the ingestor, and callback
// registration to the platform client.
type Service struct {
	config       Config
	logger       core.Logger
	broker       *auth.Broker
	platform     *platform.Client
	orchestrator *provision.Orchestrator
	ingestor     *webhooks.Ingestor
}

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func New(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := serviceOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}

	logger := glog.Ensure(options.logger)
	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	broker, err := auth.NewBroker(auth.BrokerConfig{
		TokenURL:       cfg.TokenURL(),
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		SafetyMargin:   cfg.TokenSafetyMargin,
		RequestTimeout: cfg.RequestTimeout,
		Now:            options.now,
	}, httpClient)
	if err != nil {
		return nil, err
	}

	client, err := platform.NewClient(platform.ClientConfig{
		BaseURL:            cfg.BaseURL,
		ApplicationID:      cfg.ApplicationID,
		ApplicationVersion: cfg.ApplicationVersion,
		RequestTimeout:     cfg.RequestTimeout,
		MaxAttempts:        cfg.MaxAttempts,
		Logger:             logger,
		Now:                options.now,
	}, httpClient, broker)
	if err != nil {
		return nil, err
	}

	machine := options.machine
	if machine == nil {
		machine = core.NewStateMachine()
		if options.now != nil {
			machine.Now = options.now
		}
	}

	orchestrator, err := provision.NewOrchestrator(client, machine, provision.Config{
		Logger: logger,
		Users:  options.users,
		Passes: options.passes,
	})
	if err != nil {
		return nil, err
	}

	service := &Service{
		config:       cfg,
		logger:       logger,
		broker:       broker,
		platform:     client,
		orchestrator: orchestrator,
	}

	verifier := options.verifier
	if verifier == nil && strings.TrimSpace(cfg.Callback.Secret) != "" {
		verifier, err = webhooks.VerifierFromConfig(cfg.Callback)
		if err != nil {
			return nil, err
		}
	}
	if verifier != nil {
		ingestor, err := webhooks.NewIngestor(webhooks.Config{
			Verifier: verifier,
			Ledger:   options.ledger,
			Machine:  machine,
			Logger:   logger,
			Passes:   options.passes,
		})
		if err != nil {
			return nil, err
		}
		service.ingestor = ingestor
	}

	return service, nil
}

func (s *Service) Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error) {
	return s.orchestrator.Provision(ctx, req)
}

func (s *Service) ReissueToken(ctx context.Context, passID string) (*core.IssuanceToken, error) {
	return s.orchestrator.ReissueToken(ctx, passID)
}

func (s *Service) Suspend(ctx context.Context, passID string) error {
	return s.orchestrator.Suspend(ctx, passID)
}

func (s *Service) Resume(ctx context.Context, passID string) error {
	return s.orchestrator.Resume(ctx, passID)
}

func (s *Service) Delete(ctx context.Context, passID string) error {
	return s.orchestrator.Delete(ctx, passID)
}

func (s *Service) OffboardUser(ctx context.Context, platformUserID string) error {
	return s.orchestrator.OffboardUser(ctx, platformUserID)
}

// Ingest applies a callback delivery. It fails when the service was
// built without a callback secret or an explicit verifier.
func (s *Service) Ingest(ctx context.Context, delivery Delivery) (Receipt, error) {
	if s == nil || s.ingestor == nil {
		return Receipt{}, core.NewError(
			"access: callback verification is not configured",
			goerrors.CategoryInternal,
			core.ErrorInternal,
			nil,
		)
	}
	return s.ingestor.Ingest(ctx, delivery)
}

func (s *Service) RegisterCallback(ctx context.Context, registration core.CallbackRegistration) (core.CallbackRegistration, error) {
	return s.platform.RegisterCallback(ctx, registration)
}

func (s *Service) ListCallbacks(ctx context.Context) ([]core.CallbackRegistration, error) {
	return s.platform.ListCallbacks(ctx)
}

func (s *Service) DeleteCallback(ctx context.Context, callbackID string) error {
	return s.platform.DeleteCallback(ctx, callbackID)
}

func (s *Service) Platform() *platform.Client {
	if s == nil {
		return nil
	}
	return s.platform
}

func (s *Service) Orchestrator() *provision.Orchestrator {
	if s == nil {
		return nil
	}
	return s.orchestrator
}

func (s *Service) Ingestor() *webhooks.Ingestor {
	if s == nil {
		return nil
	}
	return s.ingestor
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}
