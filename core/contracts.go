package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// Logger aliases keep the rest of the module decoupled from the
// logging library's import path.
type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// UserStore persists the enterprise-user to platform-user binding.
type UserStore interface {
	Upsert(ctx context.Context, user EnterpriseUser) (EnterpriseUser, error)
	GetByExternalID(ctx context.Context, externalID string) (EnterpriseUser, error)
	Delete(ctx context.Context, externalID string) error
}

// PassStore records pass lifecycle bookkeeping. Issuance token values
// never pass through this interface.
type PassStore interface {
	Upsert(ctx context.Context, pass Pass) (Pass, error)
	Get(ctx context.Context, passID string) (Pass, error)
	ListByUser(ctx context.Context, userID string) ([]Pass, error)
}
