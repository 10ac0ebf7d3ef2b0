package query

import (
	"context"

	"github.com/acmecorp/go-mobile-access/core"
)

// PassReader is the read slice of the pass store.
type PassReader interface {
	Get(ctx context.Context, passID string) (core.Pass, error)
	ListByUser(ctx context.Context, userID string) ([]core.Pass, error)
}

// UserReader is the read slice of the user store.
type UserReader interface {
	GetByExternalID(ctx context.Context, externalID string) (core.EnterpriseUser, error)
}

type GetPassQuery struct {
	reader PassReader
}

func NewGetPassQuery(reader PassReader) *GetPassQuery {
	return &GetPassQuery{reader: reader}
}

func (q *GetPassQuery) Query(ctx context.Context, msg GetPassMessage) (core.Pass, error) {
	if q == nil || q.reader == nil {
		return core.Pass{}, queryDependencyError("query: pass reader is required")
	}
	return q.reader.Get(ctx, msg.PassID)
}

type ListUserPassesQuery struct {
	reader PassReader
}

func NewListUserPassesQuery(reader PassReader) *ListUserPassesQuery {
	return &ListUserPassesQuery{reader: reader}
}

func (q *ListUserPassesQuery) Query(ctx context.Context, msg ListUserPassesMessage) ([]core.Pass, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: pass reader is required")
	}
	return q.reader.ListByUser(ctx, msg.UserID)
}

type GetUserQuery struct {
	reader UserReader
}

func NewGetUserQuery(reader UserReader) *GetUserQuery {
	return &GetUserQuery{reader: reader}
}

func (q *GetUserQuery) Query(ctx context.Context, msg GetUserMessage) (core.EnterpriseUser, error) {
	if q == nil || q.reader == nil {
		return core.EnterpriseUser{}, queryDependencyError("query: user reader is required")
	}
	return q.reader.GetByExternalID(ctx, msg.ExternalID)
}
