// Package query exposes read operations over persisted passes and
// users as go-command queries.
package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetPass        = "access.query.pass.get"
	TypeListUserPasses = "access.query.user_passes.list"
	TypeGetUser        = "access.query.user.get"
)

type GetPassMessage struct {
	PassID string
}

func (GetPassMessage) Type() string { return TypeGetPass }

func (m GetPassMessage) Validate() error {
	if strings.TrimSpace(m.PassID) == "" {
		return fmt.Errorf("query: pass id is required")
	}
	return nil
}

type ListUserPassesMessage struct {
	UserID string
}

func (ListUserPassesMessage) Type() string { return TypeListUserPasses }

func (m ListUserPassesMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("query: user id is required")
	}
	return nil
}

type GetUserMessage struct {
	ExternalID string
}

func (GetUserMessage) Type() string { return TypeGetUser }

func (m GetUserMessage) Validate() error {
	if strings.TrimSpace(m.ExternalID) == "" {
		return fmt.Errorf("query: external id is required")
	}
	return nil
}
