package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/acmecorp/go-mobile-access/core"
)

var (
	_ gocmd.Querier[GetPassMessage, core.Pass]           = (*GetPassQuery)(nil)
	_ gocmd.Querier[ListUserPassesMessage, []core.Pass]  = (*ListUserPassesQuery)(nil)
	_ gocmd.Querier[GetUserMessage, core.EnterpriseUser] = (*GetUserQuery)(nil)
)
