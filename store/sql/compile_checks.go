package sqlstore

import (
	"github.com/acmecorp/go-mobile-access/core"
	"github.com/acmecorp/go-mobile-access/webhooks"
)

var (
	_ core.UserStore      = (*UserStore)(nil)
	_ core.PassStore      = (*PassStore)(nil)
	_ core.PassStore      = (*CachedPassStore)(nil)
	_ webhooks.SeenLedger = (*EventDeliveryStore)(nil)
)
