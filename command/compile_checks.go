package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ProvisionMessage]        = (*ProvisionCommand)(nil)
	_ gocmd.Commander[ReissueTokenMessage]     = (*ReissueTokenCommand)(nil)
	_ gocmd.Commander[SuspendPassMessage]      = (*SuspendPassCommand)(nil)
	_ gocmd.Commander[ResumePassMessage]       = (*ResumePassCommand)(nil)
	_ gocmd.Commander[DeletePassMessage]       = (*DeletePassCommand)(nil)
	_ gocmd.Commander[OffboardUserMessage]     = (*OffboardUserCommand)(nil)
	_ gocmd.Commander[RegisterCallbackMessage] = (*RegisterCallbackCommand)(nil)
)
