// Package command exposes the lifecycle operations as go-command
// messages so callers can route them through a dispatcher or bus.
package command

import (
	"fmt"
	"strings"

	"github.com/acmecorp/go-mobile-access/core"
)

const (
	TypeProvision        = "access.command.provision"
	TypeReissueToken     = "access.command.token.reissue"
	TypeSuspendPass      = "access.command.pass.suspend"
	TypeResumePass       = "access.command.pass.resume"
	TypeDeletePass       = "access.command.pass.delete"
	TypeOffboardUser     = "access.command.user.offboard"
	TypeRegisterCallback = "access.command.callback.register"
)

type ProvisionMessage struct {
	User       core.EnterpriseUser
	TemplateID string
}

func (ProvisionMessage) Type() string { return TypeProvision }

func (m ProvisionMessage) Validate() error {
	if strings.TrimSpace(m.User.ExternalID) == "" && !m.User.Synced() {
		return fmt.Errorf("command: user external id is required")
	}
	if strings.TrimSpace(m.TemplateID) == "" {
		return fmt.Errorf("command: template id is required")
	}
	return nil
}

type ReissueTokenMessage struct {
	PassID string
}

func (ReissueTokenMessage) Type() string { return TypeReissueToken }

func (m ReissueTokenMessage) Validate() error {
	return requirePassID(m.PassID)
}

type SuspendPassMessage struct {
	PassID string
}

func (SuspendPassMessage) Type() string { return TypeSuspendPass }

func (m SuspendPassMessage) Validate() error {
	return requirePassID(m.PassID)
}

type ResumePassMessage struct {
	PassID string
}

func (ResumePassMessage) Type() string { return TypeResumePass }

func (m ResumePassMessage) Validate() error {
	return requirePassID(m.PassID)
}

type DeletePassMessage struct {
	PassID string
}

func (DeletePassMessage) Type() string { return TypeDeletePass }

func (m DeletePassMessage) Validate() error {
	return requirePassID(m.PassID)
}

type OffboardUserMessage struct {
	PlatformUserID string
}

func (OffboardUserMessage) Type() string { return TypeOffboardUser }

func (m OffboardUserMessage) Validate() error {
	if strings.TrimSpace(m.PlatformUserID) == "" {
		return fmt.Errorf("command: platform user id is required")
	}
	return nil
}

type RegisterCallbackMessage struct {
	Registration core.CallbackRegistration
}

func (RegisterCallbackMessage) Type() string { return TypeRegisterCallback }

func (m RegisterCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Registration.URL) == "" {
		return fmt.Errorf("command: callback url is required")
	}
	return nil
}

func requirePassID(passID string) error {
	if strings.TrimSpace(passID) == "" {
		return fmt.Errorf("command: pass id is required")
	}
	return nil
}
