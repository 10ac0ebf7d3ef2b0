package command

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/acmecorp/go-mobile-access/core"
)

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}
