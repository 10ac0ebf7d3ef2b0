package query

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/acmecorp/go-mobile-access/core"
)

type stubPassReader struct {
	pass   core.Pass
	passes []core.Pass
	err    error

	gotPassID string
	gotUserID string
}

func (s *stubPassReader) Get(_ context.Context, passID string) (core.Pass, error) {
	s.gotPassID = passID
	return s.pass, s.err
}

func (s *stubPassReader) ListByUser(_ context.Context, userID string) ([]core.Pass, error) {
	s.gotUserID = userID
	return s.passes, s.err
}

type stubUserReader struct {
	user core.EnterpriseUser
	err  error

	gotExternalID string
}

func (s *stubUserReader) GetByExternalID(_ context.Context, externalID string) (core.EnterpriseUser, error) {
	s.gotExternalID = externalID
	return s.user, s.err
}

func TestGetPassQuery_DelegatesToReader(t *testing.T) {
	reader := &stubPassReader{pass: core.Pass{PassID: "pass-1", Status: core.PassStatusActive}}

	pass, err := NewGetPassQuery(reader).Query(context.Background(), GetPassMessage{PassID: "pass-1"})
	if err != nil {
		t.Fatalf("get pass query: %v", err)
	}
	if reader.gotPassID != "pass-1" {
		t.Fatalf("expected reader to receive pass-1, got %q", reader.gotPassID)
	}
	if pass.Status != core.PassStatusActive {
		t.Fatalf("expected ACTIVE pass, got %q", pass.Status)
	}
}

func TestListUserPassesQuery_DelegatesToReader(t *testing.T) {
	reader := &stubPassReader{passes: []core.Pass{
		{PassID: "pass-1", UserID: "usr-1"},
		{PassID: "pass-2", UserID: "usr-1"},
	}}

	passes, err := NewListUserPassesQuery(reader).Query(context.Background(), ListUserPassesMessage{UserID: "usr-1"})
	if err != nil {
		t.Fatalf("list user passes query: %v", err)
	}
	if reader.gotUserID != "usr-1" {
		t.Fatalf("expected reader to receive usr-1, got %q", reader.gotUserID)
	}
	if len(passes) != 2 {
		t.Fatalf("expected 2 passes, got %d", len(passes))
	}
}

func TestGetUserQuery_DelegatesToReader(t *testing.T) {
	reader := &stubUserReader{user: core.EnterpriseUser{ExternalID: "EMP-1", PlatformUserID: "usr-plat-1"}}

	user, err := NewGetUserQuery(reader).Query(context.Background(), GetUserMessage{ExternalID: "EMP-1"})
	if err != nil {
		t.Fatalf("get user query: %v", err)
	}
	if reader.gotExternalID != "EMP-1" {
		t.Fatalf("expected reader to receive EMP-1, got %q", reader.gotExternalID)
	}
	if user.PlatformUserID != "usr-plat-1" {
		t.Fatalf("expected platform binding, got %q", user.PlatformUserID)
	}
}

func TestQueries_NilReaderReturnsRichError(t *testing.T) {
	var q *GetPassQuery
	_, err := q.Query(context.Background(), GetPassMessage{PassID: "pass-1"})
	if err == nil {
		t.Fatalf("expected dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.ErrorInternal, rich.TextCode)
	}
	if rich.Code != http.StatusInternalServerError {
		t.Fatalf("expected %d code, got %d", http.StatusInternalServerError, rich.Code)
	}

	if _, err := NewListUserPassesQuery(nil).Query(context.Background(), ListUserPassesMessage{UserID: "u"}); err == nil {
		t.Fatalf("expected missing pass reader to fail")
	}
	if _, err := NewGetUserQuery(nil).Query(context.Background(), GetUserMessage{ExternalID: "e"}); err == nil {
		t.Fatalf("expected missing user reader to fail")
	}
}

func TestQueryMessages_Validate(t *testing.T) {
	if err := (GetPassMessage{}).Validate(); err == nil {
		t.Fatalf("expected empty pass id to fail validation")
	}
	if err := (ListUserPassesMessage{UserID: "  "}).Validate(); err == nil {
		t.Fatalf("expected blank user id to fail validation")
	}
	if err := (GetUserMessage{ExternalID: "EMP-1"}).Validate(); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
}
