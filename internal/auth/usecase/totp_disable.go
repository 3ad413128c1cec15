package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stepauth/stepauth/internal/pkg/goerror"
)

type TotpDisableInput struct {
	Password string `validate:"required"`

	Subject string
}

// TotpDisable turns the authenticator factor off. The secret, its
// confirmation mark, and every recovery code go away in one transaction so a
// half-disabled state is never observable.
func (s *Usecase) TotpDisable(ctx context.Context, in TotpDisableInput) error {
	ctx, span := s.startSpan(ctx, "TotpDisable")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	user, err := s.recheckPassword(ctx, in.Subject, in.Password)
	if err != nil {
		return err
	}

	cred, err := s.repoDB.GetCredentialBySubject(ctx, in.Subject)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get credential", "subject", in.Subject, "error", err)
		return goerror.NewServer(err)
	}

	if !cred.Enabled() && !cred.Pending() {
		slog.WarnContext(ctx, "authenticator is not set up", "user_id", user.ID)
		return goerror.NewBusiness("authenticator is not enabled", goerror.CodeConflict)
	}

	if err := s.repoDB.DisableTotp(ctx, in.Subject); err != nil {
		if errors.Is(err, goerror.ErrNotFound) {
			slog.WarnContext(ctx, "credential disappeared during disable", "user_id", user.ID)
			return goerror.NewBusiness("authenticator is not enabled", goerror.CodeConflict)
		}
		slog.ErrorContext(ctx, "failed to disable totp", "user_id", user.ID, "error", err)
		return goerror.NewServer(err)
	}

	return nil
}
