package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stepauth/stepauth/internal/pkg/goerror"
)

type RecoveryCodesInput struct {
	Password string `validate:"required"`

	Subject string
}

type RecoveryCodesOutput struct {
	RecoveryCodes []string
}

// RecoveryCodesRegenerate replaces the whole recovery code set. Old codes
// stop working immediately; the fresh plaintext set is shown exactly once.
func (s *Usecase) RecoveryCodesRegenerate(ctx context.Context, in RecoveryCodesInput) (*RecoveryCodesOutput, error) {
	ctx, span := s.startSpan(ctx, "RecoveryCodesRegenerate")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	user, err := s.recheckPassword(ctx, in.Subject, in.Password)
	if err != nil {
		return nil, err
	}

	cred, err := s.repoDB.GetCredentialBySubject(ctx, in.Subject)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "credential not found", "subject", in.Subject)
		return nil, goerror.NewBusiness("authenticator is not enabled", goerror.CodeConflict)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get credential", "subject", in.Subject, "error", err)
		return nil, goerror.NewServer(err)
	}

	if !cred.Enabled() {
		slog.WarnContext(ctx, "recovery codes require an enabled authenticator", "user_id", user.ID)
		return nil, goerror.NewBusiness("authenticator is not enabled", goerror.CodeConflict)
	}

	codes, err := s.issueRecoveryCodes(ctx, cred.UserID)
	if err != nil {
		return nil, err
	}

	return &RecoveryCodesOutput{RecoveryCodes: codes}, nil
}
