package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/stepauth/stepauth/internal/pkg/goerror"
	"github.com/stepauth/stepauth/internal/pkg/mfa"
)

type TotpConfirmInput struct {
	Code string `validate:"required,numeric"`

	Subject string
}

type TotpConfirmOutput struct {
	RecoveryCodes []string
}

// TotpConfirm completes enrollment: one correct code proves the authenticator
// holds the secret, after which the factor starts gating login. The returned
// recovery codes are shown exactly once.
func (s *Usecase) TotpConfirm(ctx context.Context, in TotpConfirmInput) (*TotpConfirmOutput, error) {
	ctx, span := s.startSpan(ctx, "TotpConfirm")
	defer span.End()

	in.Code = strings.TrimSpace(in.Code)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	cred, err := s.repoDB.GetCredentialBySubject(ctx, in.Subject)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "credential not found", "subject", in.Subject)
		return nil, goerror.NewBusiness("no pending authenticator setup", goerror.CodeConflict)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get credential", "subject", in.Subject, "error", err)
		return nil, goerror.NewServer(err)
	}

	if !cred.Pending() {
		slog.WarnContext(ctx, "no pending totp enrollment", "user_id", cred.UserID)
		return nil, goerror.NewBusiness("no pending authenticator setup", goerror.CodeConflict)
	}

	secret, err := s.mfaEncryptor.Decrypt(cred.TotpSecret, mfa.Scope{
		UserID:  cred.UserID,
		Purpose: mfa.PurposeOTPSeed,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to decrypt pending totp secret", "user_id", cred.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if !s.totp.Validate(in.Code, string(secret), s.clock.Now()) {
		slog.WarnContext(ctx, "totp confirmation code not match", "user_id", cred.UserID)
		return nil, goerror.NewBusiness("invalid code", goerror.CodeUnauthorized)
	}

	if err := s.repoDB.ConfirmTotp(ctx, in.Subject, s.clock.Now()); err != nil {
		if errors.Is(err, goerror.ErrNotFound) {
			slog.WarnContext(ctx, "totp enrollment changed concurrently", "user_id", cred.UserID)
			return nil, goerror.NewBusiness("no pending authenticator setup", goerror.CodeConflict)
		}
		slog.ErrorContext(ctx, "failed to confirm totp enrollment", "user_id", cred.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	codes, err := s.issueRecoveryCodes(ctx, cred.UserID)
	if err != nil {
		return nil, err
	}

	return &TotpConfirmOutput{RecoveryCodes: codes}, nil
}

// issueRecoveryCodes replaces the user's recovery code set and returns the
// plaintext codes. Only the argon2id hashes are persisted.
func (s *Usecase) issueRecoveryCodes(ctx context.Context, userID int64) ([]string, error) {
	codes, err := s.mfaRecoveryCode.Generate()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate recovery codes", "user_id", userID, "error", err)
		return nil, goerror.NewServer(err)
	}

	ids := make([]int64, 0, len(codes))
	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		hashed, err := s.argon2id.Hash(code)
		if err != nil {
			slog.ErrorContext(ctx, "failed to hash recovery code", "user_id", userID, "error", err)
			return nil, goerror.NewServer(err)
		}

		ids = append(ids, s.uid.Generate())
		hashes = append(hashes, string(hashed))
	}

	if err := s.repoDB.ReplaceRecoveryCodes(ctx, userID, ids, hashes); err != nil {
		slog.ErrorContext(ctx, "failed to replace recovery codes", "user_id", userID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return codes, nil
}
