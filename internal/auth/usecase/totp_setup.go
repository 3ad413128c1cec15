package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stepauth/stepauth/internal/auth/entity"
	"github.com/stepauth/stepauth/internal/pkg/goerror"
	"github.com/stepauth/stepauth/internal/pkg/mfa"
)

type TotpSetupInput struct {
	Password string `validate:"required"`

	Subject string
}

type TotpSetupOutput struct {
	Secret string
	URI    string
	QRPng  []byte
}

// TotpSetup starts authenticator enrollment for the signed-in user. The
// secret is stored encrypted and unconfirmed; it gates nothing until one
// correct code is submitted through TotpConfirm. Re-running setup before
// confirming replaces the pending secret.
func (s *Usecase) TotpSetup(ctx context.Context, in TotpSetupInput) (*TotpSetupOutput, error) {
	ctx, span := s.startSpan(ctx, "TotpSetup")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	user, err := s.recheckPassword(ctx, in.Subject, in.Password)
	if err != nil {
		return nil, err
	}

	if user.TotpEnabled {
		slog.WarnContext(ctx, "authenticator already enabled", "user_id", user.ID)
		return nil, goerror.NewBusiness("authenticator already enabled", goerror.CodeConflict)
	}

	secret, uri, err := s.totp.Generate(user.Email)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate totp secret", "user_id", user.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	encrypted, err := s.mfaEncryptor.Encrypt([]byte(secret), mfa.Scope{
		UserID:  user.ID,
		Purpose: mfa.PurposeOTPSeed,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to encrypt totp secret", "user_id", user.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if err := s.repoDB.SavePendingTotpSecret(ctx, in.Subject, encrypted); err != nil {
		if errors.Is(err, goerror.ErrConflict) {
			slog.WarnContext(ctx, "authenticator confirmed concurrently", "user_id", user.ID)
			return nil, goerror.NewBusiness("authenticator already enabled", goerror.CodeConflict)
		}
		slog.ErrorContext(ctx, "failed to save pending totp secret", "user_id", user.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	png, err := s.totp.QRCode(uri)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render enrollment qr code", "user_id", user.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &TotpSetupOutput{
		Secret: secret,
		URI:    uri,
		QRPng:  png,
	}, nil
}

// recheckPassword reloads the credential and verifies the current password,
// required before any factor-management change.
func (s *Usecase) recheckPassword(ctx context.Context, subject, password string) (*entity.UserLoginInfo, error) {
	user, err := s.repoDB.GetUserLoginInfoBySubject(ctx, subject)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "user account not found", "subject", subject)
		return nil, goerror.NewBusiness("invalid password", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get user by subject", "subject", subject, "error", err)
		return nil, goerror.NewServer(err)
	}

	if err := s.ensureUserStatusAllowed(ctx, user.ID, user.Status); err != nil {
		return nil, err
	}

	if !s.bcrypt.Verify(user.Password, password) {
		slog.WarnContext(ctx, "password user account not match", "user_id", user.ID)
		return nil, goerror.NewBusiness("invalid password", goerror.CodeUnauthorized)
	}

	return user, nil
}
