package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/stepauth/stepauth/internal/auth/entity"
	"github.com/stepauth/stepauth/internal/pkg/goerror"
	"github.com/stepauth/stepauth/internal/pkg/mfa"
	"github.com/stepauth/stepauth/internal/pkg/ratelimit"
)

type TotpVerifyInput struct {
	Code string `validate:"required"`

	SessionID string
	IP        string
}

type TotpVerifyOutput struct {
	SessionToken string
}

// TotpVerify checks an authenticator code, or one of the single-use recovery
// codes, against the pending TOTP challenge and finalizes the session on a
// match.
func (s *Usecase) TotpVerify(ctx context.Context, in TotpVerifyInput) (*TotpVerifyOutput, error) {
	ctx, span := s.startSpan(ctx, "TotpVerify")
	defer span.End()

	in.Code = strings.TrimSpace(in.Code)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	ch, err := s.currentChallenge(ctx, in.SessionID, entity.FactorTOTP)
	if err != nil {
		return nil, err
	}

	limitKey := ratelimit.Key("totp_verify", ch.Subject, in.IP)
	limitWindow := s.cfg.GetSecond("ratelimit.totp_verify.window_seconds")
	if err := s.guardRateLimit(ctx, limitKey, s.cfg.GetInt64("ratelimit.totp_verify.max")); err != nil {
		return nil, err
	}

	if !ch.ExpiresAt.IsZero() && s.clock.Now().After(ch.ExpiresAt) {
		slog.WarnContext(ctx, "totp challenge has expired", "subject", ch.Subject)
		s.hitRateLimit(ctx, limitKey, limitWindow)
		s.clearChallenge(ctx, in.SessionID)
		return nil, goerror.NewBusiness("challenge has expired", goerror.CodeUnauthorized)
	}

	cred, err := s.repoDB.GetCredentialBySubject(ctx, ch.Subject)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "credential not found for challenge", "subject", ch.Subject)
		s.clearChallenge(ctx, in.SessionID)
		return nil, goerror.NewBusiness("no active challenge", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get credential", "subject", ch.Subject, "error", err)
		return nil, goerror.NewServer(err)
	}

	if !cred.Enabled() {
		// factor was disabled after the challenge started, the challenge is stale
		slog.WarnContext(ctx, "totp factor not enabled for challenge", "subject", ch.Subject)
		s.clearChallenge(ctx, in.SessionID)
		return nil, goerror.NewBusiness("no active challenge", goerror.CodeUnauthorized)
	}

	if isRecoveryCodeFormat(in.Code) {
		if err := s.consumeRecoveryCode(ctx, cred.UserID, in.Code, limitKey, limitWindow); err != nil {
			return nil, err
		}
	} else {
		secret, err := s.mfaEncryptor.Decrypt(cred.TotpSecret, mfa.Scope{
			UserID:  cred.UserID,
			Purpose: mfa.PurposeOTPSeed,
		})
		if err != nil {
			// malformed stored secret fails closed, never open
			slog.ErrorContext(ctx, "failed to decrypt totp secret", "user_id", cred.UserID, "error", err)
			return nil, goerror.NewServer(err)
		}

		if !s.totp.Validate(in.Code, string(secret), s.clock.Now()) {
			slog.WarnContext(ctx, "totp code not match", "user_id", cred.UserID)
			s.hitRateLimit(ctx, limitKey, limitWindow)
			return nil, goerror.NewBusiness("invalid code", goerror.CodeUnauthorized)
		}
	}

	if err := s.limiter.Clear(ctx, limitKey); err != nil {
		slog.ErrorContext(ctx, "failed to clear rate limit counter", "key", limitKey, "error", err)
	}

	token, err := s.finalizeLogin(ctx, in.SessionID, ch.Subject, ch.Remember, in.IP)
	if err != nil {
		return nil, err
	}

	return &TotpVerifyOutput{SessionToken: token}, nil
}

// isRecoveryCodeFormat matches the XXXX-XXXX-XXXX shape so recovery codes can
// share the submit field with authenticator codes.
func isRecoveryCodeFormat(code string) bool {
	return len(code) == 14 && code[4] == '-' && code[9] == '-'
}

func (s *Usecase) consumeRecoveryCode(ctx context.Context, userID int64, code, limitKey string, limitWindow time.Duration) error {
	stored, err := s.repoDB.GetRecoveryCodes(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get recovery codes", "user_id", userID, "error", err)
		return goerror.NewServer(err)
	}

	var match *entity.RecoveryCode
	for i := range stored {
		if s.argon2id.Verify(stored[i].CodeHash, code) {
			match = &stored[i]
			break
		}
	}

	if match == nil {
		slog.WarnContext(ctx, "recovery code not match", "user_id", userID)
		s.hitRateLimit(ctx, limitKey, limitWindow)
		return goerror.NewBusiness("invalid code", goerror.CodeUnauthorized)
	}

	won, err := s.repoDB.MarkRecoveryCodeUsed(ctx, match.ID, s.clock.Now())
	if err != nil {
		slog.ErrorContext(ctx, "failed to consume recovery code", "user_id", userID, "error", err)
		return goerror.NewServer(err)
	}
	if !won {
		slog.WarnContext(ctx, "recovery code already used", "user_id", userID)
		s.hitRateLimit(ctx, limitKey, limitWindow)
		return goerror.NewBusiness("invalid code", goerror.CodeUnauthorized)
	}

	return nil
}
