package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/stepauth/stepauth/internal/auth/entity"
	"github.com/stepauth/stepauth/internal/pkg/goerror"
	"github.com/stepauth/stepauth/internal/pkg/idempotency"
	"github.com/stepauth/stepauth/internal/pkg/ratelimit"
)

type OtpResendInput struct {
	SessionID string
	IP        string
	UserAgent string
}

// OtpResend issues a fresh code for the pending OTP challenge. The previous
// unused rows stay in place; verification only ever consults the newest, so a
// resend supersedes without deleting.
//
// The handler answer is always the same generic "a new code has been sent",
// so duplicate submissions collapsed by the idempotency tracker are reported
// as success here.
func (s *Usecase) OtpResend(ctx context.Context, in OtpResendInput) error {
	ctx, span := s.startSpan(ctx, "OtpResend")
	defer span.End()

	ch, err := s.currentChallenge(ctx, in.SessionID, entity.FactorOTP)
	if err != nil {
		return err
	}

	limitKey := ratelimit.Key("otp_resend", ch.Subject)
	if err := s.guardRateLimit(ctx, limitKey, s.cfg.GetInt64("ratelimit.otp_resend.max")); err != nil {
		return err
	}
	s.hitRateLimit(ctx, limitKey, s.cfg.GetSecond("ratelimit.otp_resend.window_seconds"))

	err = s.idemp.Exec(ctx, "otp_resend:"+in.SessionID, func(ctx context.Context) error {
		return s.issueOtp(ctx, ch.Subject, ch.Identifier, ch.Channel, ch.Purpose, in.IP, in.UserAgent)
	},
		idempotency.WithLockDuration(10*time.Second),
		idempotency.WithStateTTL(10*time.Second),
	)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, idempotency.ErrAlreadyInProgress),
		errors.Is(err, idempotency.ErrAlreadyCompleted),
		errors.Is(err, idempotency.ErrAlreadyFailed):
		slog.WarnContext(ctx, "duplicate otp resend collapsed", "session_id", in.SessionID, "state", err)
		return nil
	default:
		var gerr *goerror.Error
		if errors.As(err, &gerr) {
			return err
		}
		slog.ErrorContext(ctx, "failed to resend otp code", "subject", ch.Subject, "error", err)
		return goerror.NewServer(err)
	}
}
