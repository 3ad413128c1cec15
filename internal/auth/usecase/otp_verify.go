package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/stepauth/stepauth/internal/auth/entity"
	"github.com/stepauth/stepauth/internal/pkg/goerror"
	"github.com/stepauth/stepauth/internal/pkg/ratelimit"
)

type OtpVerifyInput struct {
	Code string `validate:"required,numeric"`

	SessionID string
	IP        string
}

type OtpVerifyOutput struct {
	SessionToken string
}

// OtpVerify checks a delivered code against the pending OTP challenge and,
// when it matches, finalizes the session.
//
// A missing challenge and a challenge waiting on a different factor get the
// same answer before any rate-limit bookkeeping: neither response may reveal
// what, if anything, is pending.
func (s *Usecase) OtpVerify(ctx context.Context, in OtpVerifyInput) (*OtpVerifyOutput, error) {
	ctx, span := s.startSpan(ctx, "OtpVerify")
	defer span.End()

	in.Code = strings.TrimSpace(in.Code)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	ch, err := s.currentChallenge(ctx, in.SessionID, entity.FactorOTP)
	if err != nil {
		return nil, err
	}

	limitKey := ratelimit.Key("otp_verify", ch.Subject, in.IP)
	limitWindow := s.cfg.GetSecond("ratelimit.otp_verify.window_seconds")
	if err := s.guardRateLimit(ctx, limitKey, s.cfg.GetInt64("ratelimit.otp_verify.max")); err != nil {
		return nil, err
	}

	rec, err := s.repoDB.GetLatestOtpCode(ctx, ch.Subject, ch.Purpose, ch.Channel)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "no unused otp code for challenge", "subject", ch.Subject)
		return nil, s.otpExpired(ctx, in.SessionID, limitKey, limitWindow)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get latest otp code", "subject", ch.Subject, "error", err)
		return nil, goerror.NewServer(err)
	}

	if s.clock.Now().After(rec.ExpiresAt) {
		slog.WarnContext(ctx, "otp code has expired", "subject", ch.Subject, "otp_id", rec.ID)
		return nil, s.otpExpired(ctx, in.SessionID, limitKey, limitWindow)
	}

	attempts, err := s.repoDB.IncrementOtpAttempts(ctx, rec.ID)
	if errors.Is(err, goerror.ErrNotFound) {
		// consumed by a concurrent request between lookup and increment
		slog.WarnContext(ctx, "otp code consumed concurrently", "subject", ch.Subject, "otp_id", rec.ID)
		return nil, s.otpExpired(ctx, in.SessionID, limitKey, limitWindow)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to increment otp attempts", "otp_id", rec.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if attempts > s.cfg.GetInt32("modules.auth.otp_max_attempts") {
		slog.WarnContext(ctx, "otp attempt limit reached", "subject", ch.Subject, "otp_id", rec.ID, "attempts", attempts)
		return nil, s.otpExpired(ctx, in.SessionID, limitKey, limitWindow)
	}

	if !s.hmac.Verify(rec.CodeHash, otpPayload(in.Code, ch.Subject, ch.Purpose, ch.Channel)) {
		slog.WarnContext(ctx, "otp code not match", "subject", ch.Subject, "otp_id", rec.ID, "attempts", attempts)
		s.hitRateLimit(ctx, limitKey, limitWindow)
		return nil, goerror.NewBusiness("invalid code", goerror.CodeUnauthorized)
	}

	won, err := s.repoDB.MarkOtpCodeUsed(ctx, rec.ID, s.clock.Now())
	if err != nil {
		slog.ErrorContext(ctx, "failed to mark otp code used", "otp_id", rec.ID, "error", err)
		return nil, goerror.NewServer(err)
	}
	if !won {
		slog.WarnContext(ctx, "otp code already used", "subject", ch.Subject, "otp_id", rec.ID)
		return nil, s.otpExpired(ctx, in.SessionID, limitKey, limitWindow)
	}

	if err := s.limiter.Clear(ctx, limitKey); err != nil {
		slog.ErrorContext(ctx, "failed to clear rate limit counter", "key", limitKey, "error", err)
	}

	token, err := s.finalizeLogin(ctx, in.SessionID, ch.Subject, ch.Remember, in.IP)
	if err != nil {
		return nil, err
	}

	return &OtpVerifyOutput{SessionToken: token}, nil
}

// currentChallenge loads the pending challenge and enforces the factor gate.
// Absence and factor mismatch are indistinguishable to the caller.
func (s *Usecase) currentChallenge(ctx context.Context, sessionID string, factor entity.FactorType) (*entity.Challenge, error) {
	if sessionID == "" {
		return nil, goerror.NewBusiness("no active challenge", goerror.CodeUnauthorized)
	}

	ch, err := s.challenges.Get(ctx, sessionID)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "no challenge for session", "session_id", sessionID)
		return nil, goerror.NewBusiness("no active challenge", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to load challenge", "session_id", sessionID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if ch.Factor != factor {
		slog.WarnContext(ctx, "challenge factor mismatch",
			"session_id", sessionID, "pending", ch.Factor.String(), "submitted", factor.String())
		return nil, goerror.NewBusiness("no active challenge", goerror.CodeUnauthorized)
	}

	return ch, nil
}

// otpExpired is the shared terminal path for every "code unusable" outcome:
// the challenge is cleared so the client restarts from the password step.
func (s *Usecase) otpExpired(ctx context.Context, sessionID, limitKey string, limitWindow time.Duration) error {
	s.hitRateLimit(ctx, limitKey, limitWindow)
	s.clearChallenge(ctx, sessionID)

	return goerror.NewBusiness("code has expired", goerror.CodeUnauthorized)
}

// finalizeLogin is the only transition into an authenticated session. The old
// session ID dies with the challenge; the subject gets a fresh one.
func (s *Usecase) finalizeLogin(ctx context.Context, oldSessionID, subject string, remember bool, ip string) (string, error) {
	s.clearChallenge(ctx, oldSessionID)

	_, token, err := s.sessions.Finalize(ctx, oldSessionID, subject, remember)
	if err != nil {
		slog.ErrorContext(ctx, "failed to finalize session", "subject", subject, "error", err)
		return "", goerror.NewServer(err)
	}

	if err := s.repoDB.UpdateLastLogin(ctx, subject, s.clock.Now(), ip); err != nil {
		// audit stamp only, the login itself already succeeded
		slog.ErrorContext(ctx, "failed to stamp last login", "subject", subject, "error", err)
	}

	return token, nil
}
