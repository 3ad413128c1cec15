package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stepauth/stepauth/internal/auth/entity"
	"github.com/stepauth/stepauth/internal/pkg/goerror"
	"github.com/stepauth/stepauth/internal/pkg/idempotency"
	"github.com/stepauth/stepauth/internal/pkg/ratelimit"
)

// loginOtp runs the password step for the seeded user and returns the
// pre-auth session ID holding the OTP challenge.
func loginOtp(t *testing.T, env *testEnv) string {
	t.Helper()

	out, err := env.uc.Login(context.Background(), LoginInput{
		Email:    testEmail,
		Password: testPassword,
		IP:       "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if out.Factor != "otp" {
		t.Fatalf("expected otp challenge, got %q", out.Factor)
	}

	return "pre-1"
}

func TestOtpVerify(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)
		sessionID := loginOtp(t, env)

		// Act
		out, err := env.uc.OtpVerify(context.Background(), OtpVerifyInput{
			Code:      "123456",
			SessionID: sessionID,
			IP:        "203.0.113.7",
		})

		// Assert
		if err != nil {
			t.Fatalf("verify failed: %v", err)
		}
		if out.SessionToken != "auth-token" {
			t.Fatalf("expected authenticated token, got %q", out.SessionToken)
		}
		if env.challenges.has(sessionID) {
			t.Fatalf("expected challenge cleared after success")
		}
		if len(env.sessions.finalized) != 1 || env.sessions.finalized[0] != sessionID {
			t.Fatalf("expected session finalized from %q, got %v", sessionID, env.sessions.finalized)
		}
		if env.db.otpRows[0].UsedAt == nil {
			t.Fatalf("expected code row marked used")
		}
		if env.db.lastLoginSubject != testSubject || env.db.lastLoginIP != "203.0.113.7" {
			t.Fatalf("expected last login stamped")
		}
	})

	t.Run("WrongCodeThenRight", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)
		sessionID := loginOtp(t, env)

		// Act
		_, err := env.uc.OtpVerify(context.Background(), OtpVerifyInput{
			Code:      "000000",
			SessionID: sessionID,
			IP:        "203.0.113.7",
		})

		// Assert: a wrong guess burns an attempt but not the challenge
		assertBusinessError(t, err, "invalid code", goerror.CodeUnauthorized)
		if !env.challenges.has(sessionID) {
			t.Fatalf("expected challenge kept after wrong guess")
		}
		if env.limiter.count(ratelimit.Key("otp_verify", testSubject, "203.0.113.7")) != 1 {
			t.Fatalf("expected failed attempt recorded")
		}

		out, err := env.uc.OtpVerify(context.Background(), OtpVerifyInput{
			Code:      "123456",
			SessionID: sessionID,
			IP:        "203.0.113.7",
		})
		if err != nil {
			t.Fatalf("verify after wrong guess failed: %v", err)
		}
		if out.SessionToken == "" {
			t.Fatalf("expected token")
		}
	})

	t.Run("UsedCodeNeverMatchesAgain", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)
		sessionID := loginOtp(t, env)
		if _, err := env.uc.OtpVerify(context.Background(), OtpVerifyInput{
			Code:      "123456",
			SessionID: sessionID,
		}); err != nil {
			t.Fatalf("first verify failed: %v", err)
		}

		// Re-anchor a challenge so the replay reaches the code lookup.
		env.challenges.items[sessionID] = entity.Challenge{
			Factor:     entity.FactorOTP,
			Subject:    testSubject,
			Purpose:    entity.OtpPurposeLogin,
			Channel:    entity.ChannelEmail,
			Identifier: testEmail,
		}

		// Act
		_, err := env.uc.OtpVerify(context.Background(), OtpVerifyInput{
			Code:      "123456",
			SessionID: sessionID,
		})

		// Assert: the used row is gone from lookup, the flow restarts
		assertBusinessError(t, err, "code has expired", goerror.CodeUnauthorized)
		if env.challenges.has(sessionID) {
			t.Fatalf("expected challenge cleared on replay")
		}
	})

	t.Run("AttemptsExhausted", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)
		env.cfg.ints["modules.auth.otp_max_attempts"] = 3
		env.cfg.ints["ratelimit.otp_verify.max"] = 100
		sessionID := loginOtp(t, env)

		for i := 0; i < 3; i++ {
			_, err := env.uc.OtpVerify(context.Background(), OtpVerifyInput{
				Code:      "000000",
				SessionID: sessionID,
			})
			assertBusinessError(t, err, "invalid code", goerror.CodeUnauthorized)
		}

		// Act: the correct code on the attempt after the cap
		_, err := env.uc.OtpVerify(context.Background(), OtpVerifyInput{
			Code:      "123456",
			SessionID: sessionID,
		})

		// Assert
		assertBusinessError(t, err, "code has expired", goerror.CodeUnauthorized)
		if env.challenges.has(sessionID) {
			t.Fatalf("expected challenge cleared after attempt cap")
		}
	})

	t.Run("ExpiredCode", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)
		sessionID := loginOtp(t, env)
		env.clock.Advance(6 * time.Minute)

		// Act
		_, err := env.uc.OtpVerify(context.Background(), OtpVerifyInput{
			Code:      "123456",
			SessionID: sessionID,
		})

		// Assert
		assertBusinessError(t, err, "code has expired", goerror.CodeUnauthorized)
		if env.challenges.has(sessionID) {
			t.Fatalf("expected challenge cleared on expiry")
		}
		if env.db.otpRows[0].Attempts != 0 {
			t.Fatalf("expected no attempt burned on an expired row")
		}
	})

	t.Run("NoChallenge", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)

		// Act
		_, err := env.uc.OtpVerify(context.Background(), OtpVerifyInput{
			Code:      "123456",
			SessionID: "ghost-session",
		})

		// Assert
		assertBusinessError(t, err, "no active challenge", goerror.CodeUnauthorized)
	})

	t.Run("EmptySession", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)

		// Act
		_, err := env.uc.OtpVerify(context.Background(), OtpVerifyInput{Code: "123456"})

		// Assert
		assertBusinessError(t, err, "no active challenge", goerror.CodeUnauthorized)
	})

	t.Run("FactorMismatch", func(t *testing.T) {
		// Arrange: a totp challenge is pending, an otp code arrives
		env := newTestEnv(t)
		env.seedUser(true)
		if _, err := env.uc.Login(context.Background(), LoginInput{
			Email:    testEmail,
			Password: testPassword,
		}); err != nil {
			t.Fatalf("login failed: %v", err)
		}

		// Act
		_, err := env.uc.OtpVerify(context.Background(), OtpVerifyInput{
			Code:      "123456",
			SessionID: "pre-1",
			IP:        "203.0.113.7",
		})

		// Assert: indistinguishable from no challenge, no counters touched
		assertBusinessError(t, err, "no active challenge", goerror.CodeUnauthorized)
		if env.limiter.count(ratelimit.Key("otp_verify", testSubject, "203.0.113.7")) != 0 {
			t.Fatalf("expected no rate-limit bookkeeping before the factor gate")
		}
		if !env.challenges.has("pre-1") {
			t.Fatalf("expected pending totp challenge untouched")
		}
	})
}

func TestOtpResend(t *testing.T) {
	t.Run("SupersedesPreviousCode", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)
		sessionID := loginOtp(t, env)
		env.codes.set("654321")

		// Act
		if err := env.uc.OtpResend(context.Background(), OtpResendInput{SessionID: sessionID}); err != nil {
			t.Fatalf("resend failed: %v", err)
		}

		// Assert: the first code no longer verifies, the fresh one does
		_, err := env.uc.OtpVerify(context.Background(), OtpVerifyInput{
			Code:      "123456",
			SessionID: sessionID,
		})
		assertBusinessError(t, err, "invalid code", goerror.CodeUnauthorized)

		out, err := env.uc.OtpVerify(context.Background(), OtpVerifyInput{
			Code:      "654321",
			SessionID: sessionID,
		})
		if err != nil {
			t.Fatalf("verify fresh code failed: %v", err)
		}
		if out.SessionToken == "" {
			t.Fatalf("expected token")
		}

		env.waitDeliveries(t)
		if got := len(env.delivery.all()); got != 2 {
			t.Fatalf("expected 2 deliveries, got %d", got)
		}
	})

	t.Run("RateLimited", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)
		sessionID := loginOtp(t, env)

		for i := 0; i < 3; i++ {
			if err := env.uc.OtpResend(context.Background(), OtpResendInput{SessionID: sessionID}); err != nil {
				t.Fatalf("resend %d failed: %v", i, err)
			}
		}

		// Act
		err := env.uc.OtpResend(context.Background(), OtpResendInput{SessionID: sessionID})

		// Assert
		gerr, ok := err.(*goerror.Error)
		if !ok {
			t.Fatalf("expected *goerror.Error, got %T: %v", err, err)
		}
		if gerr.Code() != goerror.CodeTooManyRequest {
			t.Fatalf("expected too many requests, got %v", gerr.Code())
		}
	})

	t.Run("DuplicateCollapsedToSuccess", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)
		sessionID := loginOtp(t, env)
		env.idemp.state = idempotency.ErrAlreadyInProgress

		// Act
		err := env.uc.OtpResend(context.Background(), OtpResendInput{SessionID: sessionID})

		// Assert: the caller always hears the same generic success
		if err != nil {
			t.Fatalf("expected duplicate resend to report success, got %v", err)
		}
	})

	t.Run("NoChallenge", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)

		// Act
		err := env.uc.OtpResend(context.Background(), OtpResendInput{SessionID: "ghost-session"})

		// Assert
		assertBusinessError(t, err, "no active challenge", goerror.CodeUnauthorized)
	})
}
