package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stepauth/stepauth/internal/pkg/goerror"
	"github.com/stepauth/stepauth/internal/pkg/ratelimit"
)

// loginTotp runs the password step for the seeded authenticator user and
// returns the pre-auth session ID holding the TOTP challenge.
func loginTotp(t *testing.T, env *testEnv) string {
	t.Helper()

	out, err := env.uc.Login(context.Background(), LoginInput{
		Email:    testEmail,
		Password: testPassword,
		IP:       "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if out.Factor != "totp" {
		t.Fatalf("expected totp challenge, got %q", out.Factor)
	}

	return "pre-1"
}

func (e *testEnv) seedRecoveryCode(t *testing.T, userID int64, code string) {
	t.Helper()

	if err := e.db.ReplaceRecoveryCodes(context.Background(), userID, []int64{9001}, []string{"argon2:" + code}); err != nil {
		t.Fatalf("seed recovery code: %v", err)
	}
}

func TestTotpVerify(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(true)
		sessionID := loginTotp(t, env)

		// Act
		out, err := env.uc.TotpVerify(context.Background(), TotpVerifyInput{
			Code:      testTotpCode,
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
	})

	t.Run("WrongCode", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(true)
		sessionID := loginTotp(t, env)

		// Act
		_, err := env.uc.TotpVerify(context.Background(), TotpVerifyInput{
			Code:      "000000",
			SessionID: sessionID,
			IP:        "203.0.113.7",
		})

		// Assert
		assertBusinessError(t, err, "invalid code", goerror.CodeUnauthorized)
		if env.limiter.count(ratelimit.Key("totp_verify", testSubject, "203.0.113.7")) != 1 {
			t.Fatalf("expected failed attempt recorded")
		}
		if !env.challenges.has(sessionID) {
			t.Fatalf("expected challenge kept after wrong code")
		}
	})

	t.Run("ChallengeExpired", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(true)
		sessionID := loginTotp(t, env)
		env.clock.Advance(10 * time.Minute)

		// Act
		_, err := env.uc.TotpVerify(context.Background(), TotpVerifyInput{
			Code:      testTotpCode,
			SessionID: sessionID,
		})

		// Assert
		assertBusinessError(t, err, "challenge has expired", goerror.CodeUnauthorized)
		if env.challenges.has(sessionID) {
			t.Fatalf("expected expired challenge cleared")
		}
	})

	t.Run("RecoveryCode", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		user := env.seedUser(true)
		env.seedRecoveryCode(t, user.ID, "AbCd-EfGh-IjKl")
		sessionID := loginTotp(t, env)

		// Act
		out, err := env.uc.TotpVerify(context.Background(), TotpVerifyInput{
			Code:      "AbCd-EfGh-IjKl",
			SessionID: sessionID,
		})

		// Assert
		if err != nil {
			t.Fatalf("verify with recovery code failed: %v", err)
		}
		if out.SessionToken == "" {
			t.Fatalf("expected token")
		}
	})

	t.Run("RecoveryCodeSingleUse", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		user := env.seedUser(true)
		env.seedRecoveryCode(t, user.ID, "AbCd-EfGh-IjKl")
		sessionID := loginTotp(t, env)
		if _, err := env.uc.TotpVerify(context.Background(), TotpVerifyInput{
			Code:      "AbCd-EfGh-IjKl",
			SessionID: sessionID,
		}); err != nil {
			t.Fatalf("first use failed: %v", err)
		}

		// A second login, same recovery code again.
		if _, err := env.uc.Login(context.Background(), LoginInput{
			Email:    testEmail,
			Password: testPassword,
		}); err != nil {
			t.Fatalf("second login failed: %v", err)
		}

		// Act
		_, err := env.uc.TotpVerify(context.Background(), TotpVerifyInput{
			Code:      "AbCd-EfGh-IjKl",
			SessionID: "pre-2",
		})

		// Assert
		assertBusinessError(t, err, "invalid code", goerror.CodeUnauthorized)
	})

	t.Run("FactorMismatch", func(t *testing.T) {
		// Arrange: an otp challenge is pending, an authenticator code arrives
		env := newTestEnv(t)
		env.seedUser(false)
		if _, err := env.uc.Login(context.Background(), LoginInput{
			Email:    testEmail,
			Password: testPassword,
		}); err != nil {
			t.Fatalf("login failed: %v", err)
		}

		// Act
		_, err := env.uc.TotpVerify(context.Background(), TotpVerifyInput{
			Code:      testTotpCode,
			SessionID: "pre-1",
		})

		// Assert
		assertBusinessError(t, err, "no active challenge", goerror.CodeUnauthorized)
		if !env.challenges.has("pre-1") {
			t.Fatalf("expected pending otp challenge untouched")
		}
	})

	t.Run("FactorDisabledAfterChallenge", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(true)
		sessionID := loginTotp(t, env)
		delete(env.db.creds, testSubject)

		// Act
		_, err := env.uc.TotpVerify(context.Background(), TotpVerifyInput{
			Code:      testTotpCode,
			SessionID: sessionID,
		})

		// Assert: the stale challenge dies instead of gating on nothing
		assertBusinessError(t, err, "no active challenge", goerror.CodeUnauthorized)
		if env.challenges.has(sessionID) {
			t.Fatalf("expected stale challenge cleared")
		}
	})
}
