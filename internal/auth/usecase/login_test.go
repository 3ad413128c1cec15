package usecase

import (
	"context"
	"testing"

	"github.com/stepauth/stepauth/internal/auth/entity"
	"github.com/stepauth/stepauth/internal/pkg/goerror"
	"github.com/stepauth/stepauth/internal/pkg/ratelimit"
)

func TestLogin(t *testing.T) {
	t.Run("StartsOtpChallenge", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)

		// Act
		out, err := env.uc.Login(context.Background(), LoginInput{
			Email:    testEmail,
			Password: testPassword,
			IP:       "203.0.113.7",
		})

		// Assert
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if out.Factor != "otp" {
			t.Fatalf("expected otp factor, got %q", out.Factor)
		}
		if out.Channel != "email" {
			t.Fatalf("expected email channel, got %q", out.Channel)
		}
		if out.SessionToken != "token-pre-1" {
			t.Fatalf("expected fresh pre-auth token, got %q", out.SessionToken)
		}

		ch, err := env.challenges.Get(context.Background(), "pre-1")
		if err != nil {
			t.Fatalf("expected challenge saved: %v", err)
		}
		if ch.Factor != entity.FactorOTP || ch.Subject != testSubject {
			t.Fatalf("unexpected challenge %+v", ch)
		}

		env.waitDeliveries(t)
		sent := env.delivery.all()
		if len(sent) != 1 {
			t.Fatalf("expected 1 delivery, got %d", len(sent))
		}
		if sent[0].Code != "123456" || sent[0].Identifier != testEmail {
			t.Fatalf("unexpected delivery %+v", sent[0])
		}
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)

		// Act
		_, err := env.uc.Login(context.Background(), LoginInput{
			Email:    "nobody@example.com",
			Password: testPassword,
			IP:       "203.0.113.7",
		})

		// Assert
		assertBusinessError(t, err, "invalid email or password", goerror.CodeUnauthorized)
		key := ratelimit.Key("login", "nobody@example.com", "203.0.113.7")
		if env.limiter.count(key) != 1 {
			t.Fatalf("expected 1 failed attempt recorded, got %d", env.limiter.count(key))
		}
	})

	t.Run("WrongPassword", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)

		// Act
		_, err := env.uc.Login(context.Background(), LoginInput{
			Email:    testEmail,
			Password: "not-the-password",
			IP:       "203.0.113.7",
		})

		// Assert: same answer as an unknown email
		assertBusinessError(t, err, "invalid email or password", goerror.CodeUnauthorized)
		if env.limiter.count(ratelimit.Key("login", testEmail, "203.0.113.7")) != 1 {
			t.Fatalf("expected failed attempt recorded")
		}
	})

	t.Run("BannedAccount", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		user := env.seedUser(false)
		user.Status = entity.UserStatusBanned

		// Act
		_, err := env.uc.Login(context.Background(), LoginInput{
			Email:    testEmail,
			Password: testPassword,
		})

		// Assert
		assertBusinessError(t, err, "account is banned", goerror.CodeForbidden)
	})

	t.Run("RateLimited", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)
		key := ratelimit.Key("login", testEmail, "203.0.113.7")
		env.limiter.counts[key] = 5

		// Act
		_, err := env.uc.Login(context.Background(), LoginInput{
			Email:    testEmail,
			Password: testPassword,
			IP:       "203.0.113.7",
		})

		// Assert
		gerr, ok := err.(*goerror.Error)
		if !ok {
			t.Fatalf("expected *goerror.Error, got %T: %v", err, err)
		}
		if gerr.Code() != goerror.CodeTooManyRequest {
			t.Fatalf("expected too many requests, got %v", gerr.Code())
		}
		if gerr.RetryAfter() != 30 {
			t.Fatalf("expected retry-after 30, got %d", gerr.RetryAfter())
		}
	})

	t.Run("SuccessClearsFailureCounter", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)
		key := ratelimit.Key("login", testEmail, "203.0.113.7")
		env.limiter.counts[key] = 4

		// Act
		_, err := env.uc.Login(context.Background(), LoginInput{
			Email:    testEmail,
			Password: testPassword,
			IP:       "203.0.113.7",
		})

		// Assert
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if env.limiter.count(key) != 0 {
			t.Fatalf("expected counter cleared, got %d", env.limiter.count(key))
		}
	})

	t.Run("StartsTotpChallenge", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(true)

		// Act
		out, err := env.uc.Login(context.Background(), LoginInput{
			Email:    testEmail,
			Password: testPassword,
		})

		// Assert: no code is generated or delivered for an authenticator user
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if out.Factor != "totp" {
			t.Fatalf("expected totp factor, got %q", out.Factor)
		}
		if len(out.AvailableMethods) != 2 || out.AvailableMethods[1] != "recovery_code" {
			t.Fatalf("unexpected methods %v", out.AvailableMethods)
		}

		env.waitDeliveries(t)
		if len(env.delivery.all()) != 0 {
			t.Fatalf("expected no deliveries for totp challenge")
		}

		ch, err := env.challenges.Get(context.Background(), "pre-1")
		if err != nil {
			t.Fatalf("expected challenge saved: %v", err)
		}
		if ch.Factor != entity.FactorTOTP || ch.ExpiresAt.IsZero() {
			t.Fatalf("unexpected challenge %+v", ch)
		}
	})

	t.Run("PhoneChannelFallsBackToEmail", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		user := env.seedUser(false)
		user.Phone = ""

		// Act
		out, err := env.uc.Login(context.Background(), LoginInput{
			Email:    testEmail,
			Password: testPassword,
			Channel:  "sms",
		})

		// Assert: the response must not reveal that no phone is on record
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if out.Channel != "email" {
			t.Fatalf("expected silent fallback to email, got %q", out.Channel)
		}
	})

	t.Run("SmsChannelWithPhone", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)

		// Act
		out, err := env.uc.Login(context.Background(), LoginInput{
			Email:    testEmail,
			Password: testPassword,
			Channel:  "sms",
		})

		// Assert
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if out.Channel != "sms" {
			t.Fatalf("expected sms channel, got %q", out.Channel)
		}

		env.waitDeliveries(t)
		sent := env.delivery.all()
		if len(sent) != 1 || sent[0].Identifier != testPhone {
			t.Fatalf("expected delivery to phone, got %+v", sent)
		}
	})

	t.Run("ReusesPresentedSession", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)

		// Act
		out, err := env.uc.Login(context.Background(), LoginInput{
			Email:     testEmail,
			Password:  testPassword,
			SessionID: "existing-session",
		})

		// Assert
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if out.SessionToken != "" {
			t.Fatalf("expected no new token when session presented, got %q", out.SessionToken)
		}
		if !env.challenges.has("existing-session") {
			t.Fatalf("expected challenge anchored to presented session")
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)

		// Act
		_, err := env.uc.Login(context.Background(), LoginInput{Email: "not-an-email", Password: "x"})

		// Assert
		gerr, ok := err.(*goerror.Error)
		if !ok {
			t.Fatalf("expected *goerror.Error, got %T: %v", err, err)
		}
		if gerr.Code() != goerror.CodeInvalidInput {
			t.Fatalf("expected invalid input, got %v", gerr.Code())
		}
	})
}
