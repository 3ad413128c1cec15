package usecase

import (
	"context"
	"testing"

	"github.com/stepauth/stepauth/internal/pkg/goerror"
)

func TestTotpEnrollment(t *testing.T) {
	t.Run("SetupThenConfirm", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)

		// Act
		setup, err := env.uc.TotpSetup(context.Background(), TotpSetupInput{
			Password: testPassword,
			Subject:  testSubject,
		})

		// Assert
		if err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		if setup.Secret != testTotpSecret {
			t.Fatalf("unexpected secret %q", setup.Secret)
		}
		if setup.URI == "" || len(setup.QRPng) == 0 {
			t.Fatalf("expected provisioning uri and qr image")
		}

		cred, err := env.db.GetCredentialBySubject(context.Background(), testSubject)
		if err != nil {
			t.Fatalf("expected pending credential: %v", err)
		}
		if !cred.Pending() || cred.Enabled() {
			t.Fatalf("expected unconfirmed enrollment, got %+v", cred)
		}

		confirm, err := env.uc.TotpConfirm(context.Background(), TotpConfirmInput{
			Code:    testTotpCode,
			Subject: testSubject,
		})
		if err != nil {
			t.Fatalf("confirm failed: %v", err)
		}
		if len(confirm.RecoveryCodes) != 10 {
			t.Fatalf("expected 10 recovery codes, got %d", len(confirm.RecoveryCodes))
		}
		for _, code := range confirm.RecoveryCodes {
			if !isRecoveryCodeFormat(code) {
				t.Fatalf("unexpected recovery code shape %q", code)
			}
		}

		user, err := env.db.GetUserLoginInfoBySubject(context.Background(), testSubject)
		if err != nil {
			t.Fatalf("load user: %v", err)
		}
		if !user.TotpEnabled {
			t.Fatalf("expected authenticator enabled after confirm")
		}
	})

	t.Run("SetupWrongPassword", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)

		// Act
		_, err := env.uc.TotpSetup(context.Background(), TotpSetupInput{
			Password: "not-the-password",
			Subject:  testSubject,
		})

		// Assert
		assertBusinessError(t, err, "invalid password", goerror.CodeUnauthorized)
	})

	t.Run("SetupAlreadyEnabled", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(true)

		// Act
		_, err := env.uc.TotpSetup(context.Background(), TotpSetupInput{
			Password: testPassword,
			Subject:  testSubject,
		})

		// Assert
		assertBusinessError(t, err, "authenticator already enabled", goerror.CodeConflict)
	})

	t.Run("ConfirmWithoutSetup", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)

		// Act
		_, err := env.uc.TotpConfirm(context.Background(), TotpConfirmInput{
			Code:    testTotpCode,
			Subject: testSubject,
		})

		// Assert
		assertBusinessError(t, err, "no pending authenticator setup", goerror.CodeConflict)
	})

	t.Run("ConfirmWrongCode", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)
		if _, err := env.uc.TotpSetup(context.Background(), TotpSetupInput{
			Password: testPassword,
			Subject:  testSubject,
		}); err != nil {
			t.Fatalf("setup failed: %v", err)
		}

		// Act
		_, err := env.uc.TotpConfirm(context.Background(), TotpConfirmInput{
			Code:    "000000",
			Subject: testSubject,
		})

		// Assert: enrollment stays pending, nothing gates login yet
		assertBusinessError(t, err, "invalid code", goerror.CodeUnauthorized)
		cred, err := env.db.GetCredentialBySubject(context.Background(), testSubject)
		if err != nil {
			t.Fatalf("load credential: %v", err)
		}
		if !cred.Pending() {
			t.Fatalf("expected enrollment still pending")
		}
	})
}

func TestTotpDisable(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		user := env.seedUser(true)
		env.seedRecoveryCode(t, user.ID, "AbCd-EfGh-IjKl")

		// Act
		err := env.uc.TotpDisable(context.Background(), TotpDisableInput{
			Password: testPassword,
			Subject:  testSubject,
		})

		// Assert: secret and recovery codes are gone together
		if err != nil {
			t.Fatalf("disable failed: %v", err)
		}
		if _, err := env.db.GetCredentialBySubject(context.Background(), testSubject); err == nil {
			t.Fatalf("expected credential removed")
		}
		codes, _ := env.db.GetRecoveryCodes(context.Background(), user.ID)
		if len(codes) != 0 {
			t.Fatalf("expected recovery codes removed, got %d", len(codes))
		}
	})

	t.Run("NotEnabled", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)

		// Act
		err := env.uc.TotpDisable(context.Background(), TotpDisableInput{
			Password: testPassword,
			Subject:  testSubject,
		})

		// Assert
		assertBusinessError(t, err, "authenticator is not enabled", goerror.CodeConflict)
	})
}

func TestRecoveryCodesRegenerate(t *testing.T) {
	t.Run("ReplacesOldSet", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		user := env.seedUser(true)
		env.seedRecoveryCode(t, user.ID, "AbCd-EfGh-IjKl")

		// Act
		out, err := env.uc.RecoveryCodesRegenerate(context.Background(), RecoveryCodesInput{
			Password: testPassword,
			Subject:  testSubject,
		})

		// Assert
		if err != nil {
			t.Fatalf("regenerate failed: %v", err)
		}
		if len(out.RecoveryCodes) != 10 {
			t.Fatalf("expected 10 codes, got %d", len(out.RecoveryCodes))
		}

		stored, err := env.db.GetRecoveryCodes(context.Background(), user.ID)
		if err != nil {
			t.Fatalf("load recovery codes: %v", err)
		}
		if len(stored) != 10 {
			t.Fatalf("expected stored set replaced, got %d rows", len(stored))
		}
		for _, rec := range stored {
			if rec.CodeHash == "argon2:AbCd-EfGh-IjKl" {
				t.Fatalf("expected old code dropped")
			}
		}
	})

	t.Run("NotEnabled", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(false)

		// Act
		_, err := env.uc.RecoveryCodesRegenerate(context.Background(), RecoveryCodesInput{
			Password: testPassword,
			Subject:  testSubject,
		})

		// Assert
		assertBusinessError(t, err, "authenticator is not enabled", goerror.CodeConflict)
	})
}

func TestSessionInfo(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.seedUser(true)

		// Act
		out, err := env.uc.SessionInfo(context.Background(), SessionInfoInput{
			Subject:   testSubject,
			Remember:  true,
			CreatedAt: env.clock.Now(),
		})

		// Assert
		if err != nil {
			t.Fatalf("session info failed: %v", err)
		}
		if out.Email != testEmail || !out.TotpEnabled || !out.Remember {
			t.Fatalf("unexpected output %+v", out)
		}
	})

	t.Run("UnknownSubject", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)

		// Act
		_, err := env.uc.SessionInfo(context.Background(), SessionInfoInput{Subject: "usr_ghost"})

		// Assert
		assertBusinessError(t, err, "account not found", goerror.CodeUnauthorized)
	})
}

func TestLogout(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	env.seedUser(false)
	sessionID := loginOtp(t, env)

	// Act
	err := env.uc.Logout(context.Background(), LogoutInput{SessionID: sessionID})

	// Assert: the half-finished login cannot be resumed
	if err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if env.challenges.has(sessionID) {
		t.Fatalf("expected challenge cleared on logout")
	}
	if len(env.sessions.destroyed) != 1 || env.sessions.destroyed[0] != sessionID {
		t.Fatalf("expected session destroyed, got %v", env.sessions.destroyed)
	}
}
