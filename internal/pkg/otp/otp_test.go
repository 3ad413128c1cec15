package otp

import (
	"bytes"
	"strings"
	"testing"
	"time"

	libOTP "github.com/pquerna/otp"
)

func TestTOTPGenerate(t *testing.T) {
	totp := NewTOTP("StepAuth", 30, 1, libOTP.DigitsSix)

	secret, uri, err := totp.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if secret == "" {
		t.Fatal("Generate() secret is empty")
	}
	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Fatalf("Generate() uri = %q, want otpauth://totp/ prefix", uri)
	}
	if !strings.Contains(uri, "StepAuth") {
		t.Fatalf("Generate() uri = %q, missing issuer", uri)
	}
}

func TestTOTPValidateSkew(t *testing.T) {
	const skew = 8
	totp := NewTOTP("StepAuth", 30, skew, libOTP.DigitsSix)
	now := time.Unix(1700000000, 0)

	secret, _, err := totp.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	t.Run("accepts current code", func(t *testing.T) {
		code, err := totp.GenerateCode(secret, now)
		if err != nil {
			t.Fatalf("GenerateCode() error = %v", err)
		}
		if !totp.Validate(code, secret, now) {
			t.Fatal("Validate() = false for current code")
		}
	})

	t.Run("accepts codes within the skew window", func(t *testing.T) {
		for _, steps := range []int{-skew, -1, 1, skew} {
			at := now.Add(time.Duration(steps) * 30 * time.Second)
			code, err := totp.GenerateCode(secret, at)
			if err != nil {
				t.Fatalf("GenerateCode() error = %v", err)
			}
			if !totp.Validate(code, secret, now) {
				t.Fatalf("Validate() = false for code %d steps away", steps)
			}
		}
	})

	t.Run("rejects codes outside the skew window", func(t *testing.T) {
		for _, steps := range []int{-(skew + 2), skew + 2} {
			at := now.Add(time.Duration(steps) * 30 * time.Second)
			code, err := totp.GenerateCode(secret, at)
			if err != nil {
				t.Fatalf("GenerateCode() error = %v", err)
			}
			if totp.Validate(code, secret, now) {
				t.Fatalf("Validate() = true for code %d steps away", steps)
			}
		}
	})

	t.Run("rejects garbage codes", func(t *testing.T) {
		if totp.Validate("000000", secret, now) && totp.Validate("999999", secret, now) {
			t.Fatal("Validate() accepted two fixed guesses, secret looks broken")
		}
		if totp.Validate("abcdef", secret, now) {
			t.Fatal("Validate() = true for non-numeric code")
		}
	})
}

func TestTOTPQRCode(t *testing.T) {
	totp := NewTOTP("StepAuth", 30, 1, libOTP.DigitsSix)

	t.Run("renders png", func(t *testing.T) {
		_, uri, err := totp.Generate("alice@example.com")
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}

		png, err := totp.QRCode(uri)
		if err != nil {
			t.Fatalf("QRCode() error = %v", err)
		}
		if !bytes.HasPrefix(png, []byte("\x89PNG")) {
			t.Fatal("QRCode() output is not a PNG")
		}
	})

	t.Run("rejects empty uri", func(t *testing.T) {
		if _, err := totp.QRCode("  "); err == nil {
			t.Fatal("QRCode() error = nil for empty uri")
		}
	})
}
