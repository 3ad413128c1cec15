// Package mfa holds the second-factor primitives shared by the auth module:
// scoped encryption for authenticator secrets and recovery code generation.
package mfa

// Purpose identifies what a ciphertext protects.
type Purpose string

// PurposeOTPSeed scopes encryption to authenticator (TOTP) seeds.
const PurposeOTPSeed Purpose = "otp_seed"

// Scope binds a ciphertext to the user and purpose it was produced for. It is
// fed into AES-GCM as AAD, so a secret copied onto another user's row fails to
// decrypt.
type Scope struct {
	// UserID is the owning user.
	UserID int64
	// Purpose is the encryption purpose.
	Purpose Purpose
}
