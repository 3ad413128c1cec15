// Package otp wraps time-based one-time password (TOTP) operations: secret
// generation with a provisioning URI, code validation with configurable skew,
// and QR rendering of the URI for authenticator-app enrollment.
package otp
