// Package otpcode generates short numeric one-time codes for delivery over
// out-of-band channels (email, sms, whatsapp).
package otpcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	minDigits     = 4
	maxDigits     = 10
	defaultDigits = 6
)

// Generator produces numeric one-time codes.
type Generator interface {
	// Generate returns a zero-padded numeric code of the given length.
	Generate(digits int) (string, error)
}

// Numeric draws codes uniformly at random from [0, 10^digits), so leading
// zeros are as likely as any other digit.
type Numeric struct{}

// NewNumeric returns a Numeric code generator.
func NewNumeric() *Numeric {
	return &Numeric{}
}

// Generate returns a zero-padded code of the given length. Lengths outside
// [4,10] fall back to 6 digits.
func (Numeric) Generate(digits int) (string, error) {
	if digits < minDigits || digits > maxDigits {
		digits = defaultDigits
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", digits, n), nil
}
