package otp

import (
	"errors"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrEmptyProvisioningURI is returned when QRCode is called without a URI.
var ErrEmptyProvisioningURI = errors.New("otp: provisioning uri is empty")

const qrImageSize = 256

// QRCode renders the otpauth:// provisioning URI as a PNG so authenticator
// apps can enroll by scanning instead of typing the secret.
func (o *TOTP) QRCode(uri string) ([]byte, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, ErrEmptyProvisioningURI
	}

	return qrcode.Encode(uri, qrcode.Medium, qrImageSize)
}
