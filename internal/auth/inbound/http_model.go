package inbound

import "time"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Channel  string `json:"channel,omitempty"`
	Remember bool   `json:"remember,omitempty"`
}

type LoginResponse struct {
	Factor           string   `json:"factor"`
	Channel          string   `json:"channel,omitempty"`
	AvailableMethods []string `json:"available_methods"`
	SessionToken     string   `json:"session_token,omitempty"`
}

type OtpVerifyRequest struct {
	Code string `json:"code"`
}

type OtpVerifyResponse struct {
	SessionToken string `json:"session_token"`
}

type OtpResendResponse struct {
	Message string `json:"message"`
}

type TotpVerifyRequest struct {
	Code string `json:"code"`
}

type TotpVerifyResponse struct {
	SessionToken string `json:"session_token"`
}

type SessionInfoResponse struct {
	Subject     string     `json:"subject"`
	Email       string     `json:"email"`
	TotpEnabled bool       `json:"totp_enabled"`
	Remember    bool       `json:"remember"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP string     `json:"last_login_ip,omitempty"`
}

type LogoutResponse struct{}

type TotpSetupRequest struct {
	Password string `json:"password"`
}

type TotpSetupResponse struct {
	Secret   string `json:"secret"`
	URI      string `json:"uri"`
	QRPngB64 string `json:"qr_png_base64"`
}

type TotpConfirmRequest struct {
	Code string `json:"code"`
}

type TotpConfirmResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

type TotpDisableRequest struct {
	Password string `json:"password"`
}

type TotpDisableResponse struct{}

type RecoveryCodesRequest struct {
	Password string `json:"password"`
}

type RecoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}
