package inbound

import (
	"encoding/base64"

	"github.com/stepauth/stepauth/internal/auth/usecase"
	"github.com/stepauth/stepauth/internal/pkg/router"
	"github.com/stepauth/stepauth/internal/pkg/session"
)

// HTTPEndpoint exposes HTTP handlers for the login challenge flow and
// authenticator factor management.
type HTTPEndpoint struct {
	uc uc
}

func sessionID(r *router.Request) string {
	if sess := session.FromContext(r.Context()); sess != nil {
		return sess.ID
	}

	return ""
}

// Login checks the password and starts a second-factor challenge.
// @Summary Authenticate with password
// @Description Validates credentials and starts an OTP or authenticator challenge. The password alone never produces an authenticated session.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login payload"
// @Success 200 {object} router.successResponse{data=LoginResponse} "Pending factor and session token"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Invalid credentials"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 429 {object} router.errorResponse "Too many attempts"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/login [post]
func (h *HTTPEndpoint) Login(r *router.Request) (any, error) {
	var req LoginRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.Login(r.Context(), usecase.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		Channel:   req.Channel,
		Remember:  req.Remember,
		SessionID: sessionID(r),
		IP:        r.ClientIP(),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	return LoginResponse{
		Factor:           resp.Factor,
		Channel:          resp.Channel,
		AvailableMethods: resp.AvailableMethods,
		SessionToken:     resp.SessionToken,
	}, nil
}

// OtpVerify submits a delivered one-time code for the pending challenge.
// @Summary Verify one-time code
// @Description Checks the delivered code against the pending OTP challenge and finalizes the session on a match.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body OtpVerifyRequest true "Code payload"
// @Success 200 {object} router.successResponse{data=OtpVerifyResponse} "Authenticated session token"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "No active challenge, invalid or expired code"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 429 {object} router.errorResponse "Too many attempts"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/otp/verify [post]
func (h *HTTPEndpoint) OtpVerify(r *router.Request) (any, error) {
	var req OtpVerifyRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.OtpVerify(r.Context(), usecase.OtpVerifyInput{
		Code:      req.Code,
		SessionID: sessionID(r),
		IP:        r.ClientIP(),
	})
	if err != nil {
		return nil, err
	}

	return OtpVerifyResponse{SessionToken: resp.SessionToken}, nil
}

// OtpResend requests a fresh one-time code for the pending challenge.
// @Summary Resend one-time code
// @Description Issues a new code for the pending OTP challenge. The response is intentionally generic.
// @Tags Auth
// @Produce json
// @Success 200 {object} router.successResponse{data=OtpResendResponse} "Generic acknowledgement"
// @Failure 401 {object} router.errorResponse "No active challenge"
// @Failure 429 {object} router.errorResponse "Too many attempts"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/otp/resend [post]
func (h *HTTPEndpoint) OtpResend(r *router.Request) (any, error) {
	if err := h.uc.OtpResend(r.Context(), usecase.OtpResendInput{
		SessionID: sessionID(r),
		IP:        r.ClientIP(),
		UserAgent: r.UserAgent(),
	}); err != nil {
		return nil, err
	}

	return OtpResendResponse{Message: "a new code has been sent"}, nil
}

// TotpVerify submits an authenticator or recovery code for the pending challenge.
// @Summary Verify authenticator code
// @Description Checks an authenticator code, or a single-use recovery code, against the pending challenge and finalizes the session on a match.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body TotpVerifyRequest true "Code payload"
// @Success 200 {object} router.successResponse{data=TotpVerifyResponse} "Authenticated session token"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "No active challenge, invalid code, or expired challenge"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 429 {object} router.errorResponse "Too many attempts"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/totp/verify [post]
func (h *HTTPEndpoint) TotpVerify(r *router.Request) (any, error) {
	var req TotpVerifyRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.TotpVerify(r.Context(), usecase.TotpVerifyInput{
		Code:      req.Code,
		SessionID: sessionID(r),
		IP:        r.ClientIP(),
	})
	if err != nil {
		return nil, err
	}

	return TotpVerifyResponse{SessionToken: resp.SessionToken}, nil
}

// SessionInfo returns the caller's session and second-factor state.
// @Summary Introspect session
// @Tags Auth, Session
// @Produce json
// @Security BearerAuth
// @Success 200 {object} router.successResponse{data=SessionInfoResponse} "Session details"
// @Failure 401 {object} router.errorResponse "Not authenticated"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/session [get]
func (h *HTTPEndpoint) SessionInfo(r *router.Request) (any, error) {
	sess := session.FromContext(r.Context())

	resp, err := h.uc.SessionInfo(r.Context(), usecase.SessionInfoInput{
		Subject:   sess.Subject,
		Remember:  sess.Remember,
		CreatedAt: sess.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	return SessionInfoResponse{
		Subject:     resp.Subject,
		Email:       resp.Email,
		TotpEnabled: resp.TotpEnabled,
		Remember:    resp.Remember,
		CreatedAt:   resp.CreatedAt,
		LastLoginAt: resp.LastLoginAt,
		LastLoginIP: resp.LastLoginIP,
	}, nil
}

// Logout terminates the caller's session.
// @Summary Log out
// @Tags Auth, Session
// @Produce json
// @Security BearerAuth
// @Success 200 {object} router.successResponse{data=LogoutResponse} "Session destroyed"
// @Failure 401 {object} router.errorResponse "Not authenticated"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/logout [post]
func (h *HTTPEndpoint) Logout(r *router.Request) (any, error) {
	if err := h.uc.Logout(r.Context(), usecase.LogoutInput{
		SessionID: sessionID(r),
	}); err != nil {
		return nil, err
	}

	return LogoutResponse{}, nil
}

// TotpSetup starts authenticator enrollment for the signed-in user.
// @Summary Start authenticator enrollment
// @Description Generates a secret and enrollment QR. The factor stays inactive until confirmed with one correct code.
// @Tags Auth, MFA
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TotpSetupRequest true "Current password"
// @Success 200 {object} router.successResponse{data=TotpSetupResponse} "Enrollment payload"
// @Failure 401 {object} router.errorResponse "Invalid password"
// @Failure 409 {object} router.errorResponse "Authenticator already enabled"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/totp/setup [post]
func (h *HTTPEndpoint) TotpSetup(r *router.Request) (any, error) {
	var req TotpSetupRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	sess := session.FromContext(r.Context())

	resp, err := h.uc.TotpSetup(r.Context(), usecase.TotpSetupInput{
		Password: req.Password,
		Subject:  sess.Subject,
	})
	if err != nil {
		return nil, err
	}

	return TotpSetupResponse{
		Secret:   resp.Secret,
		URI:      resp.URI,
		QRPngB64: base64.StdEncoding.EncodeToString(resp.QRPng),
	}, nil
}

// TotpConfirm completes authenticator enrollment.
// @Summary Confirm authenticator enrollment
// @Description Validates one code from the authenticator and activates the factor, returning single-use recovery codes.
// @Tags Auth, MFA
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TotpConfirmRequest true "Code payload"
// @Success 200 {object} router.successResponse{data=TotpConfirmResponse} "Recovery codes, shown once"
// @Failure 401 {object} router.errorResponse "Invalid code"
// @Failure 409 {object} router.errorResponse "No pending enrollment"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/totp/confirm [post]
func (h *HTTPEndpoint) TotpConfirm(r *router.Request) (any, error) {
	var req TotpConfirmRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	sess := session.FromContext(r.Context())

	resp, err := h.uc.TotpConfirm(r.Context(), usecase.TotpConfirmInput{
		Code:    req.Code,
		Subject: sess.Subject,
	})
	if err != nil {
		return nil, err
	}

	return TotpConfirmResponse{RecoveryCodes: resp.RecoveryCodes}, nil
}

// TotpDisable turns the authenticator factor off.
// @Summary Disable authenticator
// @Description Clears the secret, confirmation, and recovery codes atomically.
// @Tags Auth, MFA
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TotpDisableRequest true "Current password"
// @Success 200 {object} router.successResponse{data=TotpDisableResponse} "Factor disabled"
// @Failure 401 {object} router.errorResponse "Invalid password"
// @Failure 409 {object} router.errorResponse "Authenticator not enabled"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/totp [delete]
func (h *HTTPEndpoint) TotpDisable(r *router.Request) (any, error) {
	var req TotpDisableRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	sess := session.FromContext(r.Context())

	if err := h.uc.TotpDisable(r.Context(), usecase.TotpDisableInput{
		Password: req.Password,
		Subject:  sess.Subject,
	}); err != nil {
		return nil, err
	}

	return TotpDisableResponse{}, nil
}

// RecoveryCodes regenerates the recovery code set.
// @Summary Regenerate recovery codes
// @Description Replaces all recovery codes. Previously issued codes stop working immediately.
// @Tags Auth, MFA
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RecoveryCodesRequest true "Current password"
// @Success 200 {object} router.successResponse{data=RecoveryCodesResponse} "Fresh recovery codes, shown once"
// @Failure 401 {object} router.errorResponse "Invalid password"
// @Failure 409 {object} router.errorResponse "Authenticator not enabled"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/recovery-codes [post]
func (h *HTTPEndpoint) RecoveryCodes(r *router.Request) (any, error) {
	var req RecoveryCodesRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	sess := session.FromContext(r.Context())

	resp, err := h.uc.RecoveryCodesRegenerate(r.Context(), usecase.RecoveryCodesInput{
		Password: req.Password,
		Subject:  sess.Subject,
	})
	if err != nil {
		return nil, err
	}

	return RecoveryCodesResponse{RecoveryCodes: resp.RecoveryCodes}, nil
}
