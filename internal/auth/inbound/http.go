package inbound

import (
	"context"

	"github.com/stepauth/stepauth/internal/auth/usecase"
	"github.com/stepauth/stepauth/internal/pkg/router"
)

type uc interface {
	Login(ctx context.Context, in usecase.LoginInput) (*usecase.LoginOutput, error)
	OtpVerify(ctx context.Context, in usecase.OtpVerifyInput) (*usecase.OtpVerifyOutput, error)
	OtpResend(ctx context.Context, in usecase.OtpResendInput) error
	TotpVerify(ctx context.Context, in usecase.TotpVerifyInput) (*usecase.TotpVerifyOutput, error)

	SessionInfo(ctx context.Context, in usecase.SessionInfoInput) (*usecase.SessionInfoOutput, error)
	Logout(ctx context.Context, in usecase.LogoutInput) error

	TotpSetup(ctx context.Context, in usecase.TotpSetupInput) (*usecase.TotpSetupOutput, error)
	TotpConfirm(ctx context.Context, in usecase.TotpConfirmInput) (*usecase.TotpConfirmOutput, error)
	TotpDisable(ctx context.Context, in usecase.TotpDisableInput) error
	RecoveryCodesRegenerate(ctx context.Context, in usecase.RecoveryCodesInput) (*usecase.RecoveryCodesOutput, error)
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	// Login flow
	r.POST("/api/v1/auth/login", end.Login)
	r.POST("/api/v1/auth/otp/verify", end.OtpVerify)
	r.POST("/api/v1/auth/otp/resend", end.OtpResend)
	r.POST("/api/v1/auth/totp/verify", end.TotpVerify)

	// Session (need authenticated)
	r.GET("/api/v1/auth/session", end.SessionInfo)
	r.POST("/api/v1/auth/logout", end.Logout)

	// Authenticator factor management (need authenticated)
	r.POST("/api/v1/auth/totp/setup", end.TotpSetup)
	r.POST("/api/v1/auth/totp/confirm", end.TotpConfirm)
	r.DELETE("/api/v1/auth/totp", end.TotpDisable)
	r.POST("/api/v1/auth/recovery-codes", end.RecoveryCodes)
}
