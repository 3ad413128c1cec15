package entity

import "errors"

var (
	ErrUserStatusUnknown    = errors.New("auth: user status is unknown")
	ErrUserStatusBanned     = errors.New("auth: user status is banned")
	ErrUserStatusUnverified = errors.New("auth: user status is unverified")
)

type UserStatus int16

const (
	// UserStatusUnknown is mean status is not known / not set.
	UserStatusUnknown UserStatus = 0

	// UserStatusUnverified mean user exists but has not completed verification.
	UserStatusUnverified UserStatus = 1

	// UserStatusActive mean user is verified and allowed to use the app.
	UserStatusActive UserStatus = 2

	// UserStatusBanned mean user is blocked from using the app (policy/abuse/etc).
	UserStatusBanned UserStatus = 3

	// UserStatusInactive mean user is not currently active (e.g., deactivated, closed).
	UserStatusInactive UserStatus = 4
)

func (us UserStatus) String() string {
	switch us {
	case UserStatusActive:
		return "Active"
	case UserStatusBanned:
		return "Banned"
	case UserStatusInactive:
		return "Inactive"
	case UserStatusUnverified:
		return "Unverified"
	default:
		return "Unknown"
	}
}

// FactorType names the second factor a pending challenge waits on.
type FactorType int16

const (
	FactorUnknown FactorType = 0

	// FactorOTP waits on a delivered one-time code.
	FactorOTP FactorType = 1

	// FactorTOTP waits on an authenticator-app code.
	FactorTOTP FactorType = 2
)

func (f FactorType) String() string {
	switch f {
	case FactorOTP:
		return "otp"
	case FactorTOTP:
		return "totp"
	default:
		return "unknown"
	}
}

func FactorTypeFromString(s string) FactorType {
	switch s {
	case "otp":
		return FactorOTP
	case "totp":
		return FactorTOTP
	default:
		return FactorUnknown
	}
}

// Channel is the out-of-band transport a one-time code is delivered over.
// Values match the channel enum persisted on otp_codes rows.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

func (c Channel) String() string {
	return string(c)
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	default:
		return false
	}
}

// OtpPurposeLogin scopes one-time codes issued for the login second factor.
const OtpPurposeLogin = "login"
