package entity

import (
	"time"

	"github.com/stepauth/stepauth/internal/pkg/valueobject"
)

// UserLoginInfo is the credential view loaded when a password is checked.
type UserLoginInfo struct {
	ID          int64
	Subject     string
	Email       string
	Phone       string
	Status      UserStatus
	Password    string
	TotpEnabled bool
	LastLoginAt *time.Time
	LastLoginIP string
}

// Credential is the second-factor state of a user.
//
// TotpSecret is stored encrypted. A secret with a nil TotpConfirmedAt is a
// pending enrollment and never satisfies a login challenge.
type Credential struct {
	UserID          int64
	Subject         string
	Email           string
	TotpSecret      []byte
	TotpConfirmedAt *time.Time
}

// Enabled reports whether the authenticator factor is active for login.
func (c Credential) Enabled() bool {
	return len(c.TotpSecret) > 0 && c.TotpConfirmedAt != nil
}

// Pending reports whether a setup was started but not yet confirmed.
func (c Credential) Pending() bool {
	return len(c.TotpSecret) > 0 && c.TotpConfirmedAt == nil
}

// OtpCode is a persisted delivered one-time code.
//
// Only the keyed hash of the code is stored. Rows are never deleted on
// reissue; verification always targets the newest unused row per scope.
type OtpCode struct {
	ID         int64
	Subject    string
	Purpose    string
	Channel    Channel
	Identifier string
	CodeHash   string
	ExpiresAt  time.Time
	Attempts   int32
	UsedAt     *time.Time
	Metadata   valueobject.JSONMap
}

// Challenge is the pending second-factor state bound to one session.
//
// At most one exists per session; starting a new one overwrites. ExpiresAt is
// set for authenticator challenges only, delivered codes carry their own
// expiry on the OtpCode row.
type Challenge struct {
	Factor     FactorType `json:"factor"`
	Subject    string     `json:"subject"`
	Purpose    string     `json:"purpose"`
	Channel    Channel    `json:"channel,omitempty"`
	Identifier string     `json:"identifier,omitempty"`
	Remember   bool       `json:"remember"`
	ExpiresAt  time.Time  `json:"expires_at,omitzero"`
}

// RecoveryCode is a persisted single-use fallback code hash.
type RecoveryCode struct {
	ID       int64
	UserID   int64
	CodeHash string
	UsedAt   *time.Time
}
