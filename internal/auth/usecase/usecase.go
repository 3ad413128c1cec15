package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stepauth/stepauth/internal/auth/entity"
	"github.com/stepauth/stepauth/internal/pkg/clock"
	"github.com/stepauth/stepauth/internal/pkg/config"
	"github.com/stepauth/stepauth/internal/pkg/goroutine"
	"github.com/stepauth/stepauth/internal/pkg/hash"
	"github.com/stepauth/stepauth/internal/pkg/idempotency"
	"github.com/stepauth/stepauth/internal/pkg/instrument"
	"github.com/stepauth/stepauth/internal/pkg/mfa"
	"github.com/stepauth/stepauth/internal/pkg/otp"
	"github.com/stepauth/stepauth/internal/pkg/otpcode"
	"github.com/stepauth/stepauth/internal/pkg/ratelimit"
	"github.com/stepauth/stepauth/internal/pkg/session"
	"github.com/stepauth/stepauth/internal/pkg/uid"
	"github.com/stepauth/stepauth/internal/pkg/goerror"
	"github.com/stepauth/stepauth/internal/pkg/validator"
	"github.com/stepauth/stepauth/internal/pkg/valueobject"
	"go.opentelemetry.io/otel/trace"
)

// challengeGCTTL bounds how long an abandoned challenge key may linger in the
// store. Real expiry is evaluated lazily against the challenge content.
const challengeGCTTL = time.Hour

// OtpCodeDelivery carries a plaintext code to the delivery boundary. The
// plaintext exists only here; storage sees the keyed hash.
type OtpCodeDelivery struct {
	Subject    string
	Identifier string
	Channel    entity.Channel
	Code       string
	TTL        time.Duration
}

type repoDelivery interface {
	SendOtpCode(ctx context.Context, msg OtpCodeDelivery) error
}

type repoDB interface {
	GetUserLoginInfo(ctx context.Context, email string) (*entity.UserLoginInfo, error)
	GetUserLoginInfoBySubject(ctx context.Context, subject string) (*entity.UserLoginInfo, error)
	UpdateLastLogin(ctx context.Context, subject string, at time.Time, ip string) error

	CreateOtpCode(ctx context.Context, in entity.OtpCode) error
	GetLatestOtpCode(ctx context.Context, subject, purpose string, channel entity.Channel) (*entity.OtpCode, error)
	IncrementOtpAttempts(ctx context.Context, id int64) (int32, error)
	MarkOtpCodeUsed(ctx context.Context, id int64, at time.Time) (bool, error)

	GetCredentialBySubject(ctx context.Context, subject string) (*entity.Credential, error)
	SavePendingTotpSecret(ctx context.Context, subject string, secret []byte) error
	ConfirmTotp(ctx context.Context, subject string, at time.Time) error
	DisableTotp(ctx context.Context, subject string) error

	ReplaceRecoveryCodes(ctx context.Context, userID int64, ids []int64, hashes []string) error
	GetRecoveryCodes(ctx context.Context, userID int64) ([]entity.RecoveryCode, error)
	MarkRecoveryCodeUsed(ctx context.Context, id int64, at time.Time) (bool, error)
}

type challengeStore interface {
	Save(ctx context.Context, sessionID string, ch entity.Challenge, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*entity.Challenge, error)
	Delete(ctx context.Context, sessionID string) error
}

type Usecase struct {
	repoDB          repoDB
	challenges      challengeStore
	delivery        repoDelivery
	sessions        session.Sessions
	limiter         ratelimit.Limiter
	idemp           idempotency.Idempotency
	validator       validator.Validator
	cfg             config.Config
	hmac            hash.Hash
	bcrypt          hash.Hash
	argon2id        hash.Hash
	mfaEncryptor    mfa.Encryptor
	mfaRecoveryCode mfa.RecoveryCodeGenerator
	uid             uid.NumberID
	totp            otp.OTP
	codes           otpcode.Generator
	clock           clock.Clocker
	ins             instrument.Instrumentation
	goroutine       *goroutine.Manager
}

type Dependency struct {
	RepoDB          repoDB
	Challenges      challengeStore
	Delivery        repoDelivery
	Sessions        session.Sessions
	Limiter         ratelimit.Limiter
	Idempotency     idempotency.Idempotency
	Validator       validator.Validator
	Config          config.Config
	HMAC            hash.Hash
	Bcrypt          hash.Hash
	Argon2ID        hash.Hash
	MFAEncryptor    mfa.Encryptor
	MFARecoveryCode mfa.RecoveryCodeGenerator
	UID             uid.NumberID
	Totp            otp.OTP
	Codes           otpcode.Generator
	Clock           clock.Clocker
	Instrument      instrument.Instrumentation
	Goroutine       *goroutine.Manager
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:          dep.RepoDB,
		challenges:      dep.Challenges,
		delivery:        dep.Delivery,
		sessions:        dep.Sessions,
		limiter:         dep.Limiter,
		idemp:           dep.Idempotency,
		validator:       dep.Validator,
		cfg:             dep.Config,
		hmac:            dep.HMAC,
		bcrypt:          dep.Bcrypt,
		argon2id:        dep.Argon2ID,
		mfaEncryptor:    dep.MFAEncryptor,
		mfaRecoveryCode: dep.MFARecoveryCode,
		uid:             dep.UID,
		totp:            dep.Totp,
		codes:           dep.Codes,
		clock:           dep.Clock,
		ins:             dep.Instrument,
		goroutine:       dep.Goroutine,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("auth.usecase").Start(ctx, name)
}

func (s *Usecase) ensureUserStatusAllowed(ctx context.Context, userID int64, status entity.UserStatus) error {
	switch status {
	case entity.UserStatusUnverified:
		slog.WarnContext(ctx, "user account is unverified", "user_id", userID)
		return goerror.NewBusiness("email not verified", goerror.CodeForbidden)

	case entity.UserStatusBanned:
		slog.WarnContext(ctx, "user account is banned", "user_id", userID)
		return goerror.NewBusiness("account is banned", goerror.CodeForbidden)

	case entity.UserStatusInactive:
		slog.WarnContext(ctx, "user account is deleted", "user_id", userID)
		return goerror.NewBusiness("account is deleted", goerror.CodeForbidden)

	case entity.UserStatusActive:
		return nil

	default:
		slog.WarnContext(ctx, "user account status is unrecognized", "user_id", userID)
		return goerror.NewBusiness("account status is unrecognized", goerror.CodeForbidden)
	}
}

// guardRateLimit rejects with a retry-after hint once key reached max within
// its window. It never increments; callers hit the counter on failures only.
func (s *Usecase) guardRateLimit(ctx context.Context, key string, max int64) error {
	blocked, err := s.limiter.TooManyAttempts(ctx, key, max)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read rate limit counter", "key", key, "error", err)
		return goerror.NewServer(err)
	}
	if !blocked {
		return nil
	}

	secs, err := s.limiter.AvailableIn(ctx, key)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read rate limit window", "key", key, "error", err)
		return goerror.NewServer(err)
	}

	slog.WarnContext(ctx, "rate limit exceeded", "key", key, "retry_after", secs)

	return goerror.NewTooManyAttempts(int(secs))
}

func (s *Usecase) hitRateLimit(ctx context.Context, key string, window time.Duration) {
	if err := s.limiter.Hit(ctx, key, window); err != nil {
		slog.ErrorContext(ctx, "failed to increment rate limit counter", "key", key, "error", err)
	}
}

// otpPayload is the keyed-hash input. Binding subject, purpose, and channel
// into the digest keeps a code valid only for the exact scope it was issued
// for.
func otpPayload(code, subject, purpose string, channel entity.Channel) string {
	return fmt.Sprintf("%s|%s|%s|%s", code, subject, purpose, channel)
}

// issueOtp generates, persists, and dispatches a one-time code. Delivery runs
// detached from the request: the row is already persisted, so a failed send is
// recoverable with a resend and must not fail the caller.
func (s *Usecase) issueOtp(ctx context.Context, subject, identifier string, channel entity.Channel, purpose, ip, userAgent string) error {
	digits := s.cfg.GetInt("modules.auth.otp_digits")
	ttl := s.cfg.GetMinute("modules.auth.otp_ttl_minutes")

	code, err := s.codes.Generate(digits)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate otp code", "subject", subject, "error", err)
		return goerror.NewServer(err)
	}

	codeHash, err := s.hmac.Hash(otpPayload(code, subject, purpose, channel))
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash otp code", "subject", subject, "error", err)
		return goerror.NewServer(err)
	}

	if err := s.repoDB.CreateOtpCode(ctx, entity.OtpCode{
		ID:         s.uid.Generate(),
		Subject:    subject,
		Purpose:    purpose,
		Channel:    channel,
		Identifier: identifier,
		CodeHash:   string(codeHash),
		ExpiresAt:  s.clock.Now().Add(ttl),
		Metadata:   valueobject.JSONMap{"ip": ip, "user_agent": userAgent},
	}); err != nil {
		slog.ErrorContext(ctx, "failed to persist otp code", "subject", subject, "error", err)
		return goerror.NewServer(err)
	}

	msg := OtpCodeDelivery{
		Subject:    subject,
		Identifier: identifier,
		Channel:    channel,
		Code:       code,
		TTL:        ttl,
	}

	s.goroutine.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if err := s.delivery.SendOtpCode(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "failed to deliver otp code",
				"subject", subject, "channel", channel.String(), "error", err)
			return err
		}
		return nil
	})

	return nil
}

// clearChallenge drops the pending challenge, logging instead of failing when
// the store write goes wrong: a stale challenge only widens its own window.
func (s *Usecase) clearChallenge(ctx context.Context, sessionID string) {
	if err := s.challenges.Delete(ctx, sessionID); err != nil {
		slog.ErrorContext(ctx, "failed to clear challenge", "session_id", sessionID, "error", err)
	}
}
