// Package auth wires the multi-factor login challenge module: password check,
// OTP and authenticator second factors, session finalization, and the factor
// management endpoints.
package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stepauth/stepauth/internal/auth/inbound"
	"github.com/stepauth/stepauth/internal/auth/outbound/challenge"
	"github.com/stepauth/stepauth/internal/auth/outbound/db"
	"github.com/stepauth/stepauth/internal/auth/outbound/delivery"
	"github.com/stepauth/stepauth/internal/auth/usecase"
	"github.com/stepauth/stepauth/internal/pkg/clock"
	"github.com/stepauth/stepauth/internal/pkg/config"
	"github.com/stepauth/stepauth/internal/pkg/goroutine"
	"github.com/stepauth/stepauth/internal/pkg/hash"
	"github.com/stepauth/stepauth/internal/pkg/idempotency"
	"github.com/stepauth/stepauth/internal/pkg/instrument"
	"github.com/stepauth/stepauth/internal/pkg/mail"
	"github.com/stepauth/stepauth/internal/pkg/messaging"
	"github.com/stepauth/stepauth/internal/pkg/mfa"
	"github.com/stepauth/stepauth/internal/pkg/otp"
	"github.com/stepauth/stepauth/internal/pkg/otpcode"
	"github.com/stepauth/stepauth/internal/pkg/ratelimit"
	"github.com/stepauth/stepauth/internal/pkg/router"
	"github.com/stepauth/stepauth/internal/pkg/session"
	"github.com/stepauth/stepauth/internal/pkg/uid"
	"github.com/stepauth/stepauth/internal/pkg/validator"
)

type Dependency struct {
	Ctx             context.Context            `validate:"required"`
	DBConn          *pgxpool.Pool              `validate:"required"`
	CacheConn       *redis.Client              `validate:"required"`
	Goroutine       *goroutine.Manager         `validate:"required"`
	Router          *router.Router             `validate:"required"`
	Idempotency     idempotency.Idempotency    `validate:"required"`
	Messaging       messaging.Messaging        `validate:"required"`
	Mail            mail.Mail                  `validate:"required"`
	Sessions        session.Sessions           `validate:"required"`
	Limiter         ratelimit.Limiter          `validate:"required"`
	Config          config.Config              `validate:"required"`
	Instrument      instrument.Instrumentation `validate:"required"`
	UID             uid.NumberID               `validate:"required"`
	HMAC            hash.Hash                  `validate:"required"`
	Bcrypt          hash.Hash                  `validate:"required"`
	Argon2ID        hash.Hash                  `validate:"required"`
	MFAEncryptor    mfa.Encryptor              `validate:"required"`
	MFARecoveryCode mfa.RecoveryCodeGenerator  `validate:"required"`
	Clock           clock.Clocker              `validate:"required"`
	Totp            otp.OTP                    `validate:"required"`
	Validator       validator.Validator        `validate:"required"`
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	repoDB := db.NewDB(dep.DBConn, dep.Instrument)
	challenges := challenge.NewStore(dep.CacheConn, dep.Instrument)
	sender := delivery.NewSender(dep.Mail, dep.Messaging, dep.Config.GetString("mail.from"), dep.Instrument)

	uc := usecase.New(usecase.Dependency{
		RepoDB:          repoDB,
		Challenges:      challenges,
		Delivery:        sender,
		Sessions:        dep.Sessions,
		Limiter:         dep.Limiter,
		Idempotency:     dep.Idempotency,
		Validator:       dep.Validator,
		Config:          dep.Config,
		HMAC:            dep.HMAC,
		Bcrypt:          dep.Bcrypt,
		Argon2ID:        dep.Argon2ID,
		MFAEncryptor:    dep.MFAEncryptor,
		MFARecoveryCode: dep.MFARecoveryCode,
		UID:             dep.UID,
		Totp:            dep.Totp,
		Codes:           otpcode.NewNumeric(),
		Clock:           dep.Clock,
		Instrument:      dep.Instrument,
		Goroutine:       dep.Goroutine,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)

	startOtpJanitor(dep, repoDB)

	return nil
}

// startOtpJanitor periodically prunes long-expired otp rows. Verification
// filters expired rows lazily, so this only keeps the table from growing
// without bound.
func startOtpJanitor(dep Dependency, repoDB *db.DB) {
	interval := dep.Config.GetMinute("modules.auth.otp_cleanup_interval_minutes")
	if interval <= 0 {
		return
	}

	// rows stay around one retention window past expiry for audit trails
	retention := dep.Config.GetDay("modules.auth.otp_retention_days")

	dep.Goroutine.Go(dep.Ctx, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				cutoff := dep.Clock.Now().Add(-retention)
				deleted, err := repoDB.DeleteExpiredOtpCodes(ctx, cutoff)
				if err != nil {
					slog.ErrorContext(ctx, "failed to prune expired otp codes", "error", err)
					continue
				}
				if deleted > 0 {
					slog.InfoContext(ctx, "pruned expired otp codes", "deleted", deleted)
				}
			}
		}
	})
}
