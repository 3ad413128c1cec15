package app

import (
	"log/slog"
	"os"

	"github.com/stepauth/stepauth/internal/auth"
)

func (a *App) initModules() {
	if a.config.GetBool("modules.auth.enabled") {
		if err := auth.New(auth.Dependency{
			Ctx:             a.ctx,
			DBConn:          a.dbConn,
			CacheConn:       a.cacheConn,
			Goroutine:       a.goroutine,
			Router:          a.router,
			Idempotency:     a.idemp,
			Messaging:       a.messaging,
			Mail:            a.mail,
			Sessions:        a.sessions,
			Limiter:         a.limiter,
			Config:          a.config,
			Instrument:      a.ins,
			UID:             a.uid,
			HMAC:            a.hmac,
			Bcrypt:          a.bcrypt,
			Argon2ID:        a.argon2id,
			MFAEncryptor:    a.mfaEncryptor,
			MFARecoveryCode: a.mfaRecoveryCode,
			Clock:           a.clock,
			Totp:            a.totp,
			Validator:       a.validator,
		}); err != nil {
			slog.Error("failed to init module auth", "error", err)
			os.Exit(1)
		}
	}
}
