package app

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stepauth/stepauth/internal/pkg/clock"
	"github.com/stepauth/stepauth/internal/pkg/config"
	"github.com/stepauth/stepauth/internal/pkg/goroutine"
	"github.com/stepauth/stepauth/internal/pkg/hash"
	"github.com/stepauth/stepauth/internal/pkg/idempotency"
	"github.com/stepauth/stepauth/internal/pkg/instrument"
	"github.com/stepauth/stepauth/internal/pkg/jwt"
	"github.com/stepauth/stepauth/internal/pkg/mail"
	"github.com/stepauth/stepauth/internal/pkg/messaging"
	"github.com/stepauth/stepauth/internal/pkg/mfa"
	"github.com/stepauth/stepauth/internal/pkg/otp"
	"github.com/stepauth/stepauth/internal/pkg/ratelimit"
	"github.com/stepauth/stepauth/internal/pkg/router"
	"github.com/stepauth/stepauth/internal/pkg/session"
	"github.com/stepauth/stepauth/internal/pkg/uid"
	"github.com/stepauth/stepauth/internal/pkg/validator"
)

// App wires dependencies and manages service lifecycle.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// configuration
	config config.Config
	ins    instrument.Instrumentation

	// libraries
	goroutine       *goroutine.Manager
	validator       validator.Validator
	clock           clock.Clocker
	hmac            hash.Hash
	argon2id        hash.Hash
	bcrypt          hash.Hash
	uid             uid.NumberID
	oid             uid.StringID
	uuid            uid.StringID
	totp            otp.OTP
	jwt             jwt.JWT
	mfaEncryptor    mfa.Encryptor
	mfaRecoveryCode mfa.RecoveryCodeGenerator

	// resources
	dbConn    *pgxpool.Pool
	cacheConn *redis.Client
	idemp     idempotency.Idempotency
	mail      mail.Mail
	messaging messaging.Messaging
	sessions  session.Sessions
	limiter   ratelimit.Limiter

	// server
	router     *router.Router
	httpServer *http.Server

	//
	closers []struct {
		name string
		fn   func(context.Context) error
	}
}

// New initializes the application with default wiring and returns an App instance.
func New() *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		ctx:    ctx,
		cancel: cancel,
	}

	app.initConfig()
	app.initInstrument()
	app.initLibraries()
	app.initDatabase()
	app.initCache()
	app.initSessions()
	app.initRateLimiter()
	app.initMail()
	app.initMessaging()
	app.initHTTPServer()
	app.initModules()
	app.initClosers()

	return app
}
