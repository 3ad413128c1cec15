package usecase

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stepauth/stepauth/internal/auth/entity"
	"github.com/stepauth/stepauth/internal/pkg/goerror"
	"github.com/stepauth/stepauth/internal/pkg/goroutine"
	"github.com/stepauth/stepauth/internal/pkg/idempotency"
	"github.com/stepauth/stepauth/internal/pkg/mfa"
	"github.com/stepauth/stepauth/internal/pkg/session"
	"github.com/stepauth/stepauth/internal/pkg/validator"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	testEmail    = "jane@example.com"
	testPhone    = "+15550100"
	testPassword = "s3cret-password"
	testSubject  = "usr_11"

	testTotpSecret = "JBSWY3DPEHPK3PXP"
	testTotpCode   = "246810"
)

// fakeConfig serves values from flat maps; durations derive from the integer
// map so one entry drives both GetInt64 and GetSecond lookups.
type fakeConfig struct {
	ints map[string]int64
	strs map[string]string
}

func (c *fakeConfig) Close() error                       { return nil }
func (c *fakeConfig) GetSecond(key string) time.Duration { return time.Duration(c.ints[key]) * time.Second }
func (c *fakeConfig) GetMinute(key string) time.Duration { return time.Duration(c.ints[key]) * time.Minute }
func (c *fakeConfig) GetHour(key string) time.Duration   { return time.Duration(c.ints[key]) * time.Hour }
func (c *fakeConfig) GetDay(key string) time.Duration {
	return time.Duration(c.ints[key]) * 24 * time.Hour
}
func (c *fakeConfig) GetInt(key string) int              { return int(c.ints[key]) }
func (c *fakeConfig) GetInt32(key string) int32          { return int32(c.ints[key]) }
func (c *fakeConfig) GetInt64(key string) int64          { return c.ints[key] }
func (c *fakeConfig) GetUint(key string) uint            { return uint(c.ints[key]) }
func (c *fakeConfig) GetUint16(key string) uint16        { return uint16(c.ints[key]) }
func (c *fakeConfig) GetUint32(key string) uint32        { return uint32(c.ints[key]) }
func (c *fakeConfig) GetUint64(key string) uint64        { return uint64(c.ints[key]) }
func (c *fakeConfig) GetFloat32(key string) float32      { return float32(c.ints[key]) }
func (c *fakeConfig) GetFloat64(key string) float64      { return float64(c.ints[key]) }
func (c *fakeConfig) GetBool(key string) bool            { return c.ints[key] != 0 }
func (c *fakeConfig) GetString(key string) string        { return c.strs[key] }
func (c *fakeConfig) GetBinary(key string) []byte        { return []byte(c.strs[key]) }
func (c *fakeConfig) GetArray(key string) []string       { return nil }
func (c *fakeConfig) GetMap(key string) map[string]string { return nil }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeHash is a transparent prefix hasher so assertions can predict stored
// values without real key stretching.
type fakeHash struct{ prefix string }

func (f fakeHash) Hash(plaintext string) ([]byte, error) {
	return []byte(f.prefix + plaintext), nil
}

func (f fakeHash) Verify(hashed, plaintext string) bool {
	return hashed == f.prefix+plaintext
}

type fakeEncryptor struct{}

func (fakeEncryptor) Encrypt(plaintext []byte, _ mfa.Scope) ([]byte, error) {
	return append([]byte("enc:"), plaintext...), nil
}

func (fakeEncryptor) Decrypt(ciphertext []byte, _ mfa.Scope) ([]byte, error) {
	if !bytes.HasPrefix(ciphertext, []byte("enc:")) {
		return nil, goerror.ErrNotFound
	}
	return bytes.TrimPrefix(ciphertext, []byte("enc:")), nil
}

type fakeTotp struct{}

func (fakeTotp) Generate(string) (string, string, error) {
	return testTotpSecret, "otpauth://totp/StepAuth:jane@example.com?secret=" + testTotpSecret, nil
}

func (fakeTotp) Validate(code, secret string, _ time.Time) bool {
	return code == testTotpCode && secret == testTotpSecret
}

func (fakeTotp) GenerateCode(string, time.Time) (string, error) { return testTotpCode, nil }
func (fakeTotp) QRCode(string) ([]byte, error)                  { return []byte("png"), nil }

// fakeCodes returns a settable fixed code so tests know what was "delivered".
type fakeCodes struct {
	mu   sync.Mutex
	next string
}

func (f *fakeCodes) Generate(int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next, nil
}

func (f *fakeCodes) set(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = code
}

type seqNumberID struct {
	mu sync.Mutex
	n  int64
}

func (s *seqNumberID) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n
}

type fakeLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeLimiter() *fakeLimiter {
	return &fakeLimiter{counts: map[string]int64{}}
}

func (l *fakeLimiter) Hit(_ context.Context, key string, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key]++
	return nil
}

func (l *fakeLimiter) TooManyAttempts(_ context.Context, key string, max int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[key] >= max, nil
}

func (l *fakeLimiter) AvailableIn(context.Context, string) (int64, error) { return 30, nil }

func (l *fakeLimiter) Clear(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, key)
	return nil
}

func (l *fakeLimiter) count(key string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[key]
}

type fakeChallenges struct {
	mu    sync.Mutex
	items map[string]entity.Challenge
}

func newFakeChallenges() *fakeChallenges {
	return &fakeChallenges{items: map[string]entity.Challenge{}}
}

func (c *fakeChallenges) Save(_ context.Context, sessionID string, ch entity.Challenge, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[sessionID] = ch
	return nil
}

func (c *fakeChallenges) Get(_ context.Context, sessionID string) (*entity.Challenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.items[sessionID]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	return &ch, nil
}

func (c *fakeChallenges) Delete(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, sessionID)
	return nil
}

func (c *fakeChallenges) has(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[sessionID]
	return ok
}

type fakeSessions struct {
	mu        sync.Mutex
	started   int
	finalized []string
	destroyed []string
	subject   string
	remember  bool
}

func (s *fakeSessions) StartPreAuth(context.Context) (*session.Session, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	id := "pre-" + strconv.Itoa(s.started)
	return &session.Session{ID: id}, "token-" + id, nil
}

func (s *fakeSessions) Resolve(context.Context, string) (*session.Session, error) {
	return nil, session.ErrNotFound
}

func (s *fakeSessions) Finalize(_ context.Context, oldID, subject string, remember bool) (*session.Session, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized = append(s.finalized, oldID)
	s.subject = subject
	s.remember = remember
	return &session.Session{ID: "auth-1", Subject: subject, Authenticated: true, Remember: remember}, "auth-token", nil
}

func (s *fakeSessions) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = append(s.destroyed, id)
	return nil
}

type fakeDelivery struct {
	mu   sync.Mutex
	sent []OtpCodeDelivery
}

func (d *fakeDelivery) SendOtpCode(_ context.Context, msg OtpCodeDelivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return nil
}

func (d *fakeDelivery) all() []OtpCodeDelivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]OtpCodeDelivery(nil), d.sent...)
}

// fakeIdemp runs the function inline unless a sentinel state is injected.
type fakeIdemp struct{ state error }

func (f *fakeIdemp) Exec(ctx context.Context, _ string, fn func(context.Context) error, _ ...idempotency.Option) error {
	if f.state != nil {
		return f.state
	}
	return fn(ctx)
}

func (f *fakeIdemp) Acquire(context.Context, string, time.Duration) (idempotency.State, error) {
	return idempotency.StateNone, nil
}

func (f *fakeIdemp) MarkCompleted(context.Context, string, time.Duration) error { return nil }

func (f *fakeIdemp) MarkFailed(context.Context, string, time.Duration) error { return nil }

type fakeInstrument struct{}

func (fakeInstrument) Tracer(string) trace.Tracer {
	return tracenoop.NewTracerProvider().Tracer("test")
}

func (fakeInstrument) Meter(string) metric.Meter {
	return metricnoop.NewMeterProvider().Meter("test")
}

func (fakeInstrument) Shutdown(context.Context) error { return nil }

type fakeDB struct {
	mu           sync.Mutex
	usersByEmail map[string]*entity.UserLoginInfo
	creds        map[string]*entity.Credential
	otpRows      []*entity.OtpCode
	recovery     map[int64][]*entity.RecoveryCode

	lastLoginSubject string
	lastLoginIP      string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		usersByEmail: map[string]*entity.UserLoginInfo{},
		creds:        map[string]*entity.Credential{},
		recovery:     map[int64][]*entity.RecoveryCode{},
	}
}

func (d *fakeDB) GetUserLoginInfo(_ context.Context, email string) (*entity.UserLoginInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.usersByEmail[email]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (d *fakeDB) GetUserLoginInfoBySubject(_ context.Context, subject string) (*entity.UserLoginInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, user := range d.usersByEmail {
		if user.Subject == subject {
			cp := *user
			return &cp, nil
		}
	}
	return nil, goerror.ErrNotFound
}

func (d *fakeDB) UpdateLastLogin(_ context.Context, subject string, _ time.Time, ip string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastLoginSubject = subject
	d.lastLoginIP = ip
	return nil
}

func (d *fakeDB) CreateOtpCode(_ context.Context, in entity.OtpCode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := in
	d.otpRows = append(d.otpRows, &cp)
	return nil
}

func (d *fakeDB) GetLatestOtpCode(_ context.Context, subject, purpose string, channel entity.Channel) (*entity.OtpCode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var latest *entity.OtpCode
	for _, row := range d.otpRows {
		if row.Subject != subject || row.Purpose != purpose || row.Channel != channel || row.UsedAt != nil {
			continue
		}
		if latest == nil || row.ID > latest.ID {
			latest = row
		}
	}
	if latest == nil {
		return nil, goerror.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (d *fakeDB) IncrementOtpAttempts(_ context.Context, id int64) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, row := range d.otpRows {
		if row.ID == id {
			if row.UsedAt != nil {
				return 0, goerror.ErrNotFound
			}
			row.Attempts++
			return row.Attempts, nil
		}
	}
	return 0, goerror.ErrNotFound
}

func (d *fakeDB) MarkOtpCodeUsed(_ context.Context, id int64, at time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, row := range d.otpRows {
		if row.ID == id {
			if row.UsedAt != nil {
				return false, nil
			}
			stamp := at
			row.UsedAt = &stamp
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeDB) GetCredentialBySubject(_ context.Context, subject string) (*entity.Credential, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cred, ok := d.creds[subject]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	cp := *cred
	return &cp, nil
}

func (d *fakeDB) SavePendingTotpSecret(_ context.Context, subject string, secret []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cred, ok := d.creds[subject]; ok && cred.TotpConfirmedAt != nil {
		return goerror.ErrConflict
	}
	var userID int64
	var email string
	for _, user := range d.usersByEmail {
		if user.Subject == subject {
			userID = user.ID
			email = user.Email
		}
	}
	d.creds[subject] = &entity.Credential{UserID: userID, Subject: subject, Email: email, TotpSecret: secret}
	return nil
}

func (d *fakeDB) ConfirmTotp(_ context.Context, subject string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cred, ok := d.creds[subject]
	if !ok || cred.TotpConfirmedAt != nil {
		return goerror.ErrNotFound
	}
	stamp := at
	cred.TotpConfirmedAt = &stamp
	for _, user := range d.usersByEmail {
		if user.Subject == subject {
			user.TotpEnabled = true
		}
	}
	return nil
}

func (d *fakeDB) DisableTotp(_ context.Context, subject string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cred, ok := d.creds[subject]
	if !ok {
		return goerror.ErrNotFound
	}
	delete(d.creds, subject)
	delete(d.recovery, cred.UserID)
	for _, user := range d.usersByEmail {
		if user.Subject == subject {
			user.TotpEnabled = false
		}
	}
	return nil
}

func (d *fakeDB) ReplaceRecoveryCodes(_ context.Context, userID int64, ids []int64, hashes []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows := make([]*entity.RecoveryCode, 0, len(hashes))
	for i, hash := range hashes {
		rows = append(rows, &entity.RecoveryCode{ID: ids[i], UserID: userID, CodeHash: hash})
	}
	d.recovery[userID] = rows
	return nil
}

func (d *fakeDB) GetRecoveryCodes(_ context.Context, userID int64) ([]entity.RecoveryCode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []entity.RecoveryCode
	for _, row := range d.recovery[userID] {
		if row.UsedAt == nil {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *fakeDB) MarkRecoveryCodeUsed(_ context.Context, id int64, at time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rows := range d.recovery {
		for _, row := range rows {
			if row.ID == id {
				if row.UsedAt != nil {
					return false, nil
				}
				stamp := at
				row.UsedAt = &stamp
				return true, nil
			}
		}
	}
	return false, nil
}

type testEnv struct {
	uc         *Usecase
	db         *fakeDB
	challenges *fakeChallenges
	delivery   *fakeDelivery
	sessions   *fakeSessions
	limiter    *fakeLimiter
	clock      *fakeClock
	codes      *fakeCodes
	idemp      *fakeIdemp
	cfg        *fakeConfig
	goroutines *goroutine.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	v10, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("init validator: %v", err)
	}

	env := &testEnv{
		db:         newFakeDB(),
		challenges: newFakeChallenges(),
		delivery:   &fakeDelivery{},
		sessions:   &fakeSessions{},
		limiter:    newFakeLimiter(),
		clock:      &fakeClock{now: time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)},
		codes:      &fakeCodes{next: "123456"},
		idemp:      &fakeIdemp{},
		goroutines: goroutine.NewManager(4),
		cfg: &fakeConfig{
			ints: map[string]int64{
				"modules.auth.otp_digits":                 6,
				"modules.auth.otp_ttl_minutes":            5,
				"modules.auth.otp_max_attempts":           5,
				"modules.auth.totp_challenge_ttl_seconds": 300,
				"ratelimit.login.max":                     5,
				"ratelimit.login.window_seconds":          900,
				"ratelimit.otp_verify.max":                5,
				"ratelimit.otp_verify.window_seconds":     900,
				"ratelimit.otp_resend.max":                3,
				"ratelimit.otp_resend.window_seconds":     600,
				"ratelimit.totp_verify.max":               5,
				"ratelimit.totp_verify.window_seconds":    900,
			},
			strs: map[string]string{},
		},
	}

	env.uc = New(Dependency{
		RepoDB:          env.db,
		Challenges:      env.challenges,
		Delivery:        env.delivery,
		Sessions:        env.sessions,
		Limiter:         env.limiter,
		Idempotency:     env.idemp,
		Validator:       v10,
		Config:          env.cfg,
		HMAC:            fakeHash{prefix: "hmac:"},
		Bcrypt:          fakeHash{prefix: "bcrypt:"},
		Argon2ID:        fakeHash{prefix: "argon2:"},
		MFAEncryptor:    fakeEncryptor{},
		MFARecoveryCode: mfa.NewRecoveryCode(),
		UID:             &seqNumberID{},
		Totp:            fakeTotp{},
		Codes:           env.codes,
		Clock:           env.clock,
		Instrument:      fakeInstrument{},
		Goroutine:       env.goroutines,
	})

	return env
}

// waitDeliveries blocks until detached delivery goroutines finished.
func (e *testEnv) waitDeliveries(t *testing.T) {
	t.Helper()
	if err := e.goroutines.Wait(); err != nil {
		t.Fatalf("wait goroutines: %v", err)
	}
}

func (e *testEnv) seedUser(totpEnabled bool) *entity.UserLoginInfo {
	user := &entity.UserLoginInfo{
		ID:          11,
		Subject:     testSubject,
		Email:       testEmail,
		Phone:       testPhone,
		Status:      entity.UserStatusActive,
		Password:    "bcrypt:" + testPassword,
		TotpEnabled: totpEnabled,
	}
	e.db.usersByEmail[testEmail] = user

	if totpEnabled {
		now := e.clock.Now()
		e.db.creds[testSubject] = &entity.Credential{
			UserID:          user.ID,
			Subject:         testSubject,
			Email:           testEmail,
			TotpSecret:      append([]byte("enc:"), []byte(testTotpSecret)...),
			TotpConfirmedAt: &now,
		}
	}

	return user
}

func assertBusinessError(t *testing.T, err error, msg string, code goerror.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", msg)
	}
	gerr, ok := err.(*goerror.Error)
	if !ok {
		t.Fatalf("expected *goerror.Error, got %T: %v", err, err)
	}
	if gerr.Msg() != msg {
		t.Fatalf("expected message %q, got %q", msg, gerr.Msg())
	}
	if gerr.Code() != code {
		t.Fatalf("expected code %v, got %v", code, gerr.Code())
	}
}
