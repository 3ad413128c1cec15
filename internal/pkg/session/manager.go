package session

import (
	"context"
	"time"

	"github.com/stepauth/stepauth/internal/pkg/jwt"
)

type clocker interface {
	Now() time.Time
}

type generator interface {
	Generate() string
}

// Config defines the inputs for building a Manager.
type Config struct {
	// Store persists session records.
	Store Store
	// Tokens signs and verifies session tokens.
	Tokens jwt.JWT
	// Clock provides the current time source.
	Clock clocker
	// IDGen generates session identifiers.
	IDGen generator
	// TTL is the lifetime of a finalized session.
	TTL time.Duration
	// RememberTTL is the lifetime of a finalized session with remember set.
	RememberTTL time.Duration
	// PreAuthTTL bounds how long a pending challenge can anchor a session.
	PreAuthTTL time.Duration
}

// Manager implements Sessions over a Store and a token codec.
type Manager struct {
	store       Store
	tokens      jwt.JWT
	clock       clocker
	idGen       generator
	ttl         time.Duration
	rememberTTL time.Duration
	preAuthTTL  time.Duration
}

// NewManager builds a session Manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		store:       cfg.Store,
		tokens:      cfg.Tokens,
		clock:       cfg.Clock,
		idGen:       cfg.IDGen,
		ttl:         cfg.TTL,
		rememberTTL: cfg.RememberTTL,
		preAuthTTL:  cfg.PreAuthTTL,
	}
}

// StartPreAuth creates a short-lived unauthenticated session.
func (m *Manager) StartPreAuth(ctx context.Context) (*Session, string, error) {
	sess := Session{
		ID:        m.idGen.Generate(),
		CreatedAt: m.clock.Now(),
	}

	if err := m.store.Save(ctx, sess, m.preAuthTTL); err != nil {
		return nil, "", err
	}

	token, err := m.tokens.Generate(sess.ID, m.preAuthTTL)
	if err != nil {
		return nil, "", err
	}

	return &sess, token, nil
}

// Resolve verifies a token and loads the referenced session.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	claims, err := m.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	return m.store.Get(ctx, claims.SessionID)
}

// Finalize destroys the old session and creates an authenticated one under a
// fresh ID. The delete runs first: if it fails, the old ID must not stay
// usable next to a new authenticated session.
func (m *Manager) Finalize(ctx context.Context, oldID, subject string, remember bool) (*Session, string, error) {
	if oldID != "" {
		if err := m.store.Delete(ctx, oldID); err != nil {
			return nil, "", err
		}
	}

	ttl := m.ttl
	if remember {
		ttl = m.rememberTTL
	}

	sess := Session{
		ID:            m.idGen.Generate(),
		Subject:       subject,
		Authenticated: true,
		Remember:      remember,
		CreatedAt:     m.clock.Now(),
	}

	if err := m.store.Save(ctx, sess, ttl); err != nil {
		return nil, "", err
	}

	token, err := m.tokens.Generate(sess.ID, ttl)
	if err != nil {
		return nil, "", err
	}

	return &sess, token, nil
}

// Destroy removes a session.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}
