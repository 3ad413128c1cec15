// Package session manages server-side login sessions.
//
// A session record lives in a shared store and is referenced from the client
// by an opaque signed token. Pre-authentication sessions exist only to anchor
// a pending second-factor challenge; finalizing a login always issues a fresh
// session ID so a token captured before authentication is worthless after it.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no session exists for an ID.
var ErrNotFound = errors.New("session: not found")

// Session is the server-side session record.
type Session struct {
	// ID is the opaque session identifier.
	ID string `json:"id"`
	// Subject is the authenticated user identifier, empty before finalize.
	Subject string `json:"subject,omitempty"`
	// Authenticated reports whether the login flow completed.
	Authenticated bool `json:"authenticated"`
	// Remember marks sessions created with an extended lifetime.
	Remember bool `json:"remember"`
	// CreatedAt is when this session record was created.
	CreatedAt time.Time `json:"created_at"`
}

// Store persists session records.
type Store interface {
	Save(ctx context.Context, sess Session, ttl time.Duration) error
	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error
}

// Sessions is the session lifecycle contract consumed by usecases and the
// router middleware.
type Sessions interface {
	// StartPreAuth creates a short-lived unauthenticated session and returns
	// it with its signed token.
	StartPreAuth(ctx context.Context) (*Session, string, error)
	// Resolve verifies a token and loads the referenced session.
	Resolve(ctx context.Context, token string) (*Session, error)
	// Finalize destroys the old session and creates an authenticated one
	// under a new ID, returning it with its signed token.
	Finalize(ctx context.Context, oldID, subject string, remember bool) (*Session, string, error)
	// Destroy removes a session.
	Destroy(ctx context.Context, id string) error
}

type sessionContextKey struct{}

// SetCurrent stores the resolved session in the context.
func SetCurrent(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// FromContext returns the session stored in the context, if any.
func FromContext(ctx context.Context) *Session {
	sess, ok := ctx.Value(sessionContextKey{}).(Session)
	if !ok {
		return nil
	}

	return &sess
}
