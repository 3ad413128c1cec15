// Package challenge stores the pending second-factor state per session.
package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stepauth/stepauth/internal/auth/entity"
	"github.com/stepauth/stepauth/internal/pkg/goerror"
	"github.com/stepauth/stepauth/internal/pkg/instrument"
	"go.opentelemetry.io/otel/trace"
)

// Store keeps one challenge per session in Redis. Writes overwrite, so the
// newest login attempt always wins; the key TTL is only garbage collection,
// real expiry is checked against the challenge content.
type Store struct {
	client *redis.Client
	prefix string
	ins    instrument.Instrumentation
}

// NewStore builds a Redis-backed challenge store.
func NewStore(client *redis.Client, ins instrument.Instrumentation) *Store {
	return &Store{
		client: client,
		prefix: "challenge:",
		ins:    ins,
	}
}

func (s *Store) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("auth.outbound.challenge").Start(ctx, name)
}

// Save writes the challenge for the session, replacing any previous one.
func (s *Store) Save(ctx context.Context, sessionID string, ch entity.Challenge, ttl time.Duration) error {
	ctx, span := s.startSpan(ctx, "Save")
	defer span.End()

	raw, err := json.Marshal(ch)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, s.prefix+sessionID, raw, ttl).Err()
}

// Get returns the pending challenge or goerror.ErrNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (*entity.Challenge, error) {
	ctx, span := s.startSpan(ctx, "Get")
	defer span.End()

	raw, err := s.client.Get(ctx, s.prefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, goerror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var ch entity.Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, err
	}

	return &ch, nil
}

// Delete removes the challenge. Deleting an absent challenge is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	ctx, span := s.startSpan(ctx, "Delete")
	defer span.End()

	return s.client.Del(ctx, s.prefix+sessionID).Err()
}
