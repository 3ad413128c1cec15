package session

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stepauth/stepauth/internal/pkg/jwt"
)

type memStore struct {
	sessions map[string]Session
	ttls     map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]Session),
		ttls:     make(map[string]time.Duration),
	}
}

func (s *memStore) Save(_ context.Context, sess Session, ttl time.Duration) error {
	s.sessions[sess.ID] = sess
	s.ttls[sess.ID] = ttl
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	delete(s.sessions, id)
	delete(s.ttls, id)
	return nil
}

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

type seqID struct{ n int }

func (g *seqID) Generate() string {
	g.n++
	return fmt.Sprintf("sess-%04d", g.n)
}

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()

	codec, err := jwt.NewHS512(jwt.Config{
		Secret: []byte(strings.Repeat("s", 64)),
		Issuer: "stepauth-test",
		Clock:  stubClock{now: time.Now()},
		UUID:   &seqID{},
	})
	if err != nil {
		t.Fatalf("NewHS512() error = %v", err)
	}

	return NewManager(Config{
		Store:       store,
		Tokens:      codec,
		Clock:       stubClock{now: time.Unix(1700000000, 0)},
		IDGen:       &seqID{},
		TTL:         2 * time.Hour,
		RememberTTL: 720 * time.Hour,
		PreAuthTTL:  10 * time.Minute,
	})
}

func TestManagerStartPreAuthAndResolve(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	mgr := newTestManager(t, store)

	sess, token, err := mgr.StartPreAuth(ctx)
	if err != nil {
		t.Fatalf("StartPreAuth() error = %v", err)
	}
	if sess.Authenticated {
		t.Fatal("pre-auth session is authenticated")
	}
	if store.ttls[sess.ID] != 10*time.Minute {
		t.Fatalf("pre-auth ttl = %v, want 10m", store.ttls[sess.ID])
	}

	got, err := mgr.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ID != sess.ID {
		t.Fatalf("Resolve() id = %q, want %q", got.ID, sess.ID)
	}
}

func TestManagerResolveRejectsGarbage(t *testing.T) {
	mgr := newTestManager(t, newMemStore())

	if _, err := mgr.Resolve(context.Background(), "not-a-token"); err == nil {
		t.Fatal("Resolve() error = nil for garbage token")
	}
}

func TestManagerFinalize(t *testing.T) {
	ctx := context.Background()

	t.Run("regenerates the session id and marks authenticated", func(t *testing.T) {
		store := newMemStore()
		mgr := newTestManager(t, store)

		old, oldToken, err := mgr.StartPreAuth(ctx)
		if err != nil {
			t.Fatalf("StartPreAuth() error = %v", err)
		}

		sess, token, err := mgr.Finalize(ctx, old.ID, "user-1", false)
		if err != nil {
			t.Fatalf("Finalize() error = %v", err)
		}
		if sess.ID == old.ID {
			t.Fatal("Finalize() kept the pre-auth session id")
		}
		if !sess.Authenticated || sess.Subject != "user-1" {
			t.Fatalf("Finalize() session = %+v", sess)
		}
		if token == "" {
			t.Fatal("Finalize() token is empty")
		}

		if _, err := mgr.Resolve(ctx, oldToken); err == nil {
			t.Fatal("old session still resolvable after finalize")
		}
	})

	t.Run("remember extends the ttl", func(t *testing.T) {
		store := newMemStore()
		mgr := newTestManager(t, store)

		sess, _, err := mgr.Finalize(ctx, "", "user-2", true)
		if err != nil {
			t.Fatalf("Finalize() error = %v", err)
		}
		if !sess.Remember {
			t.Fatal("Finalize() remember flag not set")
		}
		if store.ttls[sess.ID] != 720*time.Hour {
			t.Fatalf("remember ttl = %v, want 720h", store.ttls[sess.ID])
		}
	})
}

func TestManagerDestroy(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	mgr := newTestManager(t, store)

	sess, token, err := mgr.StartPreAuth(ctx)
	if err != nil {
		t.Fatalf("StartPreAuth() error = %v", err)
	}
	if err := mgr.Destroy(ctx, sess.ID); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if _, err := mgr.Resolve(ctx, token); err == nil {
		t.Fatal("session still resolvable after destroy")
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Fatalf("FromContext() = %+v on empty context", got)
	}

	ctx := SetCurrent(context.Background(), Session{ID: "abc", Authenticated: true})
	got := FromContext(ctx)
	if got == nil || got.ID != "abc" || !got.Authenticated {
		t.Fatalf("FromContext() = %+v", got)
	}
}
