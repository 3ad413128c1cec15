package usecase

import (
	"context"
	"log/slog"

	"github.com/stepauth/stepauth/internal/pkg/goerror"
)

type LogoutInput struct {
	SessionID string
}

// Logout terminates the session. Any challenge still anchored to it dies with
// it, so a half-finished login cannot be resumed later.
func (s *Usecase) Logout(ctx context.Context, in LogoutInput) error {
	ctx, span := s.startSpan(ctx, "Logout")
	defer span.End()

	s.clearChallenge(ctx, in.SessionID)

	if err := s.sessions.Destroy(ctx, in.SessionID); err != nil {
		slog.ErrorContext(ctx, "failed to destroy session", "session_id", in.SessionID, "error", err)
		return goerror.NewServer(err)
	}

	return nil
}
