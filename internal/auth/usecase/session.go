package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/stepauth/stepauth/internal/pkg/goerror"
)

type SessionInfoInput struct {
	Subject   string
	Remember  bool
	CreatedAt time.Time
}

type SessionInfoOutput struct {
	Subject     string
	Email       string
	TotpEnabled bool
	Remember    bool
	CreatedAt   time.Time
	LastLoginAt *time.Time
	LastLoginIP string
}

// SessionInfo returns the signed-in user's view of their own session and
// second-factor state.
func (s *Usecase) SessionInfo(ctx context.Context, in SessionInfoInput) (*SessionInfoOutput, error) {
	ctx, span := s.startSpan(ctx, "SessionInfo")
	defer span.End()

	user, err := s.repoDB.GetUserLoginInfoBySubject(ctx, in.Subject)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "user account not found for session", "subject", in.Subject)
		return nil, goerror.NewBusiness("account not found", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get user by subject", "subject", in.Subject, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &SessionInfoOutput{
		Subject:     user.Subject,
		Email:       user.Email,
		TotpEnabled: user.TotpEnabled,
		Remember:    in.Remember,
		CreatedAt:   in.CreatedAt,
		LastLoginAt: user.LastLoginAt,
		LastLoginIP: user.LastLoginIP,
	}, nil
}
