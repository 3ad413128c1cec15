package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/lo"
	"github.com/stepauth/stepauth/internal/auth/entity"
	"github.com/stepauth/stepauth/internal/pkg/goerror"
	"github.com/stepauth/stepauth/internal/pkg/ratelimit"
)

type LoginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	Channel  string `validate:"omitempty,oneof=email sms whatsapp"`
	Remember bool

	// SessionID is the caller's pre-auth session when one was presented.
	SessionID string
	IP        string
	UserAgent string
}

type LoginOutput struct {
	Factor           string
	Channel          string
	AvailableMethods []string

	// SessionToken is set only when a new pre-auth session was started.
	SessionToken string
}

// Login checks the password and starts the second-factor challenge. The
// password alone never authenticates; the response only routes the client to
// the pending factor.
func (s *Usecase) Login(ctx context.Context, in LoginInput) (*LoginOutput, error) {
	ctx, span := s.startSpan(ctx, "Login")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	email := strings.TrimSpace(strings.ToLower(in.Email))

	limitKey := ratelimit.Key("login", email, in.IP)
	limitWindow := s.cfg.GetSecond("ratelimit.login.window_seconds")
	if err := s.guardRateLimit(ctx, limitKey, s.cfg.GetInt64("ratelimit.login.max")); err != nil {
		return nil, err
	}

	user, err := s.repoDB.GetUserLoginInfo(ctx, email)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "user account not found", "email", email)
		s.hitRateLimit(ctx, limitKey, limitWindow)
		return nil, goerror.NewBusiness("invalid email or password", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get user by email", "email", email, "error", err)
		return nil, goerror.NewServer(err)
	}

	if err := s.ensureUserStatusAllowed(ctx, user.ID, user.Status); err != nil {
		return nil, err
	}

	if !s.bcrypt.Verify(user.Password, in.Password) {
		slog.WarnContext(ctx, "password user account not match", "user_id", user.ID)
		s.hitRateLimit(ctx, limitKey, limitWindow)
		return nil, goerror.NewBusiness("invalid email or password", goerror.CodeUnauthorized)
	}

	if err := s.limiter.Clear(ctx, limitKey); err != nil {
		slog.ErrorContext(ctx, "failed to clear rate limit counter", "key", limitKey, "error", err)
	}

	sessionID := in.SessionID
	var sessionToken string
	if sessionID == "" {
		sess, token, err := s.sessions.StartPreAuth(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to start pre-auth session", "user_id", user.ID, "error", err)
			return nil, goerror.NewServer(err)
		}
		sessionID = sess.ID
		sessionToken = token
	}

	if user.TotpEnabled {
		if err := s.startTotpChallenge(ctx, sessionID, user.Subject, in.Remember); err != nil {
			return nil, err
		}

		return &LoginOutput{
			Factor:           entity.FactorTOTP.String(),
			AvailableMethods: []string{"totp", "recovery_code"},
			SessionToken:     sessionToken,
		}, nil
	}

	channel, identifier := s.pickOtpDestination(in.Channel, user)

	if err := s.challenges.Save(ctx, sessionID, entity.Challenge{
		Factor:     entity.FactorOTP,
		Subject:    user.Subject,
		Purpose:    entity.OtpPurposeLogin,
		Channel:    channel,
		Identifier: identifier,
		Remember:   in.Remember,
	}, challengeGCTTL); err != nil {
		slog.ErrorContext(ctx, "failed to save otp challenge", "user_id", user.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if err := s.issueOtp(ctx, user.Subject, identifier, channel, entity.OtpPurposeLogin, in.IP, in.UserAgent); err != nil {
		return nil, err
	}

	return &LoginOutput{
		Factor:           entity.FactorOTP.String(),
		Channel:          channel.String(),
		AvailableMethods: []string{"otp"},
		SessionToken:     sessionToken,
	}, nil
}

func (s *Usecase) startTotpChallenge(ctx context.Context, sessionID, subject string, remember bool) error {
	ttl := s.cfg.GetSecond("modules.auth.totp_challenge_ttl_seconds")

	if err := s.challenges.Save(ctx, sessionID, entity.Challenge{
		Factor:    entity.FactorTOTP,
		Subject:   subject,
		Purpose:   entity.OtpPurposeLogin,
		Remember:  remember,
		ExpiresAt: s.clock.Now().Add(ttl),
	}, challengeGCTTL); err != nil {
		slog.ErrorContext(ctx, "failed to save totp challenge", "subject", subject, "error", err)
		return goerror.NewServer(err)
	}

	return nil
}

// pickOtpDestination resolves the delivery channel and address. A requested
// phone channel silently falls back to email when no phone is on record, so
// the response never reveals which destinations exist.
func (s *Usecase) pickOtpDestination(requested string, user *entity.UserLoginInfo) (entity.Channel, string) {
	channel := entity.Channel(requested)
	if !channel.Valid() {
		channel = entity.ChannelEmail
	}

	if channel != entity.ChannelEmail && user.Phone == "" {
		channel = entity.ChannelEmail
	}

	identifier := lo.Ternary(channel == entity.ChannelEmail, user.Email, user.Phone)

	return channel, identifier
}
