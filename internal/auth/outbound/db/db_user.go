package db

import (
	"context"
	"time"

	"github.com/stepauth/stepauth/internal/auth/entity"
)

// GetUserLoginInfo loads the credential view for a password check by email.
func (s *DB) GetUserLoginInfo(ctx context.Context, email string) (out *entity.UserLoginInfo, err error) {
	ctx, span := s.startSpan(ctx, "GetUserLoginInfo")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, uid, email, COALESCE(phone, ''), status, password,
			(totp_secret IS NOT NULL AND totp_confirmed_at IS NOT NULL) AS totp_enabled,
			last_login_at, COALESCE(last_login_ip, '')
		FROM users
		WHERE email = $1 AND deleted_at IS NULL`

	var info entity.UserLoginInfo
	err = s.conn.QueryRow(ctx, query, email).Scan(
		&info.ID,
		&info.Subject,
		&info.Email,
		&info.Phone,
		&info.Status,
		&info.Password,
		&info.TotpEnabled,
		&info.LastLoginAt,
		&info.LastLoginIP,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &info, nil
}

// GetUserLoginInfoBySubject loads the same credential view by subject, used
// by the authenticated factor-management flows for password rechecks.
func (s *DB) GetUserLoginInfoBySubject(ctx context.Context, subject string) (out *entity.UserLoginInfo, err error) {
	ctx, span := s.startSpan(ctx, "GetUserLoginInfoBySubject")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, uid, email, COALESCE(phone, ''), status, password,
			(totp_secret IS NOT NULL AND totp_confirmed_at IS NOT NULL) AS totp_enabled,
			last_login_at, COALESCE(last_login_ip, '')
		FROM users
		WHERE uid = $1 AND deleted_at IS NULL`

	var info entity.UserLoginInfo
	err = s.conn.QueryRow(ctx, query, subject).Scan(
		&info.ID,
		&info.Subject,
		&info.Email,
		&info.Phone,
		&info.Status,
		&info.Password,
		&info.TotpEnabled,
		&info.LastLoginAt,
		&info.LastLoginIP,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &info, nil
}

// UpdateLastLogin stamps the successful login time and source address.
func (s *DB) UpdateLastLogin(ctx context.Context, subject string, at time.Time, ip string) (err error) {
	ctx, span := s.startSpan(ctx, "UpdateLastLogin")
	defer func() { s.endSpan(span, err) }()

	const query = `UPDATE users SET last_login_at = $2, last_login_ip = $3 WHERE uid = $1`

	_, err = s.conn.Exec(ctx, query, subject, at, ip)
	return s.mapError(err)
}
