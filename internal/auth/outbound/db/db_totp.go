package db

import (
	"context"
	"time"

	"github.com/stepauth/stepauth/internal/auth/entity"
	"github.com/stepauth/stepauth/internal/pkg/goerror"
)

// GetCredentialBySubject loads the authenticator state for a user.
func (s *DB) GetCredentialBySubject(ctx context.Context, subject string) (out *entity.Credential, err error) {
	ctx, span := s.startSpan(ctx, "GetCredentialBySubject")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, uid, email, totp_secret, totp_confirmed_at
		FROM users
		WHERE uid = $1 AND deleted_at IS NULL`

	var cred entity.Credential
	err = s.conn.QueryRow(ctx, query, subject).Scan(
		&cred.UserID,
		&cred.Subject,
		&cred.Email,
		&cred.TotpSecret,
		&cred.TotpConfirmedAt,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &cred, nil
}

// SavePendingTotpSecret stores an unconfirmed encrypted secret. A confirmed
// enrollment is never overwritten; re-running setup before confirm is.
func (s *DB) SavePendingTotpSecret(ctx context.Context, subject string, secret []byte) (err error) {
	ctx, span := s.startSpan(ctx, "SavePendingTotpSecret")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE users
		SET totp_secret = $2, totp_confirmed_at = NULL
		WHERE uid = $1 AND totp_confirmed_at IS NULL AND deleted_at IS NULL`

	tag, err := s.conn.Exec(ctx, query, subject, secret)
	if err != nil {
		return s.mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return goerror.ErrConflict
	}

	return nil
}

// ConfirmTotp flips a pending enrollment to confirmed.
func (s *DB) ConfirmTotp(ctx context.Context, subject string, at time.Time) (err error) {
	ctx, span := s.startSpan(ctx, "ConfirmTotp")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE users
		SET totp_confirmed_at = $2
		WHERE uid = $1 AND totp_secret IS NOT NULL AND totp_confirmed_at IS NULL`

	tag, err := s.conn.Exec(ctx, query, subject, at)
	if err != nil {
		return s.mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return goerror.ErrNotFound
	}

	return nil
}

// DisableTotp clears the secret, the confirmation mark, and every recovery
// code in one transaction so no half-disabled state is observable.
func (s *DB) DisableTotp(ctx context.Context, subject string) (err error) {
	ctx, span := s.startSpan(ctx, "DisableTotp")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return s.mapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const clearSecret = `
		UPDATE users
		SET totp_secret = NULL, totp_confirmed_at = NULL
		WHERE uid = $1
		RETURNING id`

	var userID int64
	if err = tx.QueryRow(ctx, clearSecret, subject).Scan(&userID); err != nil {
		return s.mapError(err)
	}

	const clearCodes = `DELETE FROM recovery_codes WHERE user_id = $1`
	if _, err = tx.Exec(ctx, clearCodes, userID); err != nil {
		return s.mapError(err)
	}

	return s.mapError(tx.Commit(ctx))
}
