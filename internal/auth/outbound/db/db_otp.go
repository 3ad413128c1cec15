package db

import (
	"context"
	"time"

	"github.com/stepauth/stepauth/internal/auth/entity"
)

// CreateOtpCode persists a freshly issued one-time code row.
func (s *DB) CreateOtpCode(ctx context.Context, in entity.OtpCode) (err error) {
	ctx, span := s.startSpan(ctx, "CreateOtpCode")
	defer func() { s.endSpan(span, err) }()

	const query = `
		INSERT INTO otp_codes (id, subject, purpose, channel, identifier, code_hash, expires_at, attempts, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)`

	_, err = s.conn.Exec(ctx, query,
		in.ID,
		in.Subject,
		in.Purpose,
		in.Channel.String(),
		in.Identifier,
		in.CodeHash,
		in.ExpiresAt,
		in.Metadata,
	)
	return s.mapError(err)
}

// GetLatestOtpCode returns the newest unused code for the scope. IDs are
// snowflakes, so ordering by id is ordering by issue time: a reissued code
// always shadows the older rows without touching them.
func (s *DB) GetLatestOtpCode(ctx context.Context, subject, purpose string, channel entity.Channel) (out *entity.OtpCode, err error) {
	ctx, span := s.startSpan(ctx, "GetLatestOtpCode")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, subject, purpose, channel, identifier, code_hash, expires_at, attempts, used_at, metadata
		FROM otp_codes
		WHERE subject = $1 AND purpose = $2 AND channel = $3 AND used_at IS NULL
		ORDER BY id DESC
		LIMIT 1`

	var rec entity.OtpCode
	err = s.conn.QueryRow(ctx, query, subject, purpose, channel.String()).Scan(
		&rec.ID,
		&rec.Subject,
		&rec.Purpose,
		&rec.Channel,
		&rec.Identifier,
		&rec.CodeHash,
		&rec.ExpiresAt,
		&rec.Attempts,
		&rec.UsedAt,
		&rec.Metadata,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &rec, nil
}

// IncrementOtpAttempts bumps the attempt counter in a single statement so
// concurrent verifications cannot lose an increment, and returns the new
// count. A row that was consumed meanwhile reads as goerror.ErrNotFound.
func (s *DB) IncrementOtpAttempts(ctx context.Context, id int64) (attempts int32, err error) {
	ctx, span := s.startSpan(ctx, "IncrementOtpAttempts")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE otp_codes
		SET attempts = attempts + 1
		WHERE id = $1 AND used_at IS NULL
		RETURNING attempts`

	if err = s.conn.QueryRow(ctx, query, id).Scan(&attempts); err != nil {
		return 0, s.mapError(err)
	}

	return attempts, nil
}

// MarkOtpCodeUsed consumes the code with a compare-and-set on used_at. The
// boolean result is false when another request won the race.
func (s *DB) MarkOtpCodeUsed(ctx context.Context, id int64, at time.Time) (won bool, err error) {
	ctx, span := s.startSpan(ctx, "MarkOtpCodeUsed")
	defer func() { s.endSpan(span, err) }()

	const query = `UPDATE otp_codes SET used_at = $2 WHERE id = $1 AND used_at IS NULL`

	tag, err := s.conn.Exec(ctx, query, id, at)
	if err != nil {
		return false, s.mapError(err)
	}

	return tag.RowsAffected() == 1, nil
}

// DeleteExpiredOtpCodes removes rows whose expiry passed before the cutoff.
// Verification filters expired rows lazily; this only keeps the table small.
func (s *DB) DeleteExpiredOtpCodes(ctx context.Context, cutoff time.Time) (deleted int64, err error) {
	ctx, span := s.startSpan(ctx, "DeleteExpiredOtpCodes")
	defer func() { s.endSpan(span, err) }()

	const query = `DELETE FROM otp_codes WHERE expires_at < $1`

	tag, err := s.conn.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, s.mapError(err)
	}

	return tag.RowsAffected(), nil
}
