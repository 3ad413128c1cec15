package db

import (
	"context"
	"time"

	"github.com/stepauth/stepauth/internal/auth/entity"
)

// ReplaceRecoveryCodes swaps the full recovery code set in one transaction.
func (s *DB) ReplaceRecoveryCodes(ctx context.Context, userID int64, ids []int64, hashes []string) (err error) {
	ctx, span := s.startSpan(ctx, "ReplaceRecoveryCodes")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return s.mapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID); err != nil {
		return s.mapError(err)
	}

	const insert = `INSERT INTO recovery_codes (id, user_id, code_hash) VALUES ($1, $2, $3)`
	for i, hash := range hashes {
		if _, err = tx.Exec(ctx, insert, ids[i], userID, hash); err != nil {
			return s.mapError(err)
		}
	}

	return s.mapError(tx.Commit(ctx))
}

// GetRecoveryCodes returns the unused recovery codes for a user.
func (s *DB) GetRecoveryCodes(ctx context.Context, userID int64) (out []entity.RecoveryCode, err error) {
	ctx, span := s.startSpan(ctx, "GetRecoveryCodes")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, user_id, code_hash, used_at
		FROM recovery_codes
		WHERE user_id = $1 AND used_at IS NULL
		ORDER BY id`

	rows, err := s.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec entity.RecoveryCode
		if err = rows.Scan(&rec.ID, &rec.UserID, &rec.CodeHash, &rec.UsedAt); err != nil {
			return nil, s.mapError(err)
		}
		out = append(out, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, s.mapError(err)
	}

	return out, nil
}

// MarkRecoveryCodeUsed consumes one recovery code with a compare-and-set.
func (s *DB) MarkRecoveryCodeUsed(ctx context.Context, id int64, at time.Time) (won bool, err error) {
	ctx, span := s.startSpan(ctx, "MarkRecoveryCodeUsed")
	defer func() { s.endSpan(span, err) }()

	const query = `UPDATE recovery_codes SET used_at = $2 WHERE id = $1 AND used_at IS NULL`

	tag, err := s.conn.Exec(ctx, query, id, at)
	if err != nil {
		return false, s.mapError(err)
	}

	return tag.RowsAffected() == 1, nil
}
