package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/simaland/userapi/internal/db"
	"github.com/simaland/userapi/types"
)

// SessionRepository handles persistence for session tokens.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Replace makes token the only session of its user. The user row is locked
// for the duration of the transaction so concurrent logins of the same user
// are applied one after the other.
func (r *SessionRepository) Replace(ctx context.Context, token types.SessionToken) error {
	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const lockUser = `SELECT id FROM users WHERE id = $1 FOR UPDATE`
		var id int
		if err := tx.QueryRowContext(ctx, lockUser, token.UserID).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		const deleteOld = `DELETE FROM session_tokens WHERE user_id = $1`
		if _, err := tx.ExecContext(ctx, deleteOld, token.UserID); err != nil {
			return err
		}

		const insertNew = `
		INSERT INTO session_tokens (user_id, token, expire_time)
		VALUES ($1, $2, $3)`
		_, err := tx.ExecContext(ctx, insertNew, token.UserID, token.Token, token.ExpiresAt)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}

// DeleteByToken removes the session with the given token and returns the
// id of its owner. ErrNotFound means no session matched.
func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) (int, error) {
	const query = `DELETE FROM session_tokens WHERE token = $1 RETURNING user_id`
	var userID int
	if err := r.db.QueryRowContext(ctx, query, token).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("delete session: %w", err)
	}
	return userID, nil
}

// GrantByToken resolves a token to its owner's permission flags. A session
// whose user has no permission row resolves to a blocked non-admin.
func (r *SessionRepository) GrantByToken(ctx context.Context, token string) (types.SessionGrant, error) {
	const query = `
		SELECT s.user_id, s.expire_time,
			COALESCE(p.blocked, TRUE), COALESCE(p.is_admin, FALSE)
		FROM session_tokens s
		LEFT JOIN permissions p ON p.user_id = s.user_id
		WHERE s.token = $1`
	var grant types.SessionGrant
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&grant.UserID,
		&grant.ExpiresAt,
		&grant.Blocked,
		&grant.IsAdmin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.SessionGrant{}, ErrNotFound
		}
		return types.SessionGrant{}, fmt.Errorf("get session grant: %w", err)
	}
	return grant, nil
}
