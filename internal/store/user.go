package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/simaland/userapi/internal/db"
	"github.com/simaland/userapi/types"
)

// UserRepository handles persistence for users and their permissions.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user and its permission row in one transaction.
// A nil perm stores the column defaults.
func (r *UserRepository) Create(ctx context.Context, user types.User, perm *types.Permission) (types.User, error) {
	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const insertUser = `
		INSERT INTO users (first_name, last_name, login, password, birth_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
		if err := tx.QueryRowContext(
			ctx,
			insertUser,
			user.FirstName,
			user.LastName,
			user.Login,
			user.PasswordHash,
			user.BirthDate.Time,
		).Scan(&user.ID); err != nil {
			return err
		}

		if perm == nil {
			const insertDefault = `INSERT INTO permissions (user_id) VALUES ($1)`
			_, err := tx.ExecContext(ctx, insertDefault, user.ID)
			return err
		}
		const insertPerm = `INSERT INTO permissions (user_id, blocked, is_admin) VALUES ($1, $2, $3)`
		_, err := tx.ExecContext(ctx, insertPerm, user.ID, perm.Blocked, perm.IsAdmin)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// List returns every user joined with its permission flags. Users without a
// permission row are reported as blocked non-admins.
func (r *UserRepository) List(ctx context.Context) ([]types.UserView, error) {
	const query = `
		SELECT u.id, u.first_name, u.last_name, u.login, u.birth_date,
			COALESCE(p.blocked, TRUE), COALESCE(p.is_admin, FALSE)
		FROM users u
		LEFT JOIN permissions p ON p.user_id = u.id
		ORDER BY u.id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]types.UserView, 0)
	for rows.Next() {
		var view types.UserView
		var birthDate sql.NullTime
		if err := rows.Scan(
			&view.ID,
			&view.FirstName,
			&view.LastName,
			&view.Login,
			&birthDate,
			&view.Blocked,
			&view.IsAdmin,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if birthDate.Valid {
			view.BirthDate = types.Date{Time: birthDate.Time}
		}
		users = append(users, view)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Update overwrites the user's fields and applies the flags set in change.
// Flags left nil keep their stored value.
func (r *UserRepository) Update(ctx context.Context, user types.User, change *types.PermissionChange) error {
	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const updateUser = `
		UPDATE users
		SET first_name = $1,
			last_name = $2,
			login = $3,
			password = $4,
			birth_date = $5
		WHERE id = $6`
		result, err := tx.ExecContext(
			ctx,
			updateUser,
			user.FirstName,
			user.LastName,
			user.Login,
			user.PasswordHash,
			user.BirthDate.Time,
			user.ID,
		)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}

		if change == nil || (change.Blocked == nil && change.IsAdmin == nil) {
			return nil
		}
		const upsertPerm = `
		INSERT INTO permissions (user_id, blocked, is_admin)
		VALUES ($1, COALESCE($2::BOOLEAN, FALSE), COALESCE($3::BOOLEAN, FALSE))
		ON CONFLICT (user_id) DO UPDATE
		SET blocked = COALESCE($2::BOOLEAN, permissions.blocked),
			is_admin = COALESCE($3::BOOLEAN, permissions.is_admin)`
		_, err = tx.ExecContext(ctx, upsertPerm, user.ID, nullBool(change.Blocked), nullBool(change.IsAdmin))
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// Delete removes the user; permissions and session tokens cascade.
func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCredentials loads what the login flow needs for the given login.
func (r *UserRepository) GetCredentials(ctx context.Context, login string) (types.Credentials, error) {
	const query = `
		SELECT u.id, u.login, u.password,
			COALESCE(p.blocked, TRUE), COALESCE(p.is_admin, FALSE)
		FROM users u
		LEFT JOIN permissions p ON p.user_id = u.id
		WHERE u.login = $1`
	var creds types.Credentials
	err := r.db.QueryRowContext(ctx, query, login).Scan(
		&creds.UserID,
		&creds.Login,
		&creds.PasswordHash,
		&creds.Blocked,
		&creds.IsAdmin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Credentials{}, ErrNotFound
		}
		return types.Credentials{}, fmt.Errorf("get credentials: %w", err)
	}
	return creds, nil
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}
