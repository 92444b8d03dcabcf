// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/xybot/xyweb/internal/auth"
)

const userColumns = `username, password_hash, role, created_at, updated_at`

// UserRepository implements auth.UserRepository on the auth_users table.
type UserRepository struct {
	s *Store
}

// Get retrieves a user by name.
func (r *UserRepository) Get(ctx context.Context, username string) (*auth.User, error) {
	row := r.s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM auth_users WHERE username = $1`, username)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, auth.StoreUnavailable("select user", err)
	}
	return u, nil
}

// Put inserts or replaces a user.
func (r *UserRepository) Put(ctx context.Context, u *auth.User) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO auth_users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			updated_at = EXCLUDED.updated_at
	`, u.Username, u.PasswordHash, string(roleOf(u)), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return auth.StoreUnavailable("upsert user", err)
	}
	return nil
}

// Create inserts a user whose name must be free.
func (r *UserRepository) Create(ctx context.Context, u *auth.User) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO auth_users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5)
	`, u.Username, u.PasswordHash, string(roleOf(u)), u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return oops.Code("USER_EXISTS").With("username", u.Username).Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return auth.StoreUnavailable("insert user", err)
	}
	return nil
}

// Delete removes a user. With a guard, every user row is locked for the
// duration of the check so concurrent guarded deletes serialize.
func (r *UserRepository) Delete(ctx context.Context, username string, guard auth.DeleteGuard) error {
	if guard == nil {
		tag, err := r.s.db.Exec(ctx, `DELETE FROM auth_users WHERE username = $1`, username)
		if err != nil {
			return auth.StoreUnavailable("delete user", err)
		}
		if tag.RowsAffected() == 0 {
			return oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
		}
		return nil
	}

	tx, err := r.s.db.Begin(ctx)
	if err != nil {
		return auth.StoreUnavailable("begin delete user", err)
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback(ctx) //nolint:errcheck // the original error is returned
		}
	}()

	rows, err := tx.Query(ctx, `SELECT `+userColumns+` FROM auth_users FOR UPDATE`)
	if err != nil {
		return auth.StoreUnavailable("lock users", err)
	}
	all, err := collectUsers(rows)
	if err != nil {
		return auth.StoreUnavailable("lock users", err)
	}

	target, ok := all[username]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	if err := guard(target, all); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM auth_users WHERE username = $1`, username); err != nil {
		return auth.StoreUnavailable("delete user", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return auth.StoreUnavailable("commit delete user", err)
	}
	done = true
	return nil
}

// List returns every user.
func (r *UserRepository) List(ctx context.Context) (map[string]*auth.User, error) {
	rows, err := r.s.db.Query(ctx, `SELECT `+userColumns+` FROM auth_users`)
	if err != nil {
		return nil, auth.StoreUnavailable("list users", err)
	}
	all, err := collectUsers(rows)
	if err != nil {
		return nil, auth.StoreUnavailable("list users", err)
	}
	return all, nil
}

// Exists reports whether a row exists for username.
func (r *UserRepository) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM auth_users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, auth.StoreUnavailable("check user exists", err)
	}
	return exists, nil
}

// Ping checks the database connection.
func (r *UserRepository) Ping(ctx context.Context) error {
	return auth.StoreUnavailable("ping", r.s.db.Ping(ctx))
}

func roleOf(u *auth.User) auth.Role {
	if u.Role == "" {
		return auth.RoleUser
	}
	return u.Role
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u       auth.User
		role    string
		updated *time.Time
	)
	if err := row.Scan(&u.Username, &u.PasswordHash, &role, &u.CreatedAt, &updated); err != nil {
		return nil, err //nolint:wrapcheck // callers classify pgx errors
	}
	u.Role = auth.Role(role)
	if u.Role == "" {
		u.Role = auth.RoleUser
	}
	u.UpdatedAt = updated
	return &u, nil
}

func collectUsers(rows pgx.Rows) (map[string]*auth.User, error) {
	defer rows.Close()
	all := make(map[string]*auth.User)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		all[u.Username] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err //nolint:wrapcheck // callers classify pgx errors
	}
	return all, nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
