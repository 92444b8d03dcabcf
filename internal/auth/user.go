// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// Role is the privilege level of an account.
type Role string

// Known roles.
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is a stored account.
type User struct {
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    *time.Time // nil until the first password change
}

// NewUser creates a validated User. An empty role defaults to RoleUser.
func NewUser(username, passwordHash string, role Role, createdAt time.Time) (*User, error) {
	if username == "" {
		return nil, oops.Code("AUTH_INVALID_INPUT").
			Wrapf(ErrInvalidInput, "username cannot be empty")
	}
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, oops.Code("AUTH_INVALID_INPUT").
			With("role", string(role)).
			Wrapf(ErrInvalidInput, "unknown role")
	}
	return &User{
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    createdAt,
	}, nil
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Sanitized returns a copy with the password hash removed.
func (u *User) Sanitized() *User {
	c := *u
	c.PasswordHash = ""
	return &c
}

// Identity is the result of a successful token validation.
type Identity struct {
	Username string
	Role     Role
}

// IsAdmin reports whether the identity holds the admin role.
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// DeleteGuard decides whether target may be removed given a consistent
// snapshot of every user. A non-nil return aborts the delete.
type DeleteGuard func(target *User, all map[string]*User) error

// ProtectLastAdmin refuses to delete the only remaining administrator.
func ProtectLastAdmin(target *User, all map[string]*User) error {
	if !target.IsAdmin() {
		return nil
	}
	admins := 0
	for _, u := range all {
		if u.IsAdmin() {
			admins++
		}
	}
	if admins <= 1 {
		return oops.Code("AUTH_LAST_ADMIN").
			With("username", target.Username).
			Wrap(ErrLastAdminProtected)
	}
	return nil
}

// UserRepository manages account persistence.
type UserRepository interface {
	// Get retrieves a user by name. Returns ErrNotFound when the record is
	// absent or unreadable.
	Get(ctx context.Context, username string) (*User, error)

	// Put writes the user, replacing any existing record.
	Put(ctx context.Context, user *User) error

	// Create writes the user only if the name is free. Returns
	// ErrAlreadyExists otherwise.
	Create(ctx context.Context, user *User) error

	// Delete removes a user. When guard is non-nil it runs against a
	// consistent snapshot and the removal is atomic with respect to other
	// deletes. Returns ErrNotFound when the user is absent.
	Delete(ctx context.Context, username string, guard DeleteGuard) error

	// List returns every readable user keyed by name.
	List(ctx context.Context) (map[string]*User, error)

	// Exists reports whether any record is stored under username.
	Exists(ctx context.Context, username string) (bool, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}
